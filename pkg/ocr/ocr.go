// Package ocr answers questions about chart regions with the text Tesseract
// recognises in them. It is a fallback when no vision model is available.
//
// Tesseract support is compiled in with the "ocr" build tag:
//
//	go build -tags ocr
//
// This requires Tesseract to be installed. On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/menta2k/chart-qa/pkg/client"
)

// ErrOCRNotEnabled is returned when OCR support was not compiled in
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// ErrNoText is returned when nothing legible was found
var ErrNoText = errors.New("no text recognised in image")

type engine interface {
	recognize(data []byte) (string, error)
	setLanguage(lang string) error
	close() error
}

// Client implements client.VisionClient over an OCR engine.
// Engines are not safe for concurrent use, so calls are serialised.
type Client struct {
	mu     sync.Mutex
	engine engine
	lang   string
}

// New creates an OCR client for the given "+" separated languages ("eng" when empty)
func New(lang string) (*Client, error) {
	if lang == "" {
		lang = "eng"
	}
	e, err := newEngine()
	if err != nil {
		return nil, err
	}
	if err := e.setLanguage(lang); err != nil {
		e.close()
		return nil, fmt.Errorf("failed to set OCR language %q: %w", lang, err)
	}
	return &Client{engine: e, lang: lang}, nil
}

// Close releases OCR resources. It is safe to call on a nil client.
func (c *Client) Close() error {
	if c == nil || c.engine == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.close()
}

// Name implements client.VisionClient
func (c *Client) Name() string {
	return "tesseract " + c.lang
}

// RecognizeImage returns the trimmed text found in encoded image bytes
func (c *Client) RecognizeImage(data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text, err := c.engine.recognize(data)
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// SimpleQuery implements client.VisionClient
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.Chat(ctx, client.Request{Model: model, Prompt: prompt, ImageB64: imgB64})
}

// Chat ignores the model and the question and reports the recognised text
func (c *Client) Chat(ctx context.Context, r client.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(r.ImageB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	text, err := c.RecognizeImage(data)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoText
	}
	return "Text in the selected region:\n" + text, nil
}

// Ping implements client.VisionClient
func (c *Client) Ping(ctx context.Context) error {
	if c.engine == nil {
		return ErrOCRNotEnabled
	}
	return nil
}
