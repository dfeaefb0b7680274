package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/chart-qa/pkg/client"
)

// DefaultURL is where a local Ollama listens
const DefaultURL = "http://localhost:11434"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	base   string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	// Drop any path such as /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		base:   baseURL.String(),
	}, nil
}

// Name implements client.VisionClient
func (c *Client) Name() string {
	return "ollama " + c.base
}

// SimpleQuery asks a question about an image without a system message
func (c *Client) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return c.Chat(ctx, client.Request{Model: model, Prompt: prompt, ImageB64: imgB64})
}

// Chat sends the system message, the question and the image in one turn
func (c *Client) Chat(ctx context.Context, r client.Request) (string, error) {
	// Vision models on CPU are slow
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	user := api.Message{Role: "user", Content: r.Prompt}
	if r.ImageB64 != "" {
		imgBytes, err := base64.StdEncoding.DecodeString(r.ImageB64)
		if err != nil {
			return "", fmt.Errorf("failed to decode base64 image: %w", err)
		}
		user.Images = []api.ImageData{api.ImageData(imgBytes)}
	}

	var messages []api.Message
	if r.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: r.System})
	}
	messages = append(messages, user)

	streamFalse := false
	req := &api.ChatRequest{
		Model:    r.Model,
		Messages: messages,
		Stream:   &streamFalse,
		Options:  modelOptions(r.Model),
	}

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}

	return content.String(), nil
}

// Ping checks that the server is up
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// modelOptions tunes sampling for known vision models
func modelOptions(model string) map[string]any {
	options := map[string]any{}
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v") || strings.Contains(modelLower, "minicpmv") {
		options["temperature"] = 0.7
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}
	return options
}
