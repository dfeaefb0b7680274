// Package clipboard copies answers to and pastes chart images from the
// system clipboard.
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"golang.design/x/clipboard"

	"github.com/menta2k/chart-qa/pkg/types"
)

// ErrEmpty is returned when the clipboard holds no data of the wanted kind
var ErrEmpty = errors.New("clipboard is empty")

// board is the system clipboard seam
type board interface {
	init() error
	read(f clipboard.Format) []byte
	write(f clipboard.Format, data []byte)
}

type systemBoard struct{}

func (systemBoard) init() error                           { return clipboard.Init() }
func (systemBoard) read(f clipboard.Format) []byte        { return clipboard.Read(f) }
func (systemBoard) write(f clipboard.Format, data []byte) { clipboard.Write(f, data) }

var (
	sys      board = systemBoard{}
	initOnce sync.Once
	initErr  error
)

// Init prepares the clipboard; later calls return the first result
func Init() error {
	initOnce.Do(func() {
		if err := sys.init(); err != nil {
			initErr = fmt.Errorf("clipboard unavailable: %w", err)
		}
	})
	return initErr
}

// WriteText puts text on the clipboard
func WriteText(text string) error {
	if err := Init(); err != nil {
		return err
	}
	sys.write(clipboard.FmtText, []byte(text))
	return nil
}

// ReadText returns the clipboard text
func ReadText() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	data := sys.read(clipboard.FmtText)
	if len(data) == 0 {
		return "", ErrEmpty
	}
	return string(data), nil
}

// ReadImage decodes the PNG image on the clipboard
func ReadImage() (image.Image, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	data := sys.read(clipboard.FmtImage)
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &types.DecodeError{Err: err}
	}
	return img, nil
}

// WriteImage puts img on the clipboard as PNG
func WriteImage(img image.Image) error {
	if err := Init(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode clipboard image: %w", err)
	}
	sys.write(clipboard.FmtImage, buf.Bytes())
	return nil
}
