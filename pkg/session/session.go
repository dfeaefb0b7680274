// Package session runs one selection-to-answer interaction: select a region,
// capture, crop, compress and ask the analysis server.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/menta2k/chart-qa/pkg/cropper"
	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

// Capturer takes a screenshot at native resolution
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
}

// CapturerFunc adapts a function to Capturer
type CapturerFunc func(ctx context.Context) (image.Image, error)

// Capture implements Capturer
func (f CapturerFunc) Capture(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// Static returns a Capturer that always yields img
func Static(img image.Image) Capturer {
	return CapturerFunc(func(ctx context.Context) (image.Image, error) {
		return img, nil
	})
}

// Analyzer answers a question about a base64 image
type Analyzer interface {
	Analyze(ctx context.Context, imgB64, question string) (string, error)
}

// ErrNoSelection is returned by Ask before a region has been cropped
var ErrNoSelection = errors.New("no region selected")

// Session is the state of one interaction
type Session struct {
	Capture   image.Image
	Viewport  types.Size
	Selection types.SelectionResult
	Crop      cropper.Result
	// Payload is the compressed crop as plain base64
	Payload  string
	Question string
	Answer   string

	Started  time.Time
	Finished time.Time
}

// Selected reports whether a region has been cropped
func (s *Session) Selected() bool {
	return s != nil && s.Crop.Image != nil
}

// Flow wires the selector, capturer, cropper and analyzer together
type Flow struct {
	manager  *selector.Manager
	cropper  *cropper.Cropper
	capturer Capturer
	analyzer Analyzer
}

// NewFlow creates a flow. analyzer may be nil when only cropping is needed.
func NewFlow(manager *selector.Manager, c *cropper.Cropper, capturer Capturer, analyzer Analyzer) *Flow {
	if manager == nil {
		manager = selector.NewManager()
	}
	if c == nil {
		c = cropper.New()
	}
	return &Flow{manager: manager, cropper: c, capturer: capturer, analyzer: analyzer}
}

// SelectArea runs a selection on host and crops the capture to it. Page hosts
// select first so the overlay never appears in the screenshot; popup hosts
// need the screenshot first as their backdrop. A cancelled selection returns
// the session together with the cancellation error kind.
func (f *Flow) SelectArea(ctx context.Context, host selector.Host) (*Session, error) {
	if f.capturer == nil {
		return nil, errors.New("no capturer configured")
	}
	s := &Session{Started: time.Now()}

	if host.Capability() == selector.CapabilityPopup {
		bh, ok := host.(selector.BackdropHost)
		if !ok {
			return nil, fmt.Errorf("popup host %T cannot show a backdrop", host)
		}
		if err := f.capture(ctx, s); err != nil {
			return nil, err
		}
		bh.SetBackdrop(s.Capture)
	}

	rec := &viewportHost{Host: host}
	res, err := f.manager.Select(ctx, rec)
	s.Selection = res
	s.Viewport = rec.viewport
	if err != nil {
		return s, fmt.Errorf("selection failed: %w", err)
	}
	if !res.IsSelected() {
		log.Printf("selection cancelled: %s", res.Reason)
		return s, res.Err()
	}

	if s.Capture == nil {
		if err := f.capture(ctx, s); err != nil {
			return s, err
		}
	}

	if err := f.crop(s, res.Rect, s.Viewport); err != nil {
		return s, err
	}
	return s, nil
}

// CaptureFull captures and uses the whole screenshot as the selection
func (f *Flow) CaptureFull(ctx context.Context) (*Session, error) {
	if f.capturer == nil {
		return nil, errors.New("no capturer configured")
	}
	s := &Session{Started: time.Now()}
	if err := f.capture(ctx, s); err != nil {
		return nil, err
	}

	b := s.Capture.Bounds()
	s.Viewport = types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	full := types.FullRect(s.Viewport, types.SpaceDisplay)
	s.Selection = types.Selected(full)

	if err := f.crop(s, full, s.Viewport); err != nil {
		return s, err
	}
	return s, nil
}

// Ask sends the compressed crop and question to the analyzer
func (f *Flow) Ask(ctx context.Context, s *Session, question string) (string, error) {
	if f.analyzer == nil {
		return "", errors.New("no analyzer configured")
	}
	if !s.Selected() {
		return "", ErrNoSelection
	}

	s.Question = question
	answer, err := f.analyzer.Analyze(ctx, s.Payload, question)
	if err != nil {
		return "", err
	}
	s.Answer = answer
	s.Finished = time.Now()
	log.Printf("answered in %s", s.Finished.Sub(s.Started).Round(time.Millisecond))
	return answer, nil
}

// Run selects on host and, when a question is given, asks it
func (f *Flow) Run(ctx context.Context, host selector.Host, question string) (*Session, error) {
	s, err := f.SelectArea(ctx, host)
	if err != nil || question == "" {
		return s, err
	}
	if _, err := f.Ask(ctx, s, question); err != nil {
		return s, err
	}
	return s, nil
}

func (f *Flow) capture(ctx context.Context, s *Session) error {
	img, err := f.capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	s.Capture = img
	return nil
}

func (f *Flow) crop(s *Session, rect types.Rect, display types.Size) error {
	res, err := f.cropper.Crop(s.Capture, rect, display)
	if err != nil {
		return fmt.Errorf("crop failed: %w", err)
	}
	s.Crop = res
	log.Printf("cropped %s (scale %.3fx%.3f)", res.Native, res.Scale.SX, res.Scale.SY)

	payload, err := f.cropper.CompressDefault(res.Image)
	if err != nil {
		return err
	}
	s.Payload = payload
	return nil
}

// viewportHost remembers the viewport of the overlay it attaches
type viewportHost struct {
	selector.Host
	viewport types.Size
}

func (h *viewportHost) Attach(ctx context.Context) (selector.Overlay, error) {
	ov, err := h.Host.Attach(ctx)
	if err != nil {
		return nil, err
	}
	h.viewport = ov.Viewport()
	return ov, nil
}
