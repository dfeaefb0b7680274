// Package desktop selects a region of the physical screen with a global
// mouse and keyboard hook and captures displays with kbinani/screenshot.
package desktop

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/kbinani/screenshot"
	hook "github.com/robotn/gohook"

	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

// hookSource abstracts the process-wide input hook
type hookSource interface {
	Start() chan hook.Event
	End()
}

type gohookSource struct{}

func (gohookSource) Start() chan hook.Event { return hook.Start() }
func (gohookSource) End()                   { hook.End() }

// Host listens on one display. The live rectangle is not drawn because
// there is no surface above other windows; use the popup host for that.
type Host struct {
	display int
	bounds  func(int) image.Rectangle
	source  hookSource

	// only one global hook may run at a time
	mu sync.Mutex
}

// New creates a host for display index n
func New(display int) (*Host, error) {
	if n := screenshot.NumActiveDisplays(); display < 0 || display >= n {
		return nil, fmt.Errorf("display %d out of range (%d active)", display, n)
	}
	return &Host{display: display, bounds: screenshot.GetDisplayBounds, source: gohookSource{}}, nil
}

// Capability implements selector.Host
func (h *Host) Capability() selector.Capability {
	return selector.CapabilityPage
}

// Capture implements session.Capturer for the host's display
func (h *Host) Capture(ctx context.Context) (image.Image, error) {
	img, err := screenshot.CaptureDisplay(h.display)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", h.display, err)
	}
	return img, nil
}

// Attach starts the global hook
func (h *Host) Attach(ctx context.Context) (selector.Overlay, error) {
	if !h.mu.TryLock() {
		return nil, fmt.Errorf("input hook already active")
	}

	bounds := h.bounds(h.display)
	if bounds.Empty() {
		h.mu.Unlock()
		return nil, fmt.Errorf("display %d has no bounds", h.display)
	}

	raw := h.source.Start()
	if raw == nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("failed to start input hook")
	}

	o := &overlay{
		host:   h,
		bounds: bounds,
		events: make(chan selector.Event, 64),
		stop:   make(chan struct{}),
	}
	o.wg.Add(1)
	go o.forward(raw)
	return o, nil
}

type overlay struct {
	host   *Host
	bounds image.Rectangle
	events chan selector.Event
	stop   chan struct{}
	press  selector.PressFilter
	wg     sync.WaitGroup
	once   sync.Once
}

func (o *overlay) Events() <-chan selector.Event { return o.events }

func (o *overlay) Viewport() types.Size {
	return types.Size{Width: float64(o.bounds.Dx()), Height: float64(o.bounds.Dy())}
}

func (o *overlay) Render(r types.Rect) {}

// Detach stops the hook and waits for the forwarder to exit
func (o *overlay) Detach() error {
	o.once.Do(func() {
		close(o.stop)
		o.host.source.End()
		o.wg.Wait()
		o.host.mu.Unlock()
	})
	return nil
}

func (o *overlay) forward(raw chan hook.Event) {
	defer o.wg.Done()
	defer close(o.events)

	for {
		select {
		case <-o.stop:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			sev, keep := translate(ev, o.bounds)
			if !keep {
				continue
			}
			for _, out := range o.press.Filter(sev) {
				select {
				case o.events <- out:
				case <-o.stop:
					return
				}
			}
		}
	}
}

var escKeycode = hook.Keycode["esc"]

// translate maps a hook event to a selector event relative to the display
func translate(ev hook.Event, bounds image.Rectangle) (selector.Event, bool) {
	pt := types.Point{
		X: float64(int(ev.X) - bounds.Min.X),
		Y: float64(int(ev.Y) - bounds.Min.Y),
	}

	switch ev.Kind {
	case hook.MouseHold:
		if ev.Button != hook.MouseMap["left"] {
			return selector.Event{}, false
		}
		return selector.Event{Kind: selector.PointerDown, Point: pt}, true
	case hook.MouseDrag, hook.MouseMove:
		return selector.Event{Kind: selector.PointerMove, Point: pt}, true
	case hook.MouseUp:
		if ev.Button != hook.MouseMap["left"] {
			return selector.Event{}, false
		}
		return selector.Event{Kind: selector.PointerUp, Point: pt}, true
	case hook.MouseDown:
		if ev.Clicks >= 2 {
			return selector.Event{Kind: selector.ConfirmFull}, true
		}
	case hook.KeyDown, hook.KeyHold:
		if ev.Keycode == escKeycode {
			return selector.Event{Kind: selector.CancelKey}, true
		}
	}
	return selector.Event{}, false
}
