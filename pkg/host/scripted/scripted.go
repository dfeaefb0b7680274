// Package scripted replays a fixed sequence of selection events. It backs the
// command line `-drag` flag and headless runs.
package scripted

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

// Host replays its events on every Attach
type Host struct {
	viewport types.Size
	events   []selector.Event

	mu       sync.Mutex
	rendered []types.Rect
}

// New creates a scripted host for a viewport of the given size
func New(viewport types.Size, events ...selector.Event) *Host {
	return &Host{viewport: viewport, events: events}
}

// Capability implements selector.Host
func (h *Host) Capability() selector.Capability {
	return selector.CapabilityPage
}

// Attach implements selector.Host
func (h *Host) Attach(ctx context.Context) (selector.Overlay, error) {
	ch := make(chan selector.Event, len(h.events))
	for _, ev := range h.events {
		ch <- ev
	}
	close(ch)
	return &overlay{host: h, events: ch}, nil
}

// Rendered returns the live rectangles drawn so far
func (h *Host) Rendered() []types.Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Rect, len(h.rendered))
	copy(out, h.rendered)
	return out
}

type overlay struct {
	host   *Host
	events chan selector.Event
}

func (o *overlay) Events() <-chan selector.Event { return o.events }

func (o *overlay) Viewport() types.Size { return o.host.viewport }

func (o *overlay) Render(r types.Rect) {
	o.host.mu.Lock()
	o.host.rendered = append(o.host.rendered, r)
	o.host.mu.Unlock()
}

func (o *overlay) Detach() error { return nil }

// Drag builds the events of a press at from, a move and a release at to
func Drag(from, to types.Point) []selector.Event {
	mid := types.Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2}
	return []selector.Event{
		{Kind: selector.PointerDown, Point: from},
		{Kind: selector.PointerMove, Point: mid},
		{Kind: selector.PointerUp, Point: to},
	}
}

// Parse reads a gesture description:
//
//	"x0,y0:x1,y1"  drag from (x0,y0) to (x1,y1)
//	"full"         confirm the whole viewport
//	"esc"          press the cancel key
//
// Gestures may be chained with ';', e.g. "10,10:20,20;esc".
func Parse(spec string) ([]selector.Event, error) {
	var events []selector.Event
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		switch strings.ToLower(part) {
		case "":
			continue
		case "full":
			events = append(events, selector.Event{Kind: selector.ConfirmFull})
			continue
		case "esc", "escape", "cancel":
			events = append(events, selector.Event{Kind: selector.CancelKey})
			continue
		}

		ends := strings.Split(part, ":")
		if len(ends) != 2 {
			return nil, fmt.Errorf("invalid drag %q: want x0,y0:x1,y1", part)
		}
		from, err := parsePoint(ends[0])
		if err != nil {
			return nil, err
		}
		to, err := parsePoint(ends[1])
		if err != nil {
			return nil, err
		}
		events = append(events, Drag(from, to)...)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("empty gesture")
	}
	return events, nil
}

// ParseSize reads "WxH"
func ParseSize(s string) (types.Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return types.Size{}, fmt.Errorf("invalid size %q: want WxH", s)
	}
	w, err := parseNumber(parts[0])
	if err != nil {
		return types.Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := parseNumber(parts[1])
	if err != nil {
		return types.Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return types.Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return types.Size{Width: w, Height: h}, nil
}

func parsePoint(s string) (types.Point, error) {
	xy := strings.Split(strings.TrimSpace(s), ",")
	if len(xy) != 2 {
		return types.Point{}, fmt.Errorf("invalid point %q: want x,y", s)
	}
	x, err := parseNumber(xy[0])
	if err != nil {
		return types.Point{}, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := parseNumber(xy[1])
	if err != nil {
		return types.Point{}, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return types.Point{X: x, Y: y}, nil
}

// parseNumber accepts finite numbers only
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}
