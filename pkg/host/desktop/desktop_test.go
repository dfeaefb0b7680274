package desktop

import (
	"context"
	"image"
	"sync"
	"testing"

	hook "github.com/robotn/gohook"

	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

type fakeSource struct {
	mu     sync.Mutex
	events []hook.Event
	ended  int
}

func (f *fakeSource) Start() chan hook.Event {
	ch := make(chan hook.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	return ch
}

func (f *fakeSource) End() {
	f.mu.Lock()
	f.ended++
	f.mu.Unlock()
}

func newTestHost(src *fakeSource, bounds image.Rectangle) *Host {
	return &Host{
		bounds: func(int) image.Rectangle { return bounds },
		source: src,
	}
}

func TestTranslate(t *testing.T) {
	bounds := image.Rect(1920, 0, 3840, 1080)
	left := hook.MouseMap["left"]

	tests := []struct {
		name string
		ev   hook.Event
		kind selector.EventKind
		keep bool
	}{
		{"press", hook.Event{Kind: hook.MouseHold, Button: left, X: 2000, Y: 10}, selector.PointerDown, true},
		{"right press", hook.Event{Kind: hook.MouseHold, Button: hook.MouseMap["right"]}, 0, false},
		{"drag", hook.Event{Kind: hook.MouseDrag, X: 2100, Y: 20}, selector.PointerMove, true},
		{"release", hook.Event{Kind: hook.MouseUp, Button: left, X: 2200, Y: 30}, selector.PointerUp, true},
		{"double click", hook.Event{Kind: hook.MouseDown, Clicks: 2}, selector.ConfirmFull, true},
		{"single click", hook.Event{Kind: hook.MouseDown, Clicks: 1}, 0, false},
		{"escape", hook.Event{Kind: hook.KeyDown, Keycode: hook.Keycode["esc"]}, selector.CancelKey, true},
		{"other key", hook.Event{Kind: hook.KeyDown, Keycode: hook.Keycode["a"]}, 0, false},
		{"wheel", hook.Event{Kind: hook.MouseWheel}, 0, false},
	}

	for _, tt := range tests {
		ev, keep := translate(tt.ev, bounds)
		if keep != tt.keep {
			t.Errorf("%s: keep=%v, want %v", tt.name, keep, tt.keep)
			continue
		}
		if keep && ev.Kind != tt.kind {
			t.Errorf("%s: kind=%v, want %v", tt.name, ev.Kind, tt.kind)
		}
	}

	ev, _ := translate(hook.Event{Kind: hook.MouseHold, Button: left, X: 2000, Y: 10}, bounds)
	if ev.Point != (types.Point{X: 80, Y: 10}) {
		t.Errorf("Expected display-relative point, got %v", ev.Point)
	}
}

func TestHostDrivesManager(t *testing.T) {
	left := hook.MouseMap["left"]
	src := &fakeSource{events: []hook.Event{
		{Kind: hook.MouseHold, Button: left, X: 500, Y: 300},
		{Kind: hook.MouseDrag, X: 600, Y: 400},
		{Kind: hook.MouseUp, Button: left, X: 700, Y: 450},
	}}
	host := newTestHost(src, image.Rect(0, 0, 1920, 1080))

	res, err := selector.NewManager().Select(context.Background(), host)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	want := types.Rect{X: 500, Y: 300, Width: 200, Height: 150, Space: types.SpaceViewport}
	if !res.IsSelected() || res.Rect != want {
		t.Errorf("Expected %v, got %v", want, res)
	}
	if src.ended != 1 {
		t.Errorf("Expected hook to end once, got %d", src.ended)
	}

	// the hook slot is free again
	src.events = []hook.Event{{Kind: hook.KeyDown, Keycode: hook.Keycode["esc"]}}
	res, _ = selector.NewManager().Select(context.Background(), host)
	if res.Reason != types.ReasonUser {
		t.Errorf("Expected user cancelled, got %v", res)
	}
}

func TestHostDoubleClickSelectsDisplay(t *testing.T) {
	left := hook.MouseMap["left"]
	src := &fakeSource{events: []hook.Event{
		{Kind: hook.MouseHold, Button: left, X: 2000, Y: 50},
		{Kind: hook.MouseUp, Button: left, X: 2000, Y: 50},
		{Kind: hook.MouseDown, Button: left, X: 2000, Y: 50, Clicks: 1},
		{Kind: hook.MouseHold, Button: left, X: 2000, Y: 50},
		{Kind: hook.MouseUp, Button: left, X: 2000, Y: 50},
		{Kind: hook.MouseDown, Button: left, X: 2000, Y: 50, Clicks: 2},
	}}
	host := newTestHost(src, image.Rect(1920, 0, 3840, 1080))

	res, err := selector.NewManager().Select(context.Background(), host)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	want := types.Rect{Width: 1920, Height: 1080, Space: types.SpaceViewport}
	if !res.IsSelected() || res.Rect != want {
		t.Errorf("Expected whole display, got %v", res)
	}
}

func TestAttachRejectsSecondHook(t *testing.T) {
	host := newTestHost(&fakeSource{}, image.Rect(0, 0, 100, 100))
	ov, err := host.Attach(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := host.Attach(context.Background()); err == nil {
		t.Error("Expected second attach to fail while the hook runs")
	}
	ov.Detach()
	ov.Detach()

	ov, err = host.Attach(context.Background())
	if err != nil {
		t.Fatalf("Attach after detach failed: %v", err)
	}
	ov.Detach()
}
