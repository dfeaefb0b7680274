package selector

import "github.com/menta2k/chart-qa/pkg/types"

// PressFilter holds a pointer press back until the pointer moves away from
// it. A click that never moves reaches the machine as nothing at all, so the
// clicks leading up to a double-click cannot finish the gesture as too small.
// The zero value is ready to use.
type PressFilter struct {
	pressed  bool
	dragging bool
	origin   types.Point
}

// Filter maps one raw host event to the events the machine should see
func (f *PressFilter) Filter(ev Event) []Event {
	switch ev.Kind {
	case PointerDown:
		f.pressed = true
		f.dragging = false
		f.origin = ev.Point
		return nil

	case PointerMove:
		if !f.pressed {
			return nil
		}
		if f.dragging {
			return []Event{ev}
		}
		if ev.Point == f.origin {
			return nil
		}
		f.dragging = true
		return []Event{{Kind: PointerDown, Point: f.origin}, ev}

	case PointerUp:
		if !f.pressed {
			return nil
		}
		dragging := f.dragging
		f.pressed = false
		f.dragging = false
		if !dragging {
			return nil
		}
		return []Event{ev}

	case ConfirmFull, CancelKey, Interrupt:
		f.pressed = false
		f.dragging = false
	}
	return []Event{ev}
}
