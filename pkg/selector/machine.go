package selector

import (
	"github.com/menta2k/chart-qa/pkg/types"
)

// DefaultThreshold is the minimum width and height of a drag, in viewport pixels
const DefaultThreshold = 10

// State of a selection gesture
type State int

const (
	Idle State = iota
	Dragging
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Done:
		return "done"
	}
	return "unknown"
}

// EventKind enumerates the inputs a host can deliver
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	CancelKey
	ConfirmFull
	Interrupt
)

func (k EventKind) String() string {
	switch k {
	case PointerDown:
		return "pointer-down"
	case PointerMove:
		return "pointer-move"
	case PointerUp:
		return "pointer-up"
	case CancelKey:
		return "cancel-key"
	case ConfirmFull:
		return "confirm-full"
	case Interrupt:
		return "interrupt"
	}
	return "unknown"
}

// Event is a single host input in viewport coordinates
type Event struct {
	Kind  EventKind
	Point types.Point
	// Reason is only read for Interrupt
	Reason types.CancelReason
}

// Output is what a transition produces
type Output struct {
	// Live is the rubber band to draw while dragging
	Live *types.Rect
	// Result is set exactly once, on the transition into Done
	Result *types.SelectionResult
}

// Machine is the selection state machine. It is not safe for concurrent use;
// the Manager feeds it from a single goroutine.
type Machine struct {
	state     State
	start     types.Point
	threshold float64
	viewport  types.Size
}

// NewMachine creates a machine for a viewport of the given size
func NewMachine(viewport types.Size, threshold float64) *Machine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Machine{state: Idle, threshold: threshold, viewport: viewport}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Step applies one event
func (m *Machine) Step(ev Event) Output {
	if m.state == Done {
		return Output{}
	}

	switch ev.Kind {
	case PointerDown:
		// a second press while dragging restarts the gesture
		m.start = ev.Point
		m.state = Dragging
		live := types.Normalize(m.start, ev.Point, types.SpaceViewport)
		return Output{Live: &live}

	case PointerMove:
		if m.state != Dragging {
			return Output{}
		}
		live := types.Normalize(m.start, ev.Point, types.SpaceViewport)
		return Output{Live: &live}

	case PointerUp:
		if m.state != Dragging {
			return Output{}
		}
		rect := types.Normalize(m.start, ev.Point, types.SpaceViewport)
		if rect.TooSmall(m.threshold) {
			return m.finish(types.Cancelled(types.ReasonTooSmall))
		}
		return m.finish(types.Selected(rect))

	case CancelKey:
		return m.finish(types.Cancelled(types.ReasonUser))

	case ConfirmFull:
		return m.finish(types.Selected(types.FullRect(m.viewport, types.SpaceViewport)))

	case Interrupt:
		reason := ev.Reason
		if reason == "" {
			reason = types.ReasonTimeout
		}
		return m.finish(types.Cancelled(reason))
	}

	return Output{}
}

func (m *Machine) finish(res types.SelectionResult) Output {
	m.state = Done
	return Output{Result: &res}
}
