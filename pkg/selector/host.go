package selector

import (
	"context"
	"image"

	"github.com/menta2k/chart-qa/pkg/types"
)

// Capability describes where a host is able to draw its overlay
type Capability int

const (
	// CapabilityPage hosts can cover an arbitrary page or screen. Selection
	// happens on the live surface and the screenshot is taken afterwards.
	CapabilityPage Capability = iota
	// CapabilityPopup hosts can only render inside their own window. They
	// need the screenshot up front and select in display space.
	CapabilityPopup
)

func (c Capability) String() string {
	if c == CapabilityPopup {
		return "popup"
	}
	return "page"
}

// Host creates overlays for one hosting context. Attach must leave nothing
// behind when it returns an error.
type Host interface {
	Capability() Capability
	Attach(ctx context.Context) (Overlay, error)
}

// BackdropHost is a popup host that shows a captured image under the overlay
type BackdropHost interface {
	Host
	SetBackdrop(img image.Image)
}

// Overlay is a single attached selection surface
type Overlay interface {
	// Events delivers pointer and key input in viewport coordinates. Closing
	// the channel means the surface went away.
	Events() <-chan Event
	// Viewport is the size of the selectable area
	Viewport() types.Size
	// Render draws the live rubber band; purely cosmetic
	Render(r types.Rect)
	// Detach removes every element and listener the overlay installed
	Detach() error
}
