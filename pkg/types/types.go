package types

import (
	"fmt"
	"math"
)

// Space names the pixel grid a rectangle is expressed in
type Space string

const (
	// SpaceViewport is relative to the visible browser window or screen
	SpaceViewport Space = "viewport"
	// SpaceDisplay is the grid of an image as rendered, possibly downscaled
	SpaceDisplay Space = "display"
	// SpaceNative is the grid of an image at its captured resolution
	SpaceNative Space = "native"
)

// Point is a pointer position
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether either dimension is not positive
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect is an axis aligned rectangle in an explicit coordinate space
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Space  Space   `json:"space,omitempty"`
}

// Normalize builds the rectangle spanned by two corner points regardless of
// drag direction.
func Normalize(a, b Point, space Space) Rect {
	return Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
		Space:  space,
	}
}

// FullRect covers a whole area of the given size
func FullRect(s Size, space Space) Rect {
	return Rect{X: 0, Y: 0, Width: s.Width, Height: s.Height, Space: space}
}

// TooSmall reports whether either dimension is under the threshold
func (r Rect) TooSmall(threshold float64) bool {
	return r.Width < threshold || r.Height < threshold
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Clamp restricts the rectangle to [0,W]x[0,H]. Edges that fall outside are
// pulled in rather than rejected.
func (r Rect) Clamp(bounds Size) Rect {
	x0 := clamp(r.X, 0, bounds.Width)
	y0 := clamp(r.Y, 0, bounds.Height)
	x1 := clamp(r.X+r.Width, 0, bounds.Width)
	y1 := clamp(r.Y+r.Height, 0, bounds.Height)
	return Rect{X: x0, Y: y0, Width: math.Max(0, x1-x0), Height: math.Max(0, y1-y0), Space: r.Space}
}

func (r Rect) String() string {
	space := r.Space
	if space == "" {
		space = "?"
	}
	return fmt.Sprintf("%s{x:%g y:%g w:%g h:%g}", space, r.X, r.Y, r.Width, r.Height)
}

// ScaleTransform relates a displayed raster to its native resolution
type ScaleTransform struct {
	SX float64 `json:"sx"`
	SY float64 `json:"sy"`
}

// Identity is the transform of a raster displayed at native size
var Identity = ScaleTransform{SX: 1, SY: 1}

// NewScaleTransform computes native/display ratios per axis. An unknown
// display size means no resizing was applied.
func NewScaleTransform(native, display Size) ScaleTransform {
	t := Identity
	if display.Width > 0 && native.Width > 0 {
		t.SX = native.Width / display.Width
	}
	if display.Height > 0 && native.Height > 0 {
		t.SY = native.Height / display.Height
	}
	return t
}

// Apply maps a display-space rectangle into native space
func (t ScaleTransform) Apply(r Rect) Rect {
	return Rect{
		X:      r.X * t.SX,
		Y:      r.Y * t.SY,
		Width:  r.Width * t.SX,
		Height: r.Height * t.SY,
		Space:  SpaceNative,
	}
}

// CancelReason explains why a selection produced no rectangle
type CancelReason string

const (
	ReasonTooSmall   CancelReason = "too small"
	ReasonUser       CancelReason = "user cancelled"
	ReasonTimeout    CancelReason = "timeout"
	ReasonSuperseded CancelReason = "superseded"
)

// SelectionResult is the single terminal outcome of a selector run
type SelectionResult struct {
	Rect   Rect         `json:"rect"`
	Reason CancelReason `json:"reason,omitempty"`
	ok     bool
}

// Selected wraps a finished rectangle
func Selected(r Rect) SelectionResult {
	return SelectionResult{Rect: r, ok: true}
}

// Cancelled wraps a cancellation
func Cancelled(reason CancelReason) SelectionResult {
	return SelectionResult{Reason: reason}
}

// IsSelected reports whether a rectangle was produced
func (s SelectionResult) IsSelected() bool {
	return s.ok
}

// Err maps a cancellation onto its error kind; nil when selected
func (s SelectionResult) Err() error {
	if s.ok {
		return nil
	}
	switch s.Reason {
	case ReasonTooSmall:
		return ErrSelectionTooSmall
	case ReasonUser:
		return ErrUserCancelled
	case ReasonSuperseded:
		return ErrSelectionSuperseded
	default:
		return ErrSelectionTimeout
	}
}

func (s SelectionResult) String() string {
	if s.ok {
		return "Selected(" + s.Rect.String() + ")"
	}
	return fmt.Sprintf("Cancelled(%q)", string(s.Reason))
}

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	Image    string `json:"image"`
	Question string `json:"question"`
}

// AnalyzeResponse is the body returned by POST /analyze
type AnalyzeResponse struct {
	Success  bool   `json:"success"`
	Answer   string `json:"answer,omitempty"`
	Question string `json:"question,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HealthStatus is the body returned by GET /health
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
}

// ServerStatus is the body returned by GET /status
type ServerStatus struct {
	ModelLoaded     bool   `json:"model_loaded"`
	ProcessorLoaded bool   `json:"processor_loaded"`
	Device          string `json:"device"`
	ModelID         string `json:"model_id,omitempty"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
