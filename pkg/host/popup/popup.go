// Package popup selects a region inside its own fyne window. The captured
// screenshot is shown downscaled and the selection is made in that display
// space, so the cropper has to rescale it to native pixels.
package popup

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

// DefaultMaxSize bounds the longer side of the displayed image
const DefaultMaxSize = 800

const defaultTitle = "Select Area to Analyze"

var (
	// ErrNoBackdrop is returned by Attach before SetBackdrop was called
	ErrNoBackdrop = errors.New("popup: no image to select from")

	bandStroke = color.NRGBA{R: 76, G: 175, B: 80, A: 255}
	bandFill   = color.NRGBA{R: 76, G: 175, B: 80, A: 51}
)

// Host opens one window per selection on a running fyne app
type Host struct {
	app     fyne.App
	maxSize int
	title   string

	mu       sync.Mutex
	backdrop image.Image
}

// New creates a popup host. maxSize <= 0 uses DefaultMaxSize.
func New(app fyne.App, maxSize int) *Host {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Host{app: app, maxSize: maxSize, title: defaultTitle}
}

// SetTitle changes the window title used by later selections
func (h *Host) SetTitle(title string) {
	h.mu.Lock()
	h.title = title
	h.mu.Unlock()
}

// Capability implements selector.Host
func (h *Host) Capability() selector.Capability {
	return selector.CapabilityPopup
}

// SetBackdrop implements selector.BackdropHost
func (h *Host) SetBackdrop(img image.Image) {
	h.mu.Lock()
	h.backdrop = img
	h.mu.Unlock()
}

// Attach opens the selection window and blocks until it is shown
func (h *Host) Attach(ctx context.Context) (selector.Overlay, error) {
	h.mu.Lock()
	img, title := h.backdrop, h.title
	h.mu.Unlock()
	if img == nil {
		return nil, ErrNoBackdrop
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	display := FitSize(img.Bounds().Dx(), img.Bounds().Dy(), h.maxSize)
	if display.IsZero() {
		return nil, errors.New("popup: backdrop has no pixels")
	}
	shown := processing.NewProcessor().FitWithin(img, h.maxSize)

	o := &overlay{
		queue:   selector.NewQueue(),
		display: display,
	}
	fyne.DoAndWait(func() {
		o.open(h.app, title, shown)
	})
	return o, nil
}

// FitSize scales width x height down so the longer side is at most maxSize
func FitSize(width, height, maxSize int) types.Size {
	w, h := float64(width), float64(height)
	if w <= 0 || h <= 0 {
		return types.Size{}
	}
	if maxSize > 0 && (w > float64(maxSize) || h > float64(maxSize)) {
		scale := float64(maxSize) / math.Max(w, h)
		w = math.Round(w * scale)
		h = math.Round(h * scale)
	}
	return types.Size{Width: w, Height: h}
}

type overlay struct {
	queue   *selector.Queue
	display types.Size
	once    sync.Once

	// only touched on the fyne main goroutine
	window  fyne.Window
	surface *surface
	closing bool
}

func (o *overlay) open(app fyne.App, title string, img image.Image) {
	o.surface = newSurface(img, o.display, o.queue.Push)

	w := app.NewWindow(title)
	w.SetPadded(false)
	w.SetFixedSize(true)
	w.SetContent(o.surface)
	w.Resize(o.surface.MinSize())
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if kind, ok := keyEvent(ev.Name); ok {
			o.queue.Push(selector.Event{Kind: kind})
		}
	})
	// closing the window by hand ends the stream
	w.SetOnClosed(func() {
		o.queue.Close()
	})
	w.CenterOnScreen()
	w.Show()
	o.window = w
}

func (o *overlay) Events() <-chan selector.Event { return o.queue.Events() }

func (o *overlay) Viewport() types.Size { return o.display }

func (o *overlay) Render(r types.Rect) {
	fyne.Do(func() {
		if o.closing {
			return
		}
		o.surface.showBand(r)
	})
}

// Detach closes the window; the close itself runs on the UI goroutine
func (o *overlay) Detach() error {
	o.once.Do(func() {
		o.queue.Close()
		fyne.Do(func() {
			o.closing = true
			if o.window != nil {
				o.window.Close()
			}
		})
	})
	return nil
}

func keyEvent(name fyne.KeyName) (selector.EventKind, bool) {
	switch name {
	case fyne.KeyEscape:
		return selector.CancelKey, true
	case fyne.KeyReturn, fyne.KeyEnter:
		return selector.ConfirmFull, true
	}
	return 0, false
}

// surface shows the backdrop and turns pointer input into selector events.
// A press is only reported once the pointer moves, so the clicks of a double
// click do not end the gesture before DoubleTapped arrives.
type surface struct {
	widget.BaseWidget

	image *canvas.Image
	band  *canvas.Rectangle
	size  fyne.Size
	emit  func(selector.Event)

	pressed  bool
	dragging bool
	origin   fyne.Position
	last     fyne.Position
}

func newSurface(img image.Image, display types.Size, emit func(selector.Event)) *surface {
	size := fyne.NewSize(float32(display.Width), float32(display.Height))

	var picture *canvas.Image
	if img != nil {
		picture = canvas.NewImageFromImage(img)
		picture.FillMode = canvas.ImageFillStretch
		picture.ScaleMode = canvas.ImageScaleSmooth
		picture.SetMinSize(size)
	}

	band := canvas.NewRectangle(bandFill)
	band.StrokeColor = bandStroke
	band.StrokeWidth = 3
	band.Hide()

	s := &surface{image: picture, band: band, size: size, emit: emit}
	s.ExtendBaseWidget(s)
	return s
}

func (s *surface) CreateRenderer() fyne.WidgetRenderer {
	return &surfaceRenderer{s: s}
}

func (s *surface) MinSize() fyne.Size { return s.size }

func (s *surface) showBand(r types.Rect) {
	s.band.Move(fyne.NewPos(float32(r.X), float32(r.Y)))
	s.band.Resize(fyne.NewSize(float32(r.Width), float32(r.Height)))
	s.band.Show()
	s.band.Refresh()
}

func (s *surface) point(p fyne.Position) types.Point {
	return types.Point{X: float64(p.X), Y: float64(p.Y)}
}

// MouseDown implements desktop.Mouseable
func (s *surface) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	s.pressed = true
	s.dragging = false
	s.origin = ev.Position
	s.last = ev.Position
}

// MouseUp implements desktop.Mouseable
func (s *surface) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	s.release(ev.Position)
}

// MouseIn implements desktop.Hoverable
func (s *surface) MouseIn(*desktop.MouseEvent) {}

// MouseMoved implements desktop.Hoverable
func (s *surface) MouseMoved(ev *desktop.MouseEvent) {
	s.move(ev.Position)
}

// MouseOut implements desktop.Hoverable
func (s *surface) MouseOut() {}

// Dragged implements fyne.Draggable
func (s *surface) Dragged(ev *fyne.DragEvent) {
	s.move(ev.Position)
}

// DragEnd implements fyne.Draggable
func (s *surface) DragEnd() {
	s.release(s.last)
}

// DoubleTapped implements fyne.DoubleTappable
func (s *surface) DoubleTapped(*fyne.PointEvent) {
	s.pressed = false
	s.dragging = false
	s.emit(selector.Event{Kind: selector.ConfirmFull})
}

func (s *surface) move(p fyne.Position) {
	if !s.pressed || (p == s.last && !s.dragging) {
		return
	}
	s.last = p
	if !s.dragging {
		s.dragging = true
		s.emit(selector.Event{Kind: selector.PointerDown, Point: s.point(s.origin)})
	}
	s.emit(selector.Event{Kind: selector.PointerMove, Point: s.point(p)})
}

func (s *surface) release(p fyne.Position) {
	if !s.pressed {
		return
	}
	s.pressed = false
	if !s.dragging {
		return
	}
	s.dragging = false
	s.emit(selector.Event{Kind: selector.PointerUp, Point: s.point(p)})
}

type surfaceRenderer struct {
	s *surface
}

func (r *surfaceRenderer) Layout(size fyne.Size) {
	if r.s.image != nil {
		r.s.image.Move(fyne.NewPos(0, 0))
		r.s.image.Resize(r.s.size)
	}
}

func (r *surfaceRenderer) MinSize() fyne.Size { return r.s.size }

func (r *surfaceRenderer) Refresh() {
	r.Layout(r.s.Size())
	if r.s.image != nil {
		r.s.image.Refresh()
	}
	r.s.band.Refresh()
}

func (r *surfaceRenderer) Objects() []fyne.CanvasObject {
	if r.s.image == nil {
		return []fyne.CanvasObject{r.s.band}
	}
	return []fyne.CanvasObject{r.s.image, r.s.band}
}

func (r *surfaceRenderer) Destroy() {}
