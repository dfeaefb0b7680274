// Package browser hosts the selection overlay inside a Chrome tab driven over
// the DevTools protocol, and captures the tab as the screenshot source.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/types"
)

// OverlayID is the DOM id of the injected overlay
const OverlayID = "chart-qa-selection-overlay"

const bindingName = "__chartQASelect"

const actionTimeout = 10 * time.Second

//go:embed overlay.js
var overlayJS string

// Options selects how Chrome is reached
type Options struct {
	// CDPURL connects to a running Chrome (ws:// or http://host:9222); empty launches one
	CDPURL     string
	Headless   bool
	ProfileDir string
	// URL is opened once the tab is ready
	URL string
}

// Browser owns one Chrome tab
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	processor   *processing.Processor
}

// Launch starts or connects to Chrome and prepares a tab
func Launch(opts Options) (*Browser, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if opts.CDPURL != "" {
		log.Printf("Connecting to Chrome at %s", opts.CDPURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.CDPURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-popup-blocking", true),
		)
		if opts.ProfileDir != "" {
			execOpts = append(execOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		if !opts.Headless {
			execOpts = append(execOpts, chromedp.Flag("headless", false))
		}
		log.Printf("Launching Chrome (headless: %v)", opts.Headless)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("cannot start Chrome: %w", err)
	}

	b := &Browser{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		processor:   processing.NewProcessor(),
	}
	if opts.URL != "" {
		if err := b.Navigate(context.Background(), opts.URL); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// Close shuts the tab and, when launched locally, Chrome
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}

// Navigate opens url in the tab
func (b *Browser) Navigate(ctx context.Context, url string) error {
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Capture implements session.Capturer. The PNG is at device pixels, so on
// HiDPI screens it is larger than the viewport.
func (b *Browser) Capture(ctx context.Context) (image.Image, error) {
	var buf []byte
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return b.processor.DecodeBytes(buf)
}

// Host returns the selection host for this tab
func (b *Browser) Host() *Host {
	return &Host{browser: b}
}

// run executes actions on the tab, bounded by actionTimeout and by ctx
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	tCtx, tCancel := context.WithTimeout(b.ctx, actionTimeout)
	defer tCancel()

	stop := context.AfterFunc(ctx, tCancel)
	defer stop()

	return chromedp.Run(tCtx, actions...)
}

// Host implements selector.Host over the tab
type Host struct {
	browser *Browser
}

// Capability implements selector.Host
func (h *Host) Capability() selector.Capability {
	return selector.CapabilityPage
}

// Attach injects the overlay and starts forwarding its events
func (h *Host) Attach(ctx context.Context) (selector.Overlay, error) {
	b := h.browser
	listenCtx, listenCancel := context.WithCancel(b.ctx)

	o := &overlay{
		browser: b,
		ctx:     listenCtx,
		cancel:  listenCancel,
		queue:   selector.NewQueue(),
		pending: make(chan types.Rect, 1),
	}

	chromedp.ListenTarget(listenCtx, o.onTargetEvent)

	var vp struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	err := b.run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.Evaluate(fmt.Sprintf("(%s)(%q)", overlayJS, bindingName), &vp),
	)
	if err != nil {
		o.teardown()
		return nil, fmt.Errorf("inject overlay: %w", err)
	}
	o.viewport = types.Size{Width: vp.Width, Height: vp.Height}

	go o.renderLoop()
	return o, nil
}

type overlay struct {
	browser  *Browser
	ctx      context.Context
	cancel   context.CancelFunc
	viewport types.Size
	queue    *selector.Queue
	pending  chan types.Rect
	once     sync.Once

	mu    sync.Mutex
	press selector.PressFilter
}

func (o *overlay) Events() <-chan selector.Event { return o.queue.Events() }

func (o *overlay) Viewport() types.Size { return o.viewport }

// Render keeps only the newest rectangle; drawing happens off the event path
func (o *overlay) Render(r types.Rect) {
	select {
	case <-o.pending:
	default:
	}
	select {
	case o.pending <- r:
	default:
	}
}

func (o *overlay) renderLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case r := <-o.pending:
			js := fmt.Sprintf("window.__chartQA && window.__chartQA.draw(%g,%g,%g,%g)", r.X, r.Y, r.Width, r.Height)
			if err := chromedp.Run(o.ctx, chromedp.Evaluate(js, nil)); err != nil && o.ctx.Err() == nil {
				log.Printf("browser: draw failed: %v", err)
			}
		}
	}
}

// Detach removes the overlay nodes, its listeners and the binding
func (o *overlay) Detach() error {
	var err error
	o.once.Do(func() {
		o.teardown()
		err = o.browser.run(context.Background(),
			chromedp.Evaluate("window.__chartQA && window.__chartQA.remove()", nil),
			runtime.RemoveBinding(bindingName),
		)
		if err != nil {
			err = fmt.Errorf("remove overlay: %w", err)
		}
	})
	return err
}

func (o *overlay) teardown() {
	o.cancel()
	o.queue.Close()
}

func (o *overlay) onTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		if err := o.deliver(e.Payload); err != nil {
			log.Printf("browser: %v", err)
		}
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			o.queue.Push(selector.Event{Kind: selector.Interrupt, Reason: types.ReasonTimeout})
		}
	case *inspector.EventDetached:
		o.queue.Close()
	}
}

// deliver decodes one overlay message and queues what the machine should see
func (o *overlay) deliver(payload string) error {
	ev, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, out := range o.press.Filter(ev) {
		o.queue.Push(out)
	}
	return nil
}

type bindingMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// decodeEvent maps an overlay message onto a selector event
func decodeEvent(payload string) (selector.Event, error) {
	var msg bindingMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return selector.Event{}, fmt.Errorf("bad overlay message %q: %w", payload, err)
	}
	pt := types.Point{X: msg.X, Y: msg.Y}
	switch msg.Type {
	case "down":
		return selector.Event{Kind: selector.PointerDown, Point: pt}, nil
	case "move":
		return selector.Event{Kind: selector.PointerMove, Point: pt}, nil
	case "up":
		return selector.Event{Kind: selector.PointerUp, Point: pt}, nil
	case "full":
		return selector.Event{Kind: selector.ConfirmFull}, nil
	case "cancel":
		return selector.Event{Kind: selector.CancelKey}, nil
	}
	return selector.Event{}, fmt.Errorf("unknown overlay message type %q", msg.Type)
}

// OverlayPresent reports whether an overlay node is in the page
func (b *Browser) OverlayPresent(ctx context.Context) (bool, error) {
	var present bool
	err := b.run(ctx, chromedp.Evaluate(fmt.Sprintf("!!document.getElementById(%q)", OverlayID), &present))
	return present, err
}
