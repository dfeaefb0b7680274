package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"

	"fyne.io/fyne/v2"

	chartqa "github.com/menta2k/chart-qa"
	"github.com/menta2k/chart-qa/internal/clipboard"
	"github.com/menta2k/chart-qa/pkg/host/browser"
	"github.com/menta2k/chart-qa/pkg/host/desktop"
	"github.com/menta2k/chart-qa/pkg/host/popup"
	"github.com/menta2k/chart-qa/pkg/host/scripted"
	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/session"
	"github.com/menta2k/chart-qa/pkg/types"
)

const (
	hostScripted = "scripted"
	hostBrowser  = "browser"
	hostDesktop  = "desktop"
	hostPopup    = "popup"
	hostFull     = "full"

	sourceScreen    = "screen"
	sourceClipboard = "clipboard"
	sourceBrowser   = "browser"
)

// source is where the capture comes from and where the selection happens
type source struct {
	capturer session.Capturer
	host     selector.Host
	close    func()
}

// resolveHost picks the selection host for a source when none is given and
// rejects pairs that cannot work
func resolveHost(in, host, drag string) (string, error) {
	host = strings.ToLower(host)
	if host == "" {
		switch {
		case drag != "":
			host = hostScripted
		case in == sourceBrowser:
			host = hostBrowser
		case in == sourceScreen:
			host = hostDesktop
		default:
			host = hostPopup
		}
	}

	switch host {
	case hostScripted:
		if drag == "" {
			return "", fmt.Errorf("-host scripted needs -drag")
		}
	case hostBrowser:
		if in != sourceBrowser {
			return "", fmt.Errorf("-host browser only works with -in browser")
		}
	case hostDesktop:
		if in != sourceScreen {
			return "", fmt.Errorf("-host desktop only works with -in screen")
		}
	case hostPopup, hostFull:
	default:
		return "", fmt.Errorf("unknown host %q (use scripted, browser, desktop, popup or full)", host)
	}
	return host, nil
}

// openSource builds the capturer for opts.in and the host for hostKind
func openSource(ctx context.Context, qa *chartqa.ChartQA, opts options, hostKind string, a fyne.App) (*source, error) {
	src := &source{close: func() {}}
	var native types.Size

	switch opts.in {
	case sourceScreen:
		d, err := desktop.New(opts.display)
		if err != nil {
			return nil, err
		}
		src.capturer = d
		if hostKind == hostDesktop {
			src.host = d
		}

	case sourceBrowser:
		b, err := browser.Launch(browser.Options{CDPURL: opts.cdpURL, Headless: opts.headless})
		if err != nil {
			return nil, err
		}
		if opts.page != "" {
			if err := b.Navigate(ctx, opts.page); err != nil {
				b.Close()
				return nil, err
			}
		}
		src.capturer = b
		src.close = b.Close
		if hostKind == hostBrowser {
			src.host = b.Host()
		}

	case sourceClipboard:
		img, err := clipboard.ReadImage()
		if err != nil {
			return nil, fmt.Errorf("failed to paste image: %w", err)
		}
		if err := qa.ValidateImage(img); err != nil {
			return nil, err
		}
		src.capturer = session.Static(img)
		native = sizeOf(img)

	default:
		img, err := qa.LoadImage(opts.in)
		if err != nil {
			return nil, fmt.Errorf("failed to load image: %w", err)
		}
		src.capturer = session.Static(img)
		native = sizeOf(img)
	}

	switch hostKind {
	case hostScripted:
		events, err := scripted.Parse(opts.drag)
		if err != nil {
			src.close()
			return nil, err
		}
		viewport := native
		if opts.viewport != "" {
			if viewport, err = scripted.ParseSize(opts.viewport); err != nil {
				src.close()
				return nil, err
			}
		}
		if viewport.IsZero() {
			src.close()
			return nil, fmt.Errorf("-viewport is required with -in %s", opts.in)
		}
		src.host = scripted.New(viewport, events...)

	case hostPopup:
		h := popup.New(a, qa.Config().Selection.PopupMaxSize)
		if opts.question != "" {
			h.SetTitle("Select Area: " + opts.question)
		}
		src.host = h
	}

	log.Printf("source %s, host %s", opts.in, hostKind)
	return src, nil
}

func sizeOf(img image.Image) types.Size {
	b := img.Bounds()
	return types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}
