// Package chartqa selects a region of a screenshot, crops it back to native
// pixels and asks a visual question about it.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		chartqa "github.com/menta2k/chart-qa"
//		"github.com/menta2k/chart-qa/pkg/types"
//	)
//
//	func main() {
//		qa, err := chartqa.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Region chosen on a 1000x667 preview of a 3000x2000 screenshot
//		region := types.Rect{X: 100, Y: 100, Width: 100, Height: 100}
//		preview := types.Size{Width: 1000, Height: 667}
//
//		result, err := qa.CropFile("dashboard.png", region, preview)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("native region:", result.Native)
//
//		answer, err := qa.Ask(context.Background(), result.Image, "Which quarter is highest?")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(answer)
//	}
//
// The package is a thin layer over:
//
// 1. Selector (pkg/selector): the drag state machine and overlay manager
// 2. Cropper (pkg/cropper): display to native mapping and compression
// 3. Backend (pkg/backend): the HTTP client for the analysis server
//
// Hosts for the selector live under pkg/host: a scripted host for tests and
// batch use, a Chrome page host, a desktop hook host and a fyne popup.
package chartqa

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/menta2k/chart-qa/internal/config"
	"github.com/menta2k/chart-qa/internal/utils"
	"github.com/menta2k/chart-qa/pkg/backend"
	"github.com/menta2k/chart-qa/pkg/cropper"
	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/selector"
	"github.com/menta2k/chart-qa/pkg/session"
	"github.com/menta2k/chart-qa/pkg/types"
)

// Version of the chart-qa library
const Version = "1.0.0"

var timeNow = time.Now

// ChartQA provides a high-level interface for cropping and asking
type ChartQA struct {
	config    *config.Config
	processor *processing.Processor
	cropper   *cropper.Cropper
	manager   *selector.Manager
	backend   *backend.Client
}

// New creates a ChartQA with default configuration
func New() (*ChartQA, error) {
	return NewWithConfig(config.Default())
}

// NewWithConfig creates a ChartQA from a validated configuration
func NewWithConfig(cfg *config.Config) (*ChartQA, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := processing.ParseFormat(cfg.Compression.Format)
	if err != nil {
		return nil, err
	}

	client, err := backend.NewClient(cfg.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	return &ChartQA{
		config:    cfg,
		processor: processing.NewProcessor(),
		cropper: cropper.NewWithConfig(cropper.CropConfig{
			MaxDimension: cfg.Compression.MaxDimension,
			Quality:      cfg.Compression.Quality,
			Format:       format,
		}),
		manager: selector.NewManagerWithConfig(selector.Config{
			Threshold: cfg.Selection.MinSize,
			Timeout:   cfg.Selection.Timeout(),
		}),
		backend: client,
	}, nil
}

// Config returns the active configuration
func (qa *ChartQA) Config() *config.Config {
	return qa.config
}

// Manager returns the selection manager shared by every flow
func (qa *ChartQA) Manager() *selector.Manager {
	return qa.manager
}

// Backend returns the analysis server client
func (qa *ChartQA) Backend() *backend.Client {
	return qa.backend
}

// LoadImage loads a path, URL or data URI and checks its size
func (qa *ChartQA) LoadImage(source string) (image.Image, error) {
	img, err := qa.processor.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	if err := qa.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// ValidateImage rejects images smaller than the minimum selection
func (qa *ChartQA) ValidateImage(img image.Image) error {
	minSize := int(math.Ceil(qa.config.Selection.MinSize))
	bounds := img.Bounds()
	if bounds.Dx() < minSize || bounds.Dy() < minSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", bounds.Dx(), bounds.Dy(), minSize)
	}
	return nil
}

// Crop maps a rectangle drawn over a displaySize preview of img back to
// native pixels and cuts it out. A zero displaySize means img was shown 1:1.
func (qa *ChartQA) Crop(img image.Image, display types.Rect, displaySize types.Size) (cropper.Result, error) {
	return qa.cropper.Crop(img, display, displaySize)
}

// CropFile loads source and crops it
func (qa *ChartQA) CropFile(source string, display types.Rect, displaySize types.Size) (cropper.Result, error) {
	img, err := qa.LoadImage(source)
	if err != nil {
		return cropper.Result{}, fmt.Errorf("failed to load image: %w", err)
	}
	return qa.Crop(img, display, displaySize)
}

// Compress returns the transmission copy of img as plain base64
func (qa *ChartQA) Compress(img image.Image) (string, error) {
	return qa.cropper.CompressDefault(img)
}

// Ask compresses img and sends it with question to the analysis server
func (qa *ChartQA) Ask(ctx context.Context, img image.Image, question string) (string, error) {
	payload, err := qa.Compress(img)
	if err != nil {
		return "", err
	}
	return qa.backend.Analyze(ctx, payload, question)
}

// Health probes the analysis server
func (qa *ChartQA) Health(ctx context.Context) (*types.HealthStatus, error) {
	return qa.backend.Health(ctx)
}

// Flow builds a select/crop/ask flow that captures with capturer
func (qa *ChartQA) Flow(capturer session.Capturer) *session.Flow {
	return session.NewFlow(qa.manager, qa.cropper, capturer, qa.backend)
}

// SaveImage writes img in the configured output format and returns the path
func (qa *ChartQA) SaveImage(img image.Image, source string) (string, error) {
	return qa.save(img, source, qa.config.Output.Suffix)
}

// SaveDebugOverlay saves the source with the native selection outlined
func (qa *ChartQA) SaveDebugOverlay(img image.Image, native types.Rect, source string) (string, error) {
	return qa.save(qa.DebugOverlay(img, native), source, "_debug")
}

func (qa *ChartQA) save(img image.Image, source, suffix string) (string, error) {
	out := qa.config.Output
	format, err := processing.ParseFormat(out.DefaultFormat)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(out.OutputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := utils.GenerateOutputFilename(utils.SourceName(source, timeNow()), out.OutputDir, out.Prefix, suffix, string(format))
	quality := int(math.Round(qa.config.Compression.Quality * 100))
	if err := qa.processor.SaveImage(img, path, format, quality, false); err != nil {
		return "", err
	}
	return path, nil
}

// DebugOverlay draws the native selection onto a copy of the source
func (qa *ChartQA) DebugOverlay(img image.Image, native types.Rect) image.Image {
	return qa.processor.CreateDebugOverlay(img, native)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
