package cropper

import (
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/types"
)

// Defaults for the transmission copy
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 0.8
)

// Cropper cuts selections out of captured rasters
type Cropper struct {
	processor *processing.Processor
	config    CropConfig
}

// CropConfig holds configuration for cropping and compression
type CropConfig struct {
	// MaxDimension bounds the long side of the compressed copy
	MaxDimension int
	// Quality is the lossy encoder quality in (0,1]
	Quality float64
	// Format is the encoding of the compressed copy
	Format processing.Format
}

// DefaultConfig returns the compression settings used by the extension
func DefaultConfig() CropConfig {
	return CropConfig{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		Format:       processing.JPEG,
	}
}

// New creates a new Cropper with default configuration
func New() *Cropper {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Cropper with custom configuration
func NewWithConfig(config CropConfig) *Cropper {
	if config.MaxDimension <= 0 {
		config.MaxDimension = DefaultMaxDimension
	}
	if config.Quality <= 0 || config.Quality > 1 {
		config.Quality = DefaultQuality
	}
	if config.Format == "" {
		config.Format = processing.JPEG
	}
	return &Cropper{
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Config returns the active configuration
func (c *Cropper) Config() CropConfig {
	return c.config
}

// Result contains the outcome of a crop
type Result struct {
	Image  image.Image          `json:"-"`
	Native types.Rect           `json:"native"`
	Scale  types.ScaleTransform `json:"scale"`
}

// Crop extracts the region selected over a displayed copy of src.
// displaySize is the size src was shown at; a zero size means src was shown
// at native resolution.
func (c *Cropper) Crop(src image.Image, display types.Rect, displaySize types.Size) (Result, error) {
	bounds := src.Bounds()
	native := types.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}
	if native.IsZero() {
		return Result{}, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}
	if displaySize.IsZero() {
		displaySize = native
	}

	scale := types.NewScaleTransform(native, displaySize)
	nr := scale.Apply(display.Clamp(displaySize))
	rect := nativeBounds(nr, bounds.Dx(), bounds.Dy())

	cropped := imaging.Crop(src, rect.Add(bounds.Min))

	return Result{
		Image: cropped,
		Native: types.Rect{
			X:      float64(rect.Min.X),
			Y:      float64(rect.Min.Y),
			Width:  float64(rect.Dx()),
			Height: float64(rect.Dy()),
			Space:  types.SpaceNative,
		},
		Scale: scale,
	}, nil
}

// CropBytes decodes raw screenshot bytes and crops them. Undecodable input is
// reported as *types.DecodeError.
func (c *Cropper) CropBytes(raw []byte, display types.Rect, displaySize types.Size) (Result, error) {
	img, err := c.processor.DecodeBytes(raw)
	if err != nil {
		return Result{}, err
	}
	return c.Crop(img, display, displaySize)
}

// CropDataURI is CropBytes for a data URI screenshot
func (c *Cropper) CropDataURI(uri string, display types.Rect, displaySize types.Size) (Result, error) {
	img, err := c.processor.DecodeDataURI(uri)
	if err != nil {
		return Result{}, err
	}
	return c.Crop(img, display, displaySize)
}

// Encode produces the working copy (PNG) or a lossy copy at the configured quality
func (c *Cropper) Encode(img image.Image, format processing.Format) ([]byte, error) {
	return c.processor.EncodeImage(img, format, c.quality(), false)
}

// Compress downsizes img to fit maxDim and re-encodes it, returning plain
// base64 without a data URI prefix.
func (c *Cropper) Compress(img image.Image, maxDim int, quality float64) (string, error) {
	if maxDim <= 0 {
		maxDim = c.config.MaxDimension
	}
	if quality <= 0 || quality > 1 {
		quality = c.config.Quality
	}

	fitted := c.processor.FitWithin(img, maxDim)
	data, err := c.processor.EncodeImage(fitted, c.config.Format, int(math.Round(quality*100)), false)
	if err != nil {
		return "", fmt.Errorf("failed to compress image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// CompressDefault compresses with the configured bound and quality
func (c *Cropper) CompressDefault(img image.Image) (string, error) {
	return c.Compress(img, c.config.MaxDimension, c.config.Quality)
}

func (c *Cropper) quality() int {
	return int(math.Round(c.config.Quality * 100))
}

// nativeBounds rounds a native rectangle to pixels, at least 1x1 and inside w x h
func nativeBounds(r types.Rect, w, h int) image.Rectangle {
	x := int(math.Round(r.X))
	y := int(math.Round(r.Y))
	rw := int(math.Round(r.Width))
	rh := int(math.Round(r.Height))

	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	rw = clampInt(rw, 1, w-x)
	rh = clampInt(rh, 1, h-y)

	return image.Rect(x, y, x+rw, y+rh)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
