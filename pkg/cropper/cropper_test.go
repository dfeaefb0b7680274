package cropper

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"strings"
	"testing"

	"github.com/menta2k/chart-qa/pkg/types"
)

// createTestImage creates a gradient so every pixel position is distinguishable
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), uint8((x / 256) + (y/256)*16), 255})
		}
	}
	return img
}

func sameSize(t *testing.T, img image.Image, w, h int) {
	t.Helper()
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		t.Errorf("Expected %dx%d, got %dx%d", w, h, b.Dx(), b.Dy())
	}
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.config.MaxDimension != 1024 {
		t.Errorf("Expected max dimension 1024, got %d", c.config.MaxDimension)
	}
	if c.config.Quality != 0.8 {
		t.Errorf("Expected quality 0.8, got %f", c.config.Quality)
	}
}

func TestNewWithConfigFillsDefaults(t *testing.T) {
	c := NewWithConfig(CropConfig{Quality: 3})
	if c.config.MaxDimension != DefaultMaxDimension || c.config.Quality != DefaultQuality || c.config.Format == "" {
		t.Errorf("Expected defaults, got %+v", c.config)
	}
}

func TestCropAtNativeSize(t *testing.T) {
	c := New()
	img := createTestImage(1920, 1080)

	res, err := c.Crop(img, types.Rect{X: 500, Y: 300, Width: 200, Height: 150}, types.Size{Width: 1920, Height: 1080})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	sameSize(t, res.Image, 200, 150)

	want := types.Rect{X: 500, Y: 300, Width: 200, Height: 150, Space: types.SpaceNative}
	if res.Native != want {
		t.Errorf("Expected native %v, got %v", want, res.Native)
	}
	if res.Scale != types.Identity {
		t.Errorf("Expected identity scale, got %+v", res.Scale)
	}

	got := color.NRGBAModel.Convert(res.Image.At(0, 0))
	if got != img.At(500, 300) {
		t.Errorf("Top-left pixel %v does not match source %v", got, img.At(500, 300))
	}
}

func TestCropDownscaledDisplay(t *testing.T) {
	c := New()
	img := createTestImage(3000, 2000)
	display := types.Size{Width: 1000, Height: 667}

	res, err := c.Crop(img, types.Rect{X: 100, Y: 100, Width: 100, Height: 100}, display)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	want := types.Rect{X: 300, Y: 300, Width: 300, Height: 300, Space: types.SpaceNative}
	if res.Native != want {
		t.Errorf("Expected %v, got %v", want, res.Native)
	}
	sameSize(t, res.Image, 300, 300)
}

func TestCropFullDisplayRect(t *testing.T) {
	c := New()
	img := createTestImage(3000, 2000)
	display := types.Size{Width: 1000, Height: 667}

	res, err := c.Crop(img, types.FullRect(display, types.SpaceDisplay), display)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	b := res.Image.Bounds()
	if math.Abs(float64(b.Dx()-3000)) > 1 || math.Abs(float64(b.Dy()-2000)) > 1 {
		t.Errorf("Full rect should crop to native size, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropScaleInvariance(t *testing.T) {
	c := New()
	img := createTestImage(1200, 800)

	half, err := c.Crop(img, types.Rect{X: 100, Y: 100, Width: 200, Height: 100}, types.Size{Width: 600, Height: 400})
	if err != nil {
		t.Fatalf("Crop at 50%% failed: %v", err)
	}
	full, err := c.Crop(img, types.Rect{X: 200, Y: 200, Width: 400, Height: 200}, types.Size{Width: 1200, Height: 800})
	if err != nil {
		t.Fatalf("Crop at 100%% failed: %v", err)
	}

	if half.Native != full.Native {
		t.Fatalf("Native rects differ: %v vs %v", half.Native, full.Native)
	}
	a := half.Image.(*image.NRGBA)
	b := full.Image.(*image.NRGBA)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("Crops at different display scales produced different pixels")
	}
}

func TestCropClampsOutOfBounds(t *testing.T) {
	c := New()
	img := createTestImage(400, 300)

	tests := []struct {
		name string
		rect types.Rect
		w, h int
	}{
		{"overhang", types.Rect{X: 350, Y: 250, Width: 200, Height: 200}, 50, 50},
		{"negative origin", types.Rect{X: -50, Y: -50, Width: 100, Height: 100}, 50, 50},
		{"outside", types.Rect{X: 900, Y: 900, Width: 10, Height: 10}, 1, 1},
		{"zero area", types.Rect{X: 10, Y: 10}, 1, 1},
	}

	for _, tt := range tests {
		res, err := c.Crop(img, tt.rect, types.Size{})
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		b := res.Image.Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("%s: expected %dx%d, got %dx%d", tt.name, tt.w, tt.h, b.Dx(), b.Dy())
		}
	}
}

func TestCropBytesDecodeError(t *testing.T) {
	c := New()
	_, err := c.CropBytes([]byte("definitely not an image"), types.Rect{Width: 10, Height: 10}, types.Size{})
	var de *types.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("Expected DecodeError, got %v", err)
	}
}

func TestCropBytesPNG(t *testing.T) {
	c := New()
	raw, err := c.Encode(createTestImage(200, 100), "png")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	res, err := c.CropBytes(raw, types.Rect{X: 10, Y: 10, Width: 50, Height: 20}, types.Size{Width: 100, Height: 50})
	if err != nil {
		t.Fatalf("CropBytes failed: %v", err)
	}
	sameSize(t, res.Image, 100, 40)
}

func TestCompress(t *testing.T) {
	c := New()
	out, err := c.Compress(createTestImage(2000, 1000), 1024, 0.8)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if strings.HasPrefix(out, "data:") {
		t.Error("Compressed payload must not carry a data URI prefix")
	}

	raw, err := base64.StdEncoding.DecodeString(out)
	if err != nil {
		t.Fatalf("Payload is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Payload is not JPEG: %v", err)
	}
	sameSize(t, img, 1024, 512)
}

func TestCompressSmallImageKeepsSize(t *testing.T) {
	c := New()
	out, err := c.CompressDefault(createTestImage(300, 200))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(out)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Payload is not JPEG: %v", err)
	}
	sameSize(t, img, 300, 200)
}

func BenchmarkCrop(b *testing.B) {
	c := New()
	img := createTestImage(1920, 1080)
	r := types.Rect{X: 100, Y: 100, Width: 400, Height: 300}
	display := types.Size{Width: 960, Height: 540}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Crop(img, r, display)
	}
}

func BenchmarkCompress(b *testing.B) {
	c := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CompressDefault(img)
	}
}
