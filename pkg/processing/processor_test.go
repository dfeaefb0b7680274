package processing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/chart-qa/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"png": PNG, ".JPG": JPEG, "jpeg": JPEG, "webp": WebP}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("gif"); err == nil {
		t.Error("Expected error for gif")
	}
}

func TestGetImageInfo(t *testing.T) {
	info := NewProcessor().GetImageInfo(createTestImage(400, 200))
	if info.Width != 400 || info.Height != 200 || info.Area != 80000 || info.AspectRatio != 2 {
		t.Errorf("Unexpected info %+v", info)
	}
	if info.Size() != (types.Size{Width: 400, Height: 200}) {
		t.Errorf("Unexpected size %+v", info.Size())
	}
}

func TestDecodeBytes(t *testing.T) {
	p := NewProcessor()
	img, err := p.DecodeBytes(encodePNG(t, createTestImage(30, 20)))
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Errorf("Unexpected bounds %v", img.Bounds())
	}

	for _, bad := range [][]byte{nil, []byte("garbage")} {
		_, err := p.DecodeBytes(bad)
		var de *types.DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Expected DecodeError for %q, got %v", bad, err)
		}
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	p := NewProcessor()
	uri := EncodeDataURI(encodePNG(t, createTestImage(16, 8)), PNG)
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("Unexpected prefix: %.30s", uri)
	}

	img, err := p.DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI failed: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("Expected width 16, got %d", img.Bounds().Dx())
	}

	if _, err := p.DecodeBase64(uri); err != nil {
		t.Errorf("DecodeBase64 should accept data URIs: %v", err)
	}
	if _, err := p.DecodeDataURI("data:image/png,rawtext"); err == nil {
		t.Error("Expected error for non-base64 data URI")
	}
	if _, err := p.DecodeBase64("!!!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestEncodeImage(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(64, 48)

	for _, f := range []Format{PNG, JPEG, WebP} {
		data, err := p.EncodeImage(img, f, 80, false)
		if err != nil {
			t.Errorf("%s: encode failed: %v", f, err)
			continue
		}
		back, err := p.DecodeBytes(data)
		if err != nil {
			t.Errorf("%s: decode failed: %v", f, err)
			continue
		}
		if back.Bounds().Dx() != 64 || back.Bounds().Dy() != 48 {
			t.Errorf("%s: unexpected bounds %v", f, back.Bounds())
		}
	}

	if _, err := p.EncodeImage(img, Format("tiff"), 80, false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(40, 30)

	for _, f := range []Format{PNG, JPEG, WebP} {
		path := filepath.Join(dir, "out."+string(f))
		if err := p.SaveImage(img, path, f, 90, true); err != nil {
			t.Fatalf("%s: save failed: %v", f, err)
		}
		loaded, err := p.LoadImageSmart(path)
		if err != nil {
			t.Fatalf("%s: load failed: %v", f, err)
		}
		if loaded.Bounds().Dx() != 40 {
			t.Errorf("%s: unexpected width %d", f, loaded.Bounds().Dx())
		}
	}

	if _, err := p.LoadImage(filepath.Join(dir, "missing.png")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestLoadImageFromURL(t *testing.T) {
	data := encodePNG(t, createTestImage(10, 10))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	if _, err := p.LoadImageSmart(srv.URL + "/chart.png"); err != nil {
		t.Errorf("Expected image download to succeed: %v", err)
	}
	if _, err := p.LoadImageFromURL(srv.URL + "/page"); err == nil {
		t.Error("Expected error for non-image content type")
	}
	if _, err := p.LoadImageFromURL(srv.URL + "/missing"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := p.LoadImageFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestFitWithin(t *testing.T) {
	p := NewProcessor()

	fitted := p.FitWithin(createTestImage(2048, 1024), 1024)
	if fitted.Bounds().Dx() != 1024 || fitted.Bounds().Dy() != 512 {
		t.Errorf("Expected 1024x512, got %v", fitted.Bounds())
	}

	small := createTestImage(100, 50)
	if p.FitWithin(small, 1024) != small {
		t.Error("Small images should be returned unchanged")
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 100)

	out := p.CreateDebugOverlay(img, types.Rect{X: 20, Y: 10, Width: 50, Height: 40, Space: types.SpaceNative})
	green := color.NRGBA{76, 175, 80, 255}

	if got := color.NRGBAModel.Convert(out.At(20, 10)); got != green {
		t.Errorf("Expected box corner to be drawn, got %v", got)
	}
	if got := color.NRGBAModel.Convert(out.At(45, 30)); got == green {
		t.Error("Box interior should be untouched")
	}
	if got := color.NRGBAModel.Convert(img.At(20, 10)); got == green {
		t.Error("Source image must not be modified")
	}
}
