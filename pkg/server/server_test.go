package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/menta2k/chart-qa/pkg/backend"
	"github.com/menta2k/chart-qa/pkg/client"
	"github.com/menta2k/chart-qa/pkg/types"
)

type fakeVision struct {
	mu     sync.Mutex
	answer string
	err    error
	last   client.Request
	calls  int
}

func (f *fakeVision) Chat(ctx context.Context, r client.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = r
	f.calls++
	return f.answer, f.err
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return f.Chat(ctx, client.Request{Model: model, Prompt: prompt, ImageB64: imgB64})
}

func (f *fakeVision) Ping(ctx context.Context) error { return nil }

func (f *fakeVision) Name() string { return "fake" }

func pngB64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), 0, uint8(y), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %s", rec.Body.String())
	}
	return rec, out
}

func TestAnalyzeValidation(t *testing.T) {
	h := New(&fakeVision{answer: "x"}, Config{}).Handler()

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"empty body", ``, 400, "No data provided"},
		{"bad json", `{`, 400, "No data provided"},
		{"null body", `null`, 400, "No data provided"},
		{"no image", `{"question":"q"}`, 400, "No image data provided"},
		{"no question", `{"image":"abc"}`, 400, "No question provided"},
		{"blank question", `{"image":"abc","question":"  "}`, 400, "No question provided"},
	}

	for _, tt := range tests {
		rec, out := post(t, h, tt.body)
		if rec.Code != tt.code || out["error"] != tt.err {
			t.Errorf("%s: got %d %v, want %d %q", tt.name, rec.Code, out, tt.code, tt.err)
		}
	}
}

func TestAnalyzeModelNotLoaded(t *testing.T) {
	h := New(nil, Config{}).Handler()
	rec, out := post(t, h, `{"image":"abc","question":"q"}`)
	if rec.Code != 500 || out["error"] != "Model not loaded" {
		t.Errorf("got %d %v", rec.Code, out)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	vision := &fakeVision{answer: "user\nHow many?\nassistant\nThere are 3 bars."}
	h := New(vision, Config{Model: "llava", MaxDimension: 100}).Handler()

	body, _ := json.Marshal(types.AnalyzeRequest{Image: pngB64(t, 400, 200), Question: "How many?"})
	rec, out := post(t, h, string(body))
	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d %v", rec.Code, out)
	}
	if out["success"] != true || out["answer"] != "There are 3 bars." || out["question"] != "How many?" {
		t.Errorf("Unexpected response %v", out)
	}

	if vision.last.System != client.DefaultSystemPrompt || vision.last.Model != "llava" {
		t.Errorf("Unexpected request %+v", vision.last)
	}
	raw, err := base64.StdEncoding.DecodeString(vision.last.ImageB64)
	if err != nil {
		t.Fatalf("model image is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("model image is not JPEG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("Expected image bounded to 100x50, got %v", img.Bounds())
	}
}

func TestAnalyzeFailures(t *testing.T) {
	vision := &fakeVision{err: errors.New("out of memory")}
	h := New(vision, Config{}).Handler()

	body, _ := json.Marshal(types.AnalyzeRequest{Image: pngB64(t, 10, 10), Question: "q"})
	rec, out := post(t, h, string(body))
	if rec.Code != 500 || out["success"] != false || !strings.Contains(out["error"].(string), "out of memory") {
		t.Errorf("got %d %v", rec.Code, out)
	}

	rec, out = post(t, h, `{"image":"not-an-image","question":"q"}`)
	if rec.Code != 500 || out["success"] != false {
		t.Errorf("Expected decode failure, got %d %v", rec.Code, out)
	}
	if vision.calls != 1 {
		t.Errorf("Model should not be called for undecodable images, got %d calls", vision.calls)
	}
}

func TestAnalyzeBodyLimit(t *testing.T) {
	h := New(&fakeVision{}, Config{MaxBodyBytes: 64}).Handler()
	body := `{"image":"` + strings.Repeat("A", 200) + `","question":"q"}`
	rec, _ := post(t, h, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := New(nil, Config{}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestBackendClientRoundTrip(t *testing.T) {
	vision := &fakeVision{answer: "Revenue grew 12%."}
	srv := httptest.NewServer(New(vision, Config{Model: "m", Device: "cpu"}).Handler())
	defer srv.Close()

	c, err := backend.NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	health, err := c.Health(context.Background())
	if err != nil || health.Status != "healthy" || !health.ModelLoaded || health.Device != "cpu" {
		t.Errorf("Unexpected health %+v %v", health, err)
	}

	st, err := c.Status(context.Background())
	if err != nil || st.ModelID != "m" || !st.ProcessorLoaded {
		t.Errorf("Unexpected status %+v %v", st, err)
	}

	answer, err := c.Analyze(context.Background(), pngB64(t, 50, 50), "Growth?")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if answer != "Revenue grew 12%." {
		t.Errorf("Unexpected answer %q", answer)
	}

	_, err = c.Analyze(context.Background(), "", "Growth?")
	if !errors.Is(err, types.ErrBackend) || !strings.Contains(err.Error(), "No image data provided") {
		t.Errorf("Expected backend error, got %v", err)
	}
}

func TestListenAndServeStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(nil, Config{}).ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
