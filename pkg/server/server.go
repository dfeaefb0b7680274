// Package server is the analysis backend: it accepts a cropped chart and a
// question and answers with a vision model.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/chart-qa/pkg/client"
	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/types"
)

// Config controls how requests are prepared for the vision model
type Config struct {
	Model        string
	SystemPrompt string
	Device       string
	// MaxDimension bounds the long side of the image handed to the model
	MaxDimension int
	// Quality is the JPEG quality (1-100) of the re-encoded image
	Quality      int
	MaxBodyBytes int64
	// AnalyzeTimeout bounds one model call
	AnalyzeTimeout time.Duration
}

// DefaultConfig returns the settings of the reference backend
func DefaultConfig() Config {
	return Config{
		SystemPrompt:   client.DefaultSystemPrompt,
		Device:         "remote",
		MaxDimension:   1024,
		Quality:        90,
		MaxBodyBytes:   32 << 20,
		AnalyzeTimeout: 5 * time.Minute,
	}
}

// Server serves /health, /status and /analyze
type Server struct {
	vision    client.VisionClient
	processor *processing.Processor
	config    Config
}

// New creates a server. A nil vision client makes /analyze answer
// "Model not loaded".
func New(vision client.VisionClient, config Config) *Server {
	def := DefaultConfig()
	if config.SystemPrompt == "" {
		config.SystemPrompt = def.SystemPrompt
	}
	if config.Device == "" {
		config.Device = def.Device
	}
	if config.MaxDimension <= 0 {
		config.MaxDimension = def.MaxDimension
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if config.AnalyzeTimeout <= 0 {
		config.AnalyzeTimeout = def.AnalyzeTimeout
	}
	return &Server{
		vision:    vision,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Handler returns the routed handler wrapped with CORS
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	return corsMiddleware(mux)
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("Chart QA backend listening on %s", addr)
	if s.vision != nil {
		log.Printf("   Vision: %s model=%q", s.vision.Name(), s.config.Model)
	} else {
		log.Println("   Vision: none, /analyze will fail")
	}

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ── GET /health ────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, types.HealthStatus{
		Status:      "healthy",
		ModelLoaded: s.vision != nil,
		Device:      s.config.Device,
	})
}

// ── GET /status ────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := types.ServerStatus{
		ModelLoaded:     s.vision != nil,
		ProcessorLoaded: s.processor != nil,
		Device:          s.config.Device,
	}
	if s.vision != nil {
		st.ModelID = s.config.Model
		if st.ModelID == "" {
			st.ModelID = s.vision.Name()
		}
	}
	jsonResp(w, http.StatusOK, st)
}

// ── POST /analyze ──────────────────────────────────────────

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req *types.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonResp(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request too large"})
			return
		}
		jsonResp(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if req == nil {
		jsonResp(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if req.Image == "" {
		jsonResp(w, http.StatusBadRequest, map[string]string{"error": "No image data provided"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		jsonResp(w, http.StatusBadRequest, map[string]string{"error": "No question provided"})
		return
	}
	if s.vision == nil {
		jsonResp(w, http.StatusInternalServerError, map[string]string{"error": "Model not loaded"})
		return
	}

	log.Printf("Analyzing image with question: %s", question)
	start := time.Now()

	answer, err := s.analyze(r.Context(), req.Image, question)
	if err != nil {
		log.Printf("analyze failed: %v", err)
		jsonResp(w, http.StatusInternalServerError, types.AnalyzeResponse{Success: false, Error: err.Error()})
		return
	}

	log.Printf("Answered in %s", time.Since(start).Round(time.Millisecond))
	jsonResp(w, http.StatusOK, types.AnalyzeResponse{Success: true, Answer: answer, Question: req.Question})
}

// analyze decodes the upload, bounds its size, re-encodes it as JPEG and asks
// the vision model
func (s *Server) analyze(ctx context.Context, imgB64, question string) (string, error) {
	img, err := s.processor.DecodeBase64(imgB64)
	if err != nil {
		return "", err
	}

	before := s.processor.GetImageInfo(img)
	img = s.processor.FitWithin(img, s.config.MaxDimension)
	if after := s.processor.GetImageInfo(img); after.Width != before.Width {
		log.Printf("Resized image from %dx%d to %dx%d", before.Width, before.Height, after.Width, after.Height)
	}

	data, err := s.processor.EncodeImage(img, processing.JPEG, s.config.Quality, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.AnalyzeTimeout)
	defer cancel()

	raw, err := s.vision.Chat(ctx, client.Request{
		Model:    s.config.Model,
		System:   s.config.SystemPrompt,
		Prompt:   question,
		ImageB64: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", fmt.Errorf("vision model: %w", err)
	}
	return client.CleanAnswer(raw), nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonResp(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("json encode: %v", err)
	}
}
