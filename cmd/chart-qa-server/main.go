package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menta2k/chart-qa/internal/config"
	"github.com/menta2k/chart-qa/internal/logutil"
	"github.com/menta2k/chart-qa/pkg/client"
	"github.com/menta2k/chart-qa/pkg/llamacpp"
	"github.com/menta2k/chart-qa/pkg/ocr"
	"github.com/menta2k/chart-qa/pkg/ollama"
	"github.com/menta2k/chart-qa/pkg/server"
)

func main() {
	var configPath, backend, url, model, addr, lang, logFile string
	var maxDim, quality int
	var timeout time.Duration
	var verbose bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "JSON config file")
	flag.StringVar(&backend, "backend", "", "vision backend: ollama|llamacpp|ocr (default from config)")
	flag.StringVar(&url, "url", "", "backend URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "model name (default from config)")
	flag.StringVar(&addr, "listen", "", "listen address (default :5001)")
	flag.StringVar(&lang, "lang", "", "tesseract language for -backend ocr")
	flag.IntVar(&maxDim, "maxdim", 1024, "max long side of the image handed to the model")
	flag.IntVar(&quality, "quality", 90, "JPEG quality of the image handed to the model (1-100)")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "bound on one model call")
	flag.StringVar(&logFile, "log", "", "write logs to this file with rotation")
	flag.BoolVar(&verbose, "v", false, "log file and line")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if backend != "" {
		cfg.Backend.Kind = backend
	}
	if url != "" {
		cfg.Backend.URL = url
	}
	if model != "" {
		cfg.Backend.Model = model
	}
	if addr != "" {
		cfg.Backend.ListenAddr = addr
	}
	if lang != "" {
		cfg.Backend.OCRLanguage = lang
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	closeLog, err := logutil.Setup(cfg.Logging.File, verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	vision, closeVision, err := newVisionClient(cfg.Backend, url != "")
	if err != nil {
		logutil.Fatal(err)
	}
	defer closeVision()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := vision.Ping(pingCtx); err != nil {
		log.Printf("warning: %s not reachable yet: %v", vision.Name(), err)
	}
	cancel()

	srvConfig := server.DefaultConfig()
	srvConfig.Model = cfg.Backend.Model
	srvConfig.Device = cfg.Backend.Kind
	srvConfig.MaxDimension = maxDim
	srvConfig.Quality = quality
	srvConfig.AnalyzeTimeout = timeout

	srv := server.New(vision, srvConfig)
	if err := srv.ListenAndServe(ctx, cfg.Backend.ListenAddr); err != nil {
		logutil.Fatal(err)
	}
	log.Printf("server stopped")
}

// newVisionClient builds the configured backend. The config default URL
// targets Ollama, so llama.cpp falls back to its own default unless a URL
// was given explicitly.
func newVisionClient(b config.BackendConfig, explicitURL bool) (client.VisionClient, func(), error) {
	noop := func() {}

	switch b.Kind {
	case "ollama":
		c, err := ollama.NewClient(b.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, noop, nil
	case "llamacpp":
		u := b.URL
		if !explicitURL && u == config.Default().Backend.URL {
			u = llamacpp.DefaultURL
		}
		c, err := llamacpp.NewClient(u)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, noop, nil
	case "ocr":
		c, err := ocr.New(b.OCRLanguage)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create OCR client: %w", err)
		}
		return c, func() { c.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown backend: %s (use ollama, llamacpp or ocr)", b.Kind)
}
