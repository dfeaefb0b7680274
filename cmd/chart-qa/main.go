package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	chartqa "github.com/menta2k/chart-qa"
	"github.com/menta2k/chart-qa/internal/clipboard"
	"github.com/menta2k/chart-qa/internal/config"
	"github.com/menta2k/chart-qa/internal/logutil"
	"github.com/menta2k/chart-qa/internal/utils"
	"github.com/menta2k/chart-qa/pkg/processing"
	"github.com/menta2k/chart-qa/pkg/session"
	"github.com/menta2k/chart-qa/pkg/types"
)

const appID = "io.github.menta2k.chartqa"

type options struct {
	in         string
	host       string
	drag       string
	viewport   string
	question   string
	server     string
	configPath string
	outDir     string
	ext        string
	logFile    string
	cdpURL     string
	page       string
	display    int
	headless   bool
	debug      bool
	copyAnswer bool
	health     bool
	noSave     bool
	verbose    bool
	version    bool
}

func main() {
	var opts options

	flag.StringVar(&opts.in, "in", "", "image source: path, URL, data URI, screen, clipboard or browser")
	flag.StringVar(&opts.host, "host", "", "selection host: scripted|browser|desktop|popup|full (default depends on -in)")
	flag.StringVar(&opts.drag, "drag", "", "scripted gesture, e.g. 500,300:700,450 or full or esc")
	flag.StringVar(&opts.viewport, "viewport", "", "scripted viewport WxH (default: image size)")
	flag.StringVar(&opts.question, "q", "", "question to ask about the selected region")
	flag.StringVar(&opts.server, "server", "", "analysis server URL (default from config)")
	flag.StringVar(&opts.configPath, "config", config.GetConfigPath(), "JSON config file")
	flag.StringVar(&opts.outDir, "out", "", "output directory for the crop (default from config)")
	flag.StringVar(&opts.ext, "ext", "", "crop format: png|jpg|webp (default from config)")
	flag.StringVar(&opts.logFile, "log", "", "write logs to this file with rotation")
	flag.StringVar(&opts.cdpURL, "cdp", "", "DevTools URL of a running Chrome for -in browser")
	flag.StringVar(&opts.page, "page", "", "URL to open for -in browser")
	flag.IntVar(&opts.display, "display", 0, "display index for -in screen")
	flag.BoolVar(&opts.headless, "headless", false, "launch Chrome headless for -in browser")
	flag.BoolVar(&opts.debug, "debug", false, "also save the source with the selection outlined")
	flag.BoolVar(&opts.copyAnswer, "copy", false, "copy the answer to the clipboard")
	flag.BoolVar(&opts.health, "health", false, "probe the analysis server and exit")
	flag.BoolVar(&opts.noSave, "nosave", false, "do not write the crop to disk")
	flag.BoolVar(&opts.verbose, "v", false, "log file and line")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()

	if opts.version {
		fmt.Println("chart-qa", chartqa.GetVersion())
		return
	}
	if opts.in == "" && !opts.health {
		log.Fatalf("usage: %s -in image|URL|screen|clipboard|browser [-host scripted|browser|desktop|popup|full] [-drag x0,y0:x1,y1] [-q question] [-server url]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal(err)
	}

	closeLog, err := logutil.Setup(cfg.Logging.File, opts.verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	qa, err := chartqa.NewWithConfig(cfg)
	if err != nil {
		logutil.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.health {
		if err := printHealth(ctx, qa); err != nil {
			logutil.Fatal(err)
		}
		return
	}

	hostKind, err := resolveHost(opts.in, opts.host, opts.drag)
	if err != nil {
		logutil.Fatal(err)
	}

	var runErr error
	if hostKind == hostPopup {
		// fyne must own the main goroutine
		a := app.NewWithID(appID)
		done := make(chan struct{})
		go func() {
			defer close(done)
			runErr = run(ctx, qa, opts, hostKind, a)
			fyne.Do(a.Quit)
		}()
		a.Run()
		<-done
	} else {
		runErr = run(ctx, qa, opts, hostKind, nil)
	}

	if runErr != nil {
		if types.IsCancellation(runErr) {
			log.Printf("Selection cancelled: %v", runErr)
			logutil.Exit(2)
		}
		logutil.Fatal(runErr)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.server != "" {
		cfg.Server.URL = opts.server
	}
	if opts.outDir != "" {
		cfg.Output.OutputDir = opts.outDir
	}
	if opts.ext != "" {
		format, err := processing.ParseFormat(opts.ext)
		if err != nil {
			return nil, err
		}
		cfg.Output.DefaultFormat = string(format)
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}
	return cfg, cfg.Validate()
}

func printHealth(ctx context.Context, qa *chartqa.ChartQA) error {
	health, err := qa.Health(ctx)
	if err != nil {
		return fmt.Errorf("server %s unreachable: %w", qa.Backend().BaseURL(), err)
	}
	js, _ := json.MarshalIndent(health, "", "  ")
	fmt.Println(string(js))
	if !health.ModelLoaded {
		return errors.New("model not loaded")
	}
	return nil
}

// run selects, crops, saves and asks
func run(ctx context.Context, qa *chartqa.ChartQA, opts options, hostKind string, a fyne.App) error {
	src, err := openSource(ctx, qa, opts, hostKind, a)
	if err != nil {
		return err
	}
	defer src.close()

	flow := qa.Flow(src.capturer)

	var s *session.Session
	if hostKind == hostFull {
		s, err = flow.CaptureFull(ctx)
	} else {
		s, err = flow.SelectArea(ctx, src.host)
	}
	if err != nil {
		return err
	}

	info := processing.NewProcessor().GetImageInfo(s.Crop.Image)
	log.Printf("selected %s on a %.0fx%.0f viewport -> %dx%d native", s.Selection.Rect, s.Viewport.Width, s.Viewport.Height, info.Width, info.Height)

	if !opts.noSave {
		path, err := qa.SaveImage(s.Crop.Image, opts.in)
		if err != nil {
			return err
		}
		if st, err := os.Stat(path); err == nil {
			log.Printf("wrote %s (%s)", path, utils.FormatFileSize(st.Size()))
		}
		if opts.debug {
			dbgPath, err := qa.SaveDebugOverlay(s.Capture, s.Crop.Native, opts.in)
			if err != nil {
				log.Printf("debug overlay save failed: %v", err)
			} else {
				log.Printf("wrote %s", dbgPath)
			}
		}
	}

	if opts.question == "" {
		return nil
	}

	answer, err := flow.Ask(ctx, s, opts.question)
	if err != nil {
		return err
	}
	fmt.Println(answer)

	if opts.copyAnswer {
		if err := clipboard.WriteText(answer); err != nil {
			log.Printf("copy to clipboard failed: %v", err)
		}
	}
	return nil
}
