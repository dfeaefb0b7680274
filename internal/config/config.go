package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Selection   SelectionConfig   `json:"selection"`
	Compression CompressionConfig `json:"compression"`
	Backend     BackendConfig     `json:"backend"`
	Output      OutputConfig      `json:"output"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig points the client at the analysis backend
type ServerConfig struct {
	URL string `json:"url"`
}

// SelectionConfig holds the drag gesture settings
type SelectionConfig struct {
	MinSize        float64 `json:"min_size"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	PopupMaxSize   int     `json:"popup_max_size"`
}

// Timeout returns the selection timeout as a duration
func (s SelectionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CompressionConfig controls the image sent to the backend
type CompressionConfig struct {
	MaxDimension int     `json:"max_dimension"`
	Quality      float64 `json:"quality"`
	Format       string  `json:"format"`
}

// BackendConfig selects the vision model behind the analysis server
type BackendConfig struct {
	Kind        string `json:"kind"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	ListenAddr  string `json:"listen_addr"`
	OCRLanguage string `json:"ocr_language"`
}

// OutputConfig holds configuration for saved crops
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
}

// LoggingConfig enables the rotating log file
type LoggingConfig struct {
	File string `json:"file"`
}

var backendKinds = []string{"ollama", "llamacpp", "ocr"}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:5001",
		},
		Selection: SelectionConfig{
			MinSize:        10,
			TimeoutSeconds: 30,
			PopupMaxSize:   800,
		},
		Compression: CompressionConfig{
			MaxDimension: 1024,
			Quality:      0.8,
			Format:       "jpg",
		},
		Backend: BackendConfig{
			Kind:        "ollama",
			URL:         "http://localhost:11434",
			Model:       "openbmb/minicpm-v4.5",
			ListenAddr:  ":5001",
			OCRLanguage: "eng",
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_region",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads .env files, then the JSON file at path if it exists, then
// applies environment overrides and validates the result
func Load(path string) (*Config, error) {
	LoadEnv()

	config := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadFromFile(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnv loads the first .env found in the working directory or next to the
// executable. Variables already set in the environment win.
func LoadEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), ".env"))
		}
	}

	for _, envPath := range paths {
		if _, err := os.Stat(envPath); err == nil {
			godotenv.Load(envPath)
			return
		}
	}
}

// ApplyEnv overrides fields from CHART_QA_* environment variables
func (c *Config) ApplyEnv() error {
	setString(&c.Server.URL, "CHART_QA_SERVER_URL")
	setString(&c.Compression.Format, "CHART_QA_FORMAT")
	setString(&c.Backend.Kind, "CHART_QA_BACKEND")
	setString(&c.Backend.URL, "CHART_QA_BACKEND_URL")
	setString(&c.Backend.Model, "CHART_QA_MODEL")
	setString(&c.Backend.ListenAddr, "CHART_QA_LISTEN")
	setString(&c.Backend.OCRLanguage, "CHART_QA_OCR_LANG")
	setString(&c.Output.OutputDir, "CHART_QA_OUTPUT_DIR")
	setString(&c.Logging.File, "CHART_QA_LOG_FILE")

	if v := os.Getenv("CHART_QA_MIN_SELECTION"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CHART_QA_MIN_SELECTION: %w", err)
		}
		c.Selection.MinSize = n
	}

	if v := os.Getenv("CHART_QA_SELECTION_TIMEOUT"); v != "" {
		seconds, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("CHART_QA_SELECTION_TIMEOUT: %w", err)
		}
		c.Selection.TimeoutSeconds = seconds
	}

	if v := os.Getenv("CHART_QA_MAX_DIMENSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHART_QA_MAX_DIMENSION: %w", err)
		}
		c.Compression.MaxDimension = n
	}

	if v := os.Getenv("CHART_QA_QUALITY"); v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CHART_QA_QUALITY: %w", err)
		}
		c.Compression.Quality = q
	}

	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server.url must be an http or https URL")
	}

	if c.Selection.MinSize < 1 {
		return fmt.Errorf("selection.min_size must be at least 1")
	}

	if c.Selection.TimeoutSeconds < 1 {
		return fmt.Errorf("selection.timeout_seconds must be positive")
	}

	if c.Selection.PopupMaxSize < 100 {
		return fmt.Errorf("selection.popup_max_size must be at least 100")
	}

	if c.Compression.MaxDimension < 1 {
		return fmt.Errorf("compression.max_dimension must be positive")
	}

	if c.Compression.Quality <= 0 || c.Compression.Quality > 1 {
		return fmt.Errorf("compression.quality must be in (0, 1]")
	}

	switch strings.ToLower(c.Compression.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("compression.format %q is not supported", c.Compression.Format)
	}

	if !contains(backendKinds, c.Backend.Kind) {
		return fmt.Errorf("backend.kind must be one of %s", strings.Join(backendKinds, ", "))
	}

	if c.Backend.ListenAddr == "" {
		return fmt.Errorf("backend.listen_addr cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "chart-qa", "config.json")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseSeconds accepts a Go duration ("45s", "2m") or a bare number of seconds
func parseSeconds(v string) (int, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return int(d / time.Second), nil
	}
	return strconv.Atoi(v)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
