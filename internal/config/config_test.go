package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if c.Selection.Timeout() != 30*time.Second {
		t.Errorf("Expected 30s selection timeout, got %v", c.Selection.Timeout())
	}
	if c.Server.URL != "http://localhost:5001" {
		t.Errorf("Unexpected default server URL %s", c.Server.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad url", func(c *Config) { c.Server.URL = "localhost:5001" }},
		{"min size", func(c *Config) { c.Selection.MinSize = 0 }},
		{"timeout", func(c *Config) { c.Selection.TimeoutSeconds = 0 }},
		{"popup size", func(c *Config) { c.Selection.PopupMaxSize = 10 }},
		{"max dimension", func(c *Config) { c.Compression.MaxDimension = 0 }},
		{"quality", func(c *Config) { c.Compression.Quality = 1.5 }},
		{"format", func(c *Config) { c.Compression.Format = "tiff" }},
		{"backend", func(c *Config) { c.Backend.Kind = "gpt" }},
		{"listen", func(c *Config) { c.Backend.ListenAddr = "" }},
	}

	for _, tt := range tests {
		c := Default()
		tt.modify(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.Server.URL = "http://analysis:5001"
	c.Selection.MinSize = 20
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Server.URL != c.Server.URL || loaded.Selection.MinSize != 20 {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"url":"http://other:9000"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.Server.URL != "http://other:9000" {
		t.Errorf("Expected URL from file, got %s", c.Server.URL)
	}
	if c.Compression.MaxDimension != 1024 {
		t.Errorf("Expected default max dimension, got %d", c.Compression.MaxDimension)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHART_QA_SERVER_URL", "https://qa.example.com")
	t.Setenv("CHART_QA_MIN_SELECTION", "15")
	t.Setenv("CHART_QA_SELECTION_TIMEOUT", "1m")
	t.Setenv("CHART_QA_BACKEND", "llamacpp")
	t.Setenv("CHART_QA_QUALITY", "0.6")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if c.Server.URL != "https://qa.example.com" {
		t.Errorf("Unexpected URL %s", c.Server.URL)
	}
	if c.Selection.MinSize != 15 || c.Selection.TimeoutSeconds != 60 {
		t.Errorf("Unexpected selection config %+v", c.Selection)
	}
	if c.Backend.Kind != "llamacpp" || c.Compression.Quality != 0.6 {
		t.Errorf("Unexpected overrides %+v %+v", c.Backend, c.Compression)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("CHART_QA_SELECTION_TIMEOUT", "soon")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("Expected error for unparseable timeout")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("CHART_QA_MODEL=llava:13b\n"), 0644)

	t.Setenv("CHART_QA_MODEL", "")
	os.Unsetenv("CHART_QA_MODEL")
	LoadEnv(path)
	defer os.Unsetenv("CHART_QA_MODEL")

	c := Default()
	c.ApplyEnv()
	if c.Backend.Model != "llava:13b" {
		t.Errorf("Expected model from .env, got %s", c.Backend.Model)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Backend.ListenAddr != ":5001" {
		t.Errorf("Expected default listen addr, got %s", c.Backend.ListenAddr)
	}
}
