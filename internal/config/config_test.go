package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Mode:            ModeServer,
		Host:            "127.0.0.1",
		Port:            8080,
		PDFDirectory:    t.TempDir(),
		LogLevel:        "info",
		MaxFileSize:     1024,
		CacheSize:       4,
		ShutdownTimeout: time.Second,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "server" {
		t.Errorf("Expected default mode to be 'server', got '%s'", cfg.Mode)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}

	if cfg.ServerName != "pdfslot" {
		t.Errorf("Expected default server name to be 'pdfslot', got '%s'", cfg.ServerName)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}

	if !cfg.ValidateOnDownload {
		t.Error("Expected validation on download to be enabled by default")
	}

	if cfg.LossyFlatten {
		t.Error("Expected lossy flattening to be disabled by default")
	}

	if cfg.CacheSize != DefaultCacheSize {
		t.Errorf("Expected default cache size %d, got %d", DefaultCacheSize, cfg.CacheSize)
	}

	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %s", cfg.ShutdownTimeout)
	}

	if cfg.TemplatePath != "" {
		t.Errorf("Expected no template by default, got '%s'", cfg.TemplatePath)
	}

	currentDir, _ := os.Getwd()
	if cfg.PDFDirectory != currentDir {
		t.Errorf("Expected default PDF directory to be '%s', got '%s'", currentDir, cfg.PDFDirectory)
	}
}

func TestConfigValidate(t *testing.T) {
	templateFile := filepath.Join(t.TempDir(), "form.pdf")
	if err := os.WriteFile(templateFile, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid server config",
			modify: func(c *Config) {},
		},
		{
			name:   "valid stdio config",
			modify: func(c *Config) { c.Mode = ModeStdio },
		},
		{
			name:    "invalid mode",
			modify:  func(c *Config) { c.Mode = "invalid" },
			wantErr: "mode must be",
		},
		{
			name:    "port too low in server mode",
			modify:  func(c *Config) { c.Port = 0 },
			wantErr: "port must be",
		},
		{
			name:    "port too high in server mode",
			modify:  func(c *Config) { c.Port = 70000 },
			wantErr: "port must be",
		},
		{
			name:   "port ignored in stdio mode",
			modify: func(c *Config) { c.Mode = ModeStdio; c.Port = 0 },
		},
		{
			name:    "empty PDF directory",
			modify:  func(c *Config) { c.PDFDirectory = "" },
			wantErr: "PDF directory cannot be empty",
		},
		{
			name:    "zero max file size",
			modify:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: "maximum file size",
		},
		{
			name:    "negative cache size",
			modify:  func(c *Config) { c.CacheSize = -1 },
			wantErr: "cache size",
		},
		{
			name:   "cache disabled",
			modify: func(c *Config) { c.CacheSize = 0 },
		},
		{
			name:    "zero shutdown timeout",
			modify:  func(c *Config) { c.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:   "existing template",
			modify: func(c *Config) { c.TemplatePath = templateFile },
		},
		{
			name:    "missing template",
			modify:  func(c *Config) { c.TemplatePath = templateFile + ".missing" },
			wantErr: "cannot access template",
		},
		{
			name:    "template is a directory",
			modify:  func(c *Config) { c.TemplatePath = filepath.Dir(templateFile) },
			wantErr: "is a directory",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validConfig(t)
	cfg.PDFDirectory = filepath.Join(t.TempDir(), "nested", "pdfs")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	info, err := os.Stat(cfg.PDFDirectory)
	if err != nil {
		t.Fatalf("Expected directory to be created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected created path to be a directory")
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 9000}
	if got := cfg.Address(); got != "0.0.0.0:9000" {
		t.Errorf("Address() = %s, want 0.0.0.0:9000", got)
	}
}

func TestConfigIsDebug(t *testing.T) {
	for level, want := range map[string]bool{
		"debug": true,
		"info":  false,
		"warn":  false,
		"error": false,
	} {
		cfg := &Config{LogLevel: level}
		if got := cfg.IsDebug(); got != want {
			t.Errorf("IsDebug() with %s = %v, want %v", level, got, want)
		}
	}
}

func TestConfigModes(t *testing.T) {
	server := &Config{Mode: ModeServer}
	if !server.IsServerMode() || server.IsStdioMode() {
		t.Error("Expected server mode to be detected")
	}

	stdio := &Config{Mode: ModeStdio}
	if !stdio.IsStdioMode() || stdio.IsServerMode() {
		t.Error("Expected stdio mode to be detected")
	}

	unknown := &Config{Mode: "other"}
	if unknown.IsServerMode() || unknown.IsStdioMode() {
		t.Error("Expected unknown mode to match neither")
	}
}

func TestConfigString(t *testing.T) {
	cfg := validConfig(t)
	cfg.LossyFlatten = true
	s := cfg.String()

	for _, want := range []string{
		"Mode: server",
		"Port: 8080",
		"MaxFileSize: 1024",
		"LossyFlatten: true",
		"CacheSize: 4",
		"ShutdownTimeout: 1s",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %s, missing %q", s, want)
		}
	}
}
