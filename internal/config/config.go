package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultCacheSize       = 32
	DefaultShutdownTimeout = 10 * time.Second
	DefaultEnvFile         = ".env"

	// EnvPrefix is prepended to every environment variable name
	EnvPrefix = "PDFSLOT"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// ErrVersionRequested is returned by Load when a version flag is present
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the PDF slot service
type Config struct {
	// Server configuration
	Mode            string // "server" or "stdio"
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	// Directory the MCP file tools are confined to
	PDFDirectory string

	// Document handling
	MaxFileSize        int64 // Maximum upload size in bytes
	TemplatePath       string
	ValidateOnDownload bool
	LossyFlatten       bool
	CacheSize          int

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	EnvFile    string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:               ModeServer,
		Host:               DefaultHost,
		Port:               DefaultPort,
		ShutdownTimeout:    DefaultShutdownTimeout,
		PDFDirectory:       currentDir,
		MaxFileSize:        DefaultMaxFileSize,
		ValidateOnDownload: true,
		CacheSize:          DefaultCacheSize,
		Version:            "1.0.0",
		ServerName:         "pdfslot",
		LogLevel:           DefaultLogLevel,
		EnvFile:            DefaultEnvFile,
	}
}

// LoadFromFlags parses the process command line and environment
func LoadFromFlags() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds a configuration from args, the environment and an optional
// dotenv file. Flags take precedence over the environment, the environment
// over the dotenv file, and the dotenv file over defaults.
func Load(args []string) (*Config, error) {
	if versionRequested(args) {
		return nil, ErrVersionRequested
	}

	cfg := DefaultConfig()

	fs := pflag.NewFlagSet("pdfslot", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	defineFlags(fs, cfg)
	fs.Usage = func() { printUsage(os.Stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	envFile, _ := fs.GetString("envfile")
	if err := loadEnvFile(envFile, fs.Changed("envfile")); err != nil {
		return nil, err
	}

	v := viper.New()
	setupViperEnvironment(v, cfg)
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	populateConfigFromViper(v, cfg)
	cfg.EnvFile = envFile

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFile exports the variables of a dotenv file without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("cannot read env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load env file %s: %w", path, err)
	}
	return nil
}

// setupViperEnvironment configures v with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("dir", cfg.PDFDirectory)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("maxfilesize", cfg.MaxFileSize)
	v.SetDefault("template", cfg.TemplatePath)
	v.SetDefault("validateondownload", cfg.ValidateOnDownload)
	v.SetDefault("lossyflatten", cfg.LossyFlatten)
	v.SetDefault("cachesize", cfg.CacheSize)
	v.SetDefault("shutdowntimeout", cfg.ShutdownTimeout)
}

// defineFlags sets up all command line flags on fs
func defineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("mode", cfg.Mode, "Run mode: 'server' for the HTTP surface, 'stdio' for MCP standard I/O")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("dir", cfg.PDFDirectory, "Directory the MCP file tools may read from and write to")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.Int64("maxfilesize", cfg.MaxFileSize, "Maximum upload size in bytes")
	fs.String("template", cfg.TemplatePath, "Fillable PDF used for prefilled downloads (bundled template when empty)")
	fs.Bool("validateondownload", cfg.ValidateOnDownload, "Log a PDF/A-2b check on every raw download")
	fs.Bool("lossyflatten", cfg.LossyFlatten, "Return an empty document instead of an error when flattening fails")
	fs.Int("cachesize", cfg.CacheSize, "Number of derived documents kept in memory (0 disables caching)")
	fs.Duration("shutdowntimeout", cfg.ShutdownTimeout, "Graceful shutdown budget for the HTTP server")
	fs.String("envfile", cfg.EnvFile, "Optional dotenv file loaded before reading the environment")
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage of %s:\n", os.Args[0])
	fmt.Fprintf(w, "\npdfslot - holds one PDF in memory and serves raw, prefilled and flattened copies\n\n")
	fmt.Fprintf(w, "Options:\n")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  %s                                  # HTTP server on 127.0.0.1:8080 (default)\n", os.Args[0])
	fmt.Fprintf(w, "  %s --host=0.0.0.0 --port=8081       # server on all interfaces\n", os.Args[0])
	fmt.Fprintf(w, "  %s --mode=stdio --dir=/path/to/pdfs # MCP tools over stdio\n", os.Args[0])
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  %s_MODE, %s_HOST, %s_PORT, %s_DIR, %s_LOGLEVEL, %s_MAXFILESIZE,\n",
		EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix)
	fmt.Fprintf(w, "  %s_TEMPLATE, %s_VALIDATEONDOWNLOAD, %s_LOSSYFLATTEN, %s_CACHESIZE, %s_SHUTDOWNTIMEOUT\n",
		EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix)
}

// versionRequested checks if a version flag was passed
func versionRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// populateConfigFromViper fills the config struct with values from v
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.PDFDirectory = v.GetString("dir")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.MaxFileSize = v.GetInt64("maxfilesize")
	cfg.TemplatePath = v.GetString("template")
	cfg.ValidateOnDownload = v.GetBool("validateondownload")
	cfg.LossyFlatten = v.GetBool("lossyflatten")
	cfg.CacheSize = v.GetInt("cachesize")
	cfg.ShutdownTimeout = v.GetDuration("shutdowntimeout")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	if _, err := os.Stat(c.PDFDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.PDFDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create PDF directory %s: %w", c.PDFDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access PDF directory %s: %w", c.PDFDirectory, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.TemplatePath != "" {
		info, err := os.Stat(c.TemplatePath)
		if err != nil {
			return fmt.Errorf("cannot access template %s: %w", c.TemplatePath, err)
		}
		if info.IsDir() {
			return fmt.Errorf("template %s is a directory", c.TemplatePath)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"Template: %q, ValidateOnDownload: %t, LossyFlatten: %t, CacheSize: %d, ShutdownTimeout: %s}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.LogLevel, c.MaxFileSize,
		c.TemplatePath, c.ValidateOnDownload, c.LossyFlatten, c.CacheSize, c.ShutdownTimeout)
}

// IsServerMode returns true if the HTTP surface is selected
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the MCP stdio surface is selected
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
