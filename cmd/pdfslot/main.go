package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdfslot/internal/config"
	"github.com/a3tai/pdfslot/internal/httpapi"
	"github.com/a3tai/pdfslot/internal/mcp"
	"github.com/a3tai/pdfslot/internal/pdf"
	"github.com/a3tai/pdfslot/internal/pdf/slot"
	"github.com/a3tai/pdfslot/internal/pdf/template"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

const readHeaderTimeout = 10 * time.Second

// setupLogging configures logging based on the run mode
func setupLogging(cfg *config.Config) {
	if cfg.IsStdioMode() {
		// stdout carries the MCP protocol
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
		}
	} else {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// newService builds the slot service, loading the template override if set
func newService(cfg *config.Config) (*pdf.Service, error) {
	opts := pdf.Options{
		MaxFileSize:        cfg.MaxFileSize,
		ValidateOnDownload: cfg.ValidateOnDownload,
		LossyFlatten:       cfg.LossyFlatten,
		CacheSize:          cfg.CacheSize,
		DisableSummary:     cfg.IsStdioMode(),
		Logger:             log.Default(),
		Debug:              cfg.IsDebug(),
	}

	if cfg.TemplatePath != "" {
		tmpl, err := template.Load(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		opts.Template = tmpl
	}

	return pdf.NewService(slot.NewStore(), opts)
}

// newHTTPServer returns the HTTP server for the slot endpoints
func newHTTPServer(cfg *config.Config, service *pdf.Service) (*http.Server, error) {
	handler, err := httpapi.New(service, httpapi.Options{
		Logger:    log.Default(),
		AccessLog: os.Stdout,
		Debug:     cfg.IsDebug(),
	})
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          log.Default(),
	}, nil
}

// serveHTTP serves on ln until ctx is done, then shuts down gracefully
// within timeout. A listener failure also ends the shutdown wait.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Listening on http://%s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runServerMode serves the HTTP surface until ctx is cancelled
func runServerMode(ctx context.Context, cfg *config.Config, service *pdf.Service) error {
	srv, err := newHTTPServer(cfg, service)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	if err := serveHTTP(ctx, srv, ln, cfg.ShutdownTimeout); err != nil {
		return err
	}

	log.Println("Server stopped successfully")
	return nil
}

// runStdioMode serves the MCP tools until stdin closes or ctx is cancelled
func runStdioMode(ctx context.Context, cfg *config.Config, service *pdf.Service) error {
	server, err := mcp.NewServer(cfg, service)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func run(ctx context.Context, cfg *config.Config) error {
	service, err := newService(cfg)
	if err != nil {
		return err
	}

	if cfg.IsServerMode() {
		return runServerMode(ctx, cfg, service)
	}
	return runStdioMode(ctx, cfg, service)
}

func main() {
	cfg, err := config.LoadFromFlags()
	switch {
	case errors.Is(err, config.ErrVersionRequested):
		printVersion(os.Stdout)
		return
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("Server error: %v", err)
		stop()
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "PDF Slot\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
