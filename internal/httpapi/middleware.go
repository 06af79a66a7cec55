package httpapi

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/CAFxX/httpcompression"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
)

// compressibleTypes lists the response types worth compressing. Documents
// are served as application/octet-stream and left alone.
var compressibleTypes = []string{
	"application/json",
	"text/plain",
}

// wrap applies the middleware chain: access log, panic recovery, optional
// request metrics and response compression, outermost first.
func wrap(h http.Handler, logger *log.Logger, accessLog io.Writer, debug bool) (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.ContentTypes(compressibleTypes, false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compression adapter: %w", err)
	}

	h = compress(h)
	if debug {
		h = metrics(h, logger)
	}
	h = handlers.RecoveryHandler(
		handlers.PrintRecoveryStack(debug),
		handlers.RecoveryLogger(logger),
	)(h)
	h = handlers.CombinedLoggingHandler(accessLog, h)

	return h, nil
}

// metrics logs status, size and duration of every request
func metrics(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		logger.Printf("%s %s -> %d, %d bytes in %s", r.Method, r.URL.Path, m.Code, m.Written, m.Duration)
	})
}
