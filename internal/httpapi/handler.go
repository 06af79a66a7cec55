// Package httpapi exposes the document slot over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/a3tai/pdfslot/internal/pdf"
	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
	"github.com/a3tai/pdfslot/internal/pdf/forms"
)

const (
	// UploadField is the multipart field carrying the uploaded file
	UploadField = "file"

	// multipartOverhead is the allowance for multipart framing on top of the file size limit
	multipartOverhead = 1 << 20
	maxMemory         = 32 << 20
)

// Options configures the HTTP handler
type Options struct {
	Logger    *log.Logger
	AccessLog io.Writer // combined log format; os.Stdout when nil
	Debug     bool      // log per-request metrics
}

// Handler serves the slot endpoints
type Handler struct {
	service *pdf.Service
	logger  *log.Logger
}

// New returns the complete HTTP handler over service, wrapped in the
// recovery, access log and compression middleware.
func New(service *pdf.Service, opts Options) (http.Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("pdf service is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	accessLog := opts.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	h := &Handler{service: service, logger: logger}

	return wrap(h.Routes(), logger, accessLog, opts.Debug)
}

// Routes returns the bare router without middleware
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /pdf", h.download)
	mux.HandleFunc("POST /pdf", h.upload)
	mux.HandleFunc("POST /pdf/reset", h.upload)
	mux.HandleFunc("GET /pdf/prefilled", h.prefilled)
	mux.HandleFunc("GET /pdf/default-prefilled", h.prefilled)
	mux.HandleFunc("GET /pdf/flattened", h.flattened)
	mux.HandleFunc("GET /pdf/fields", h.fields)
	mux.HandleFunc("GET /pdf/validation", h.validation)
	mux.HandleFunc("GET /pdf/info", h.info)
	mux.HandleFunc("GET /healthz", h.health)

	return mux
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Download(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeDocument(w, d)
}

func (h *Handler) prefilled(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Prefilled()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeDocument(w, d)
}

func (h *Handler) flattened(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Flattened()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeDocument(w, d)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxFileSize()+multipartOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.writeError(w, r, uploadError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		h.writeError(w, r, uploadError(err))
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeText(w, http.StatusOK, fmt.Sprintf("Successfully uploaded file: %s | size: %d bytes", doc.Name, doc.Size()))
}

func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return pdferrors.Newf(pdferrors.ErrorTypeTooLarge, "request body exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, http.ErrMissingFile):
		return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "multipart field %q is required", UploadField)
	default:
		return pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, err, "invalid multipart upload")
	}
}

func (h *Handler) fields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.service.Fields()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	lines := forms.Describe(fields)
	writeText(w, http.StatusOK, strings.Join(lines, "\n"))
}

func (h *Handler) validation(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Validate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, report)
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, info)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeDocument(w http.ResponseWriter, d pdf.Download) {
	w.Header().Set("Content-Type", pdf.DownloadMimeType)
	if d.Name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.Content)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		h.logger.Printf("Failed to encode response: %v", err)
		writeText(w, http.StatusInternalServerError, "INTERNAL: failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeError renders err as "<KIND>: <detail>" with the kind's status code
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pdferrors.TypeOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeText(w, status, fmt.Sprintf("%s: %s", kind, pdferrors.Detail(err)))
}
