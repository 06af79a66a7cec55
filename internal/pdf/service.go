package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
	"github.com/a3tai/pdfslot/internal/pdf/flatten"
	"github.com/a3tai/pdfslot/internal/pdf/forms"
	"github.com/a3tai/pdfslot/internal/pdf/pdfa"
	"github.com/a3tai/pdfslot/internal/pdf/slot"
	"github.com/a3tai/pdfslot/internal/pdf/summary"
	"github.com/a3tai/pdfslot/internal/pdf/template"
)

// Names of generated downloads
const (
	PrefilledName    = "prefilled.pdf"
	flattenedPrefix  = "flattened-"
	DownloadMimeType = "application/octet-stream"
)

// DownloadLevel is the conformance level checked on download and by Validate
const DownloadLevel = pdfa.PDFA2B

const (
	opPrefilled = "prefilled"
	opFlattened = "flattened"
)

// Options configures a Service
type Options struct {
	MaxFileSize        int64
	Template           []byte // fillable template; the bundled one when empty
	ValidateOnDownload bool
	LossyFlatten       bool
	CacheSize          int  // derived outputs kept; 0 disables caching
	DisableSummary     bool // skip text extraction; the text reader may print to stdout
	Logger             *log.Logger
	Debug              bool
}

// Download is a named document ready to be sent to a client
type Download struct {
	Name     string
	Content  []byte
	Revision uint64
}

// Info describes the document currently held in the slot
type Info struct {
	Name       string           `json:"name"`
	Size       int              `json:"size"`
	Revision   uint64           `json:"revision"`
	UploadedAt time.Time        `json:"uploaded_at"`
	Fields     int              `json:"fields"`
	Summary    *summary.Summary `json:"summary,omitempty"`
}

type cacheKey struct {
	op       string
	revision uint64
}

// Service derives downloads from the document held in a slot store
type Service struct {
	store     *slot.Store
	validator *pdfa.Validator
	template  []byte
	cache     *lru.Cache[cacheKey, []byte]
	opts      Options
	logger    *log.Logger
}

// NewService creates a service over store
func NewService(store *slot.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("slot store is required")
	}
	if opts.MaxFileSize <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got %d", opts.MaxFileSize)
	}

	tmpl := opts.Template
	if len(tmpl) == 0 {
		bundled, err := template.Bundled()
		if err != nil {
			return nil, fmt.Errorf("failed to build bundled template: %w", err)
		}
		tmpl = bundled
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Service{
		store:     store,
		validator: pdfa.NewValidator(),
		template:  tmpl,
		opts:      opts,
		logger:    logger,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[cacheKey, []byte](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create output cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// MaxFileSize returns the upload size limit
func (s *Service) MaxFileSize() int64 {
	return s.opts.MaxFileSize
}

// Upload reads a document from r and replaces the slot content with it.
// Content is stored without checking that it is a PDF.
func (s *Service) Upload(name string, r io.Reader) (slot.Document, error) {
	if name == "" {
		return slot.Document{}, pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "file name is required")
	}

	content, err := io.ReadAll(io.LimitReader(r, s.opts.MaxFileSize+1))
	if err != nil {
		return slot.Document{}, pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, err, "failed to read upload")
	}
	if int64(len(content)) > s.opts.MaxFileSize {
		return slot.Document{}, pdferrors.Newf(pdferrors.ErrorTypeTooLarge,
			"file exceeds maximum size of %d bytes", s.opts.MaxFileSize)
	}
	if len(content) == 0 {
		return slot.Document{}, pdferrors.New(pdferrors.ErrorTypeInvalidRequest, "uploaded file is empty")
	}

	doc := s.store.Put(name, content)
	s.logger.Printf("Stored %s (%d bytes, revision %d)", doc.Name, doc.Size(), doc.Revision)

	s.LogFields(doc)
	if !s.opts.DisableSummary {
		if sum, err := summary.Summarize(doc.Content); err != nil {
			s.logger.Printf("Could not summarize %s: %v", doc.Name, err)
		} else if s.opts.Debug {
			s.logger.Printf("Summary of %s: %s", doc.Name, sum)
		}
	}

	return doc, nil
}

// Reset replaces the slot content exactly like Upload
func (s *Service) Reset(name string, r io.Reader) (slot.Document, error) {
	return s.Upload(name, r)
}

// Download returns the stored document unchanged. When validation on
// download is enabled the PDF/A result is logged; it never fails the download.
func (s *Service) Download(ctx context.Context) (Download, error) {
	doc, err := s.store.Get()
	if err != nil {
		return Download{}, err
	}

	if s.opts.ValidateOnDownload {
		report, err := s.validator.Validate(ctx, doc.Content, DownloadLevel)
		if err != nil {
			s.logger.Printf("%s check of %s could not run: %v", DownloadLevel, doc.Name, err)
		} else {
			s.logger.Printf("%s check of %s: %s", DownloadLevel, doc.Name, report)
		}
	}

	return Download{Name: doc.Name, Content: doc.Content, Revision: doc.Revision}, nil
}

// Prefilled returns the template with the default prefill values applied.
// It does not depend on the slot.
func (s *Service) Prefilled() (Download, error) {
	key := cacheKey{op: opPrefilled}
	if content, ok := s.cached(key); ok {
		return Download{Name: PrefilledName, Content: content}, nil
	}

	content, err := forms.Fill(s.template, forms.DefaultPrefill())
	if err != nil {
		return Download{}, err
	}

	s.remember(key, content)
	return Download{Name: PrefilledName, Content: content}, nil
}

// Flattened returns the stored document with its form merged into page
// content. With lossy flattening enabled a failure yields an empty document
// and is only logged.
func (s *Service) Flattened() (Download, error) {
	doc, err := s.store.Get()
	if err != nil {
		return Download{}, err
	}

	d := Download{Name: flattenedPrefix + doc.Name, Revision: doc.Revision}

	key := cacheKey{op: opFlattened, revision: doc.Revision}
	if content, ok := s.cached(key); ok {
		d.Content = content
		return d, nil
	}

	content, res, err := flatten.Bytes(doc.Content)
	if err != nil {
		if s.opts.LossyFlatten {
			s.logger.Printf("Flattening %s failed, returning empty document: %v", doc.Name, err)
			d.Content = []byte{}
			return d, nil
		}
		return Download{}, err
	}

	if s.opts.Debug {
		s.logger.Printf("Flattened %s: %d widgets painted, %d dropped, %d pages", doc.Name, res.Widgets, res.Dropped, res.Pages)
	}

	s.remember(key, content)
	d.Content = content
	return d, nil
}

// Fields returns the form fields of the stored document
func (s *Service) Fields() (forms.Fields, error) {
	doc, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	return forms.InspectBytes(doc.Content)
}

// LogFields logs one line per form field of doc. Failures are logged only.
func (s *Service) LogFields(doc slot.Document) {
	fields, err := forms.InspectBytes(doc.Content)
	if err != nil {
		s.logger.Printf("Could not read form fields of %s: %v", doc.Name, err)
		return
	}

	s.logger.Printf("%s has %d form field(s)", doc.Name, len(fields))
	for _, line := range forms.Describe(fields) {
		s.logger.Printf("  %s", line)
	}
}

// Validate checks the stored document for PDF/A-2b conformance
func (s *Service) Validate(ctx context.Context) (*pdfa.Report, error) {
	return s.ValidateLevel(ctx, DownloadLevel)
}

// ValidateLevel checks the stored document against level
func (s *Service) ValidateLevel(ctx context.Context, level pdfa.Level) (*pdfa.Report, error) {
	doc, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	return s.validator.Validate(ctx, doc.Content, level)
}

// Info describes the stored document. Field and text information is best
// effort; the slot accepts content that is not a readable PDF.
func (s *Service) Info() (Info, error) {
	doc, err := s.store.Get()
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Name:       doc.Name,
		Size:       doc.Size(),
		Revision:   doc.Revision,
		UploadedAt: doc.UploadedAt,
	}

	if fields, err := forms.InspectBytes(doc.Content); err == nil {
		info.Fields = len(fields)
	}
	if s.opts.DisableSummary {
		return info, nil
	}
	if sum, err := summary.Summarize(doc.Content); err == nil {
		info.Summary = &sum
	}

	return info, nil
}

// cached returns a copy of a derived output so callers cannot alter the cache
func (s *Service) cached(key cacheKey) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	content, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(content), true
}

func (s *Service) remember(key cacheKey, content []byte) {
	if s.cache != nil {
		s.cache.Add(key, bytes.Clone(content))
	}
}
