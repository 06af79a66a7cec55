package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/pdfslot/internal/config"
	"github.com/a3tai/pdfslot/internal/descriptions"
	"github.com/a3tai/pdfslot/internal/pdf"
	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
	"github.com/a3tai/pdfslot/internal/pdf/forms"
	"github.com/a3tai/pdfslot/internal/pdf/pdfa"
	"github.com/a3tai/pdfslot/internal/pdf/security"
)

// Export variants
const (
	VariantRaw       = "raw"
	VariantPrefilled = "prefilled"
	VariantFlattened = "flattened"
)

const (
	exportFilePerm = 0o600
	exportDirPerm  = 0o750
)

// Server exposes the document slot as MCP tools
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	paths      *security.PathValidator
	mcpServer  *server.MCPServer
	logger     *log.Logger
}

// NewServer creates a new MCP server instance. File tools are confined to
// cfg.PDFDirectory, which must exist.
func NewServer(cfg *config.Config, pdfService *pdf.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	paths, err := security.NewPathValidator(cfg.PDFDirectory)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF directory: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		paths:      paths,
		mcpServer:  mcpServer,
		logger:     log.Default(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_load_file",
		mcp.WithDescription(descriptions.PDFLoadFileDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the PDF, relative to the configured directory"),
		),
	), s.handleLoadFile)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_slot_info",
		mcp.WithDescription(descriptions.PDFSlotInfoDescription),
	), s.handleSlotInfo)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_list_fields",
		mcp.WithDescription(descriptions.PDFListFieldsDescription),
	), s.handleListFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_validate_pdfa",
		mcp.WithDescription(descriptions.PDFValidatePDFADescription),
		mcp.WithString("level",
			mcp.Description("Conformance level: PDF/A-1b, PDF/A-2b, PDF/A-2u or PDF/A-3b"),
			mcp.DefaultString(pdf.DownloadLevel.String()),
		),
	), s.handleValidatePDFA)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_export",
		mcp.WithDescription(descriptions.PDFExportDescription),
		mcp.WithString("variant",
			mcp.Required(),
			mcp.Description("Which document to write: raw, prefilled or flattened"),
			mcp.Enum(VariantRaw, VariantPrefilled, VariantFlattened),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Target file, relative to the configured directory"),
		),
		mcp.WithBoolean("overwrite",
			mcp.Description("Replace the target if it already exists"),
		),
	), s.handleExport)
}

func (s *Server) handleLoadFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resolved, err := s.paths.ResolveFile(path)
	if err != nil {
		return toolError(err), nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return toolError(pdferrors.Wrap(pdferrors.ErrorTypeInvalidRequest, err, "cannot open file")), nil
	}
	defer f.Close()

	doc, err := s.pdfService.Upload(filepath.Base(resolved), f)
	if err != nil {
		return toolError(err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Successfully uploaded file: %s | size: %d bytes | revision: %d",
		doc.Name, doc.Size(), doc.Revision)), nil
}

func (s *Server) handleSlotInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.pdfService.Info()
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatInfo(info)), nil
}

func (s *Server) handleListFields(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fields, err := s.pdfService.Fields()
	if err != nil {
		return toolError(err), nil
	}

	if len(fields) == 0 {
		return mcp.NewToolResultText("The document has no form fields"), nil
	}

	text := fmt.Sprintf("Found %d form field(s):\n", len(fields))
	text += strings.Join(forms.Describe(fields), "\n")
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleValidatePDFA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level := pdf.DownloadLevel
	if raw := request.GetString("level", ""); raw != "" {
		parsed, err := pdfa.ParseLevel(raw)
		if err != nil {
			return toolError(err), nil
		}
		level = parsed
	}

	report, err := s.pdfService.ValidateLevel(ctx, level)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(report.String()), nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	variant, err := request.RequireString("variant")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	overwrite := request.GetBool("overwrite", false)

	d, err := s.download(ctx, variant)
	if err != nil {
		return toolError(err), nil
	}

	target, err := s.paths.Resolve(path)
	if err != nil {
		return toolError(err), nil
	}
	if err := writeExport(target, d.Content, overwrite); err != nil {
		return toolError(err), nil
	}

	if s.config.IsDebug() {
		s.logger.Printf("Exported %s variant of %s to %s", variant, d.Name, target)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Exported %s document %s to %s (%d bytes)",
		variant, d.Name, target, len(d.Content))), nil
}

func (s *Server) download(ctx context.Context, variant string) (pdf.Download, error) {
	switch variant {
	case VariantRaw:
		return s.pdfService.Download(ctx)
	case VariantPrefilled:
		return s.pdfService.Prefilled()
	case VariantFlattened:
		return s.pdfService.Flattened()
	default:
		return pdf.Download{}, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
			"unknown variant %q (must be one of: raw, prefilled, flattened)", variant)
	}
}

func writeExport(target string, content []byte, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(target), exportDirPerm); err != nil {
		return pdferrors.Wrap(pdferrors.ErrorTypeInternal, err, "cannot create target directory")
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(target, flags, exportFilePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
				"%s already exists, set overwrite to replace it", filepath.Base(target))
		}
		return pdferrors.Wrap(pdferrors.ErrorTypeInternal, err, "cannot create target file")
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return pdferrors.Wrap(pdferrors.ErrorTypeInternal, err, "cannot write target file")
	}
	if err := f.Close(); err != nil {
		return pdferrors.Wrap(pdferrors.ErrorTypeInternal, err, "cannot write target file")
	}
	return nil
}

func formatInfo(info pdf.Info) string {
	text := "PDF Slot\n"
	text += fmt.Sprintf("Name: %s\n", info.Name)
	text += fmt.Sprintf("Size: %d bytes\n", info.Size)
	text += fmt.Sprintf("Revision: %d\n", info.Revision)
	text += fmt.Sprintf("Uploaded: %s\n", info.UploadedAt.Format(time.RFC3339))
	text += fmt.Sprintf("Form fields: %d\n", info.Fields)

	if sum := info.Summary; sum != nil {
		text += fmt.Sprintf("Pages: %d\n", sum.Pages)
		text += fmt.Sprintf("Content type: %s\n", sum.ContentType)
		text += fmt.Sprintf("Images: %d\n", sum.Images)
		if sum.Preview != "" {
			text += fmt.Sprintf("Preview: %s\n", sum.Preview)
		}
	}

	return text
}

// toolError renders err like the HTTP surface does: "<KIND>: <detail>"
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", pdferrors.TypeOf(err), pdferrors.Detail(err)))
}

// Run serves the tools over the process' standard input and output until
// ctx is cancelled or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves the tools over in and out
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.config.IsDebug() {
		s.logger.Printf("Starting PDF slot MCP server in stdio mode")
		s.logger.Printf("PDF directory: %s", s.paths.Directory())
	}

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(s.logger)

	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
