// Package pdfa checks documents against the PDF/A archival profiles.
//
// The checker covers the document level requirements of ISO 19005 that can be
// decided from the object graph: header version, encryption, file identifier,
// XMP identification, output intents, font embedding, annotations, actions and
// embedded files. It does not interpret content streams or ICC profiles.
package pdfa

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

// Level is a PDF/A conformance level
type Level int

const (
	PDFA1B Level = iota
	PDFA2B
	PDFA2U
	PDFA3B
)

func (l Level) String() string {
	switch l {
	case PDFA1B:
		return "PDF/A-1b"
	case PDFA2B:
		return "PDF/A-2b"
	case PDFA2U:
		return "PDF/A-2u"
	case PDFA3B:
		return "PDF/A-3b"
	default:
		return "Unknown"
	}
}

// ParseLevel accepts "PDF/A-2b", "pdfa-2b", "2b" and similar spellings
func ParseLevel(s string) (Level, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "pdf/a-")
	norm = strings.TrimPrefix(norm, "pdfa-")
	norm = strings.TrimPrefix(norm, "pdfa")
	for _, l := range []Level{PDFA1B, PDFA2B, PDFA2U, PDFA3B} {
		if norm == fmt.Sprintf("%d%s", l.Part(), strings.ToLower(l.Conformance())) {
			return l, nil
		}
	}
	return 0, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "unsupported PDF/A level %q", s)
}

// Part returns the ISO 19005 part number declared in XMP as pdfaid:part
func (l Level) Part() int {
	switch l {
	case PDFA1B:
		return 1
	case PDFA2B, PDFA2U:
		return 2
	case PDFA3B:
		return 3
	default:
		return 0
	}
}

// Conformance returns the conformance letter declared in XMP as pdfaid:conformance
func (l Level) Conformance() string {
	if l == PDFA2U {
		return "U"
	}
	return "B"
}

// MaxVersion is the highest PDF version the level is based on
func (l Level) MaxVersion() model.Version {
	if l == PDFA1B {
		return model.V14
	}
	return model.V17
}

func (l Level) isA1() bool { return l == PDFA1B }
func (l Level) isA2() bool { return l == PDFA2B || l == PDFA2U }

// Violation is a single failed rule
type Violation struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Report is the outcome of a conformance check
type Report struct {
	Standard   string      `json:"standard"`
	Compliant  bool        `json:"compliant"`
	Violations []Violation `json:"violations"`
}

// Codes returns the distinct violation codes in report order
func (r *Report) Codes() []string {
	var codes []string
	seen := map[string]bool{}
	for _, v := range r.Violations {
		if !seen[v.Code] {
			seen[v.Code] = true
			codes = append(codes, v.Code)
		}
	}
	return codes
}

// String renders the report as text, one violation per line
func (r *Report) String() string {
	var b strings.Builder
	if r.Compliant {
		fmt.Fprintf(&b, "%s: compliant", r.Standard)
		return b.String()
	}

	fmt.Fprintf(&b, "%s: not compliant, %d violation(s)", r.Standard, len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "\n  %s [%s] %s", v.Code, v.Location, v.Description)
	}
	return b.String()
}

func (r *Report) add(code, location, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Code:        code,
		Description: fmt.Sprintf(format, args...),
		Location:    location,
	})
}

// Validator checks documents for PDF/A conformance
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses content and checks it against level. A document that does
// not conform yields a report with violations; an error means the check
// itself could not run.
func (v *Validator) Validate(ctx context.Context, content []byte, level Level) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = pdferrors.Newf(pdferrors.ErrorTypeValidation, "failed to read document for validation: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(content), conf)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeValidation, err, "failed to read document for validation")
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeValidation, err, "failed to determine page count")
	}

	return v.ValidateContext(ctx, pdfCtx, level)
}

// ValidateContext checks an already parsed document
func (v *Validator) ValidateContext(ctx context.Context, pdfCtx *model.Context, level Level) (*Report, error) {
	if level.Part() == 0 {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeValidation, "unsupported conformance level %d", int(level))
	}

	report := &Report{
		Standard:   level.String(),
		Violations: []Violation{},
	}

	c := &checker{ctx: pdfCtx, level: level, report: report, fonts: map[int]bool{}, streams: map[int]bool{}}

	if err := c.run(ctx); err != nil {
		return nil, err
	}

	// Structural validation runs after the rule checks.
	if err := validateSyntax(pdfCtx); err != nil {
		report.add("SYN001", "Document", "document fails PDF syntax validation: %v", err)
	}

	report.Compliant = len(report.Violations) == 0
	return report, nil
}

func validateSyntax(pdfCtx *model.Context) (err error) {
	defer pdferrors.Recover(&err, pdferrors.ErrorTypeValidation, "syntax validation aborted")
	return api.ValidateContext(pdfCtx)
}
