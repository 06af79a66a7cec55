package pdfa

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
	"github.com/a3tai/pdfslot/internal/pdf/template"
)

const xmpPacket = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description rdf:about="" xmlns:pdfaid="http://www.aiim.org/pdfa/ns/id/">
<pdfaid:part>%d</pdfaid:part>
<pdfaid:conformance>%s</pdfaid:conformance>
</rdf:Description>
</rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

// buildPDF serializes objects numbered from 1 with a cross reference table
func buildPDF(objects []string, trailer string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R %s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, trailer, xref)
	return b.Bytes()
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

type docOptions struct {
	part        int
	conformance string
	metadata    bool
	intent      bool
	id          bool
	noProfile   bool
	catalog     string
	annots      string
	resources   string
	extra       []string // objects numbered from 7
}

func conformantOptions() docOptions {
	return docOptions{part: 2, conformance: "B", metadata: true, intent: true, id: true}
}

func buildDoc(o docOptions) []byte {
	catalog := "/Type /Catalog /Pages 2 0 R"
	if o.metadata {
		catalog += " /Metadata 4 0 R"
	}
	if o.intent {
		profile := " /DestOutputProfile 5 0 R"
		if o.noProfile {
			profile = ""
		}
		catalog += " /OutputIntents [<< /Type /OutputIntent /S /GTS_PDFA1 /OutputConditionIdentifier (sRGB IEC61966-2.1)" + profile + " >>]"
	}
	catalog += " " + o.catalog

	page := "/Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << " + o.resources + " >> /Contents 6 0 R"
	if o.annots != "" {
		page += " /Annots [" + o.annots + "]"
	}

	objects := []string{
		"<< " + catalog + " >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< " + page + " >>",
		stream("/Type /Metadata /Subtype /XML", fmt.Sprintf(xmpPacket, o.part, o.conformance)),
		stream("/N 3", "icc-profile-placeholder"),
		stream("", "0 0 m 100 100 l S"),
	}
	objects = append(objects, o.extra...)

	trailer := ""
	if o.id {
		trailer = "/ID [<0123456789abcdef0123456789abcdef> <0123456789abcdef0123456789abcdef>]"
	}
	return buildPDF(objects, trailer)
}

const (
	fontFile     = "<< /Length 4 >>\nstream\nfont\nendstream"
	embeddedText = "<< /Type /EmbeddedFile /Subtype /text#2Fplain /Length 5 >>\nstream\nhello\nendstream"
	embeddedName = "/Names << /EmbeddedFiles << /Names [(notes.txt) << /Type /Filespec /F (notes.txt) /UF (notes.txt) /EF << /F 7 0 R >> >>] >> >>"
)

func fonts(dict string) string {
	return "/Font << /F1 " + dict + " >>"
}

func hasCode(r *Report, code string) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level       Level
		want        string
		part        int
		conformance string
	}{
		{PDFA1B, "PDF/A-1b", 1, "B"},
		{PDFA2B, "PDF/A-2b", 2, "B"},
		{PDFA2U, "PDF/A-2u", 2, "U"},
		{PDFA3B, "PDF/A-3b", 3, "B"},
		{Level(42), "Unknown", 0, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
			assert.Equal(t, tt.part, tt.level.Part())
			assert.Equal(t, tt.conformance, tt.level.Conformance())
		})
	}
}

func TestValidate_Conformant(t *testing.T) {
	report, err := NewValidator().Validate(context.Background(), buildDoc(conformantOptions()), PDFA2B)
	require.NoError(t, err)

	assert.True(t, report.Compliant, report.String())
	assert.Empty(t, report.Violations)
	assert.Equal(t, "PDF/A-2b", report.Standard)
	assert.Equal(t, "PDF/A-2b: compliant", report.String())
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *docOptions)
		level  Level
		code   string
	}{
		{"missing metadata", func(o *docOptions) { o.metadata = false }, PDFA2B, "MET001"},
		{"wrong part", func(o *docOptions) { o.part = 1 }, PDFA2B, "MET002"},
		{"wrong conformance", func(o *docOptions) { o.conformance = "U" }, PDFA2B, "MET002"},
		{"missing output intent", func(o *docOptions) { o.intent = false }, PDFA2B, "INT001"},
		{"missing file id", func(o *docOptions) { o.id = false }, PDFA2B, "ID001"},
		{"version above A-1", func(o *docOptions) { o.part = 1 }, PDFA1B, "HDR001"},
		{
			"javascript open action",
			func(o *docOptions) { o.catalog = "/OpenAction << /S /JavaScript /JS (app.alert(1)) >>" },
			PDFA2B, "ACT001",
		},
		{
			"document javascript",
			func(o *docOptions) { o.catalog = "/Names << /JavaScript << /Names [] >> >>" },
			PDFA2B, "ACT002",
		},
		{
			"need appearances",
			func(o *docOptions) { o.catalog = "/AcroForm << /Fields [] /NeedAppearances true >>" },
			PDFA2B, "FRM001",
		},
		{
			"movie annotation",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Movie /Rect [0 0 10 10] /F 4 /AP << >> >>" },
			PDFA2B, "ANN001",
		},
		{
			"annotation without print flag",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Square /Rect [0 0 10 10] /AP << >> >>" },
			PDFA2B, "ANN002",
		},
		{
			"annotation without appearance",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Square /Rect [0 0 10 10] /F 4 >>" },
			PDFA2B, "ANN003",
		},
		{
			"launch action chained after uri",
			func(o *docOptions) {
				o.annots = "<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] /F 4 /A << /S /URI /URI (https://example.com) /Next << /S /Launch /F (calc.exe) >> >> >>"
			},
			PDFA2B, "ACT001",
		},
		{
			"font not embedded",
			func(o *docOptions) { o.resources = fonts("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>") },
			PDFA2B, "FNT001",
		},
		{
			"type0 descendant not embedded",
			func(o *docOptions) {
				o.resources = fonts("<< /Type /Font /Subtype /Type0 /BaseFont /Noto /Encoding /Identity-H /DescendantFonts [<< /Type /Font /Subtype /CIDFontType2 /BaseFont /Noto /FontDescriptor << /Type /FontDescriptor /FontName /Noto >> >>] >>")
			},
			PDFA2B, "FNT001",
		},
		{"missing output profile", func(o *docOptions) { o.noProfile = true }, PDFA2B, "INT002"},
		{
			"embedded file in A-1",
			func(o *docOptions) {
				o.part = 1
				o.catalog = embeddedName
				o.extra = []string{embeddedText}
			},
			PDFA1B, "ATT001",
		},
		{
			"non pdf embedded file in A-2",
			func(o *docOptions) {
				o.catalog = embeddedName
				o.extra = []string{embeddedText}
			},
			PDFA2B, "ATT002",
		},
		{
			"file attachment in A-1",
			func(o *docOptions) {
				o.part = 1
				o.annots = "<< /Type /Annot /Subtype /FileAttachment /Rect [0 0 10 10] /F 4 /AP << >> /FS << /Type /Filespec /F (a.txt) >> >>"
			},
			PDFA1B, "ANN001",
		},
		{
			"hidden annotation",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Square /Rect [0 0 10 10] /F 6 /AP << >> >>" },
			PDFA2B, "ANN002",
		},
		{
			"noview annotation",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Square /Rect [0 0 10 10] /F 36 /AP << >> >>" },
			PDFA2B, "ANN002",
		},
		{
			"javascript in annotation additional actions",
			func(o *docOptions) {
				o.annots = "<< /Type /Annot /Subtype /Widget /Rect [0 0 10 10] /F 4 /AP << >> /AA << /E << /S /JavaScript /JS (app.alert(1)) >> >> >>"
			},
			PDFA2B, "ACT001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := conformantOptions()
			tt.modify(&o)

			report, err := NewValidator().Validate(context.Background(), buildDoc(o), tt.level)
			require.NoError(t, err)
			assert.False(t, report.Compliant)
			assert.True(t, hasCode(report, tt.code), "want %s in %v", tt.code, report.Codes())
		})
	}
}

func TestValidate_Exemptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *docOptions)
		level  Level
		code   string
	}{
		{
			"embedded font",
			func(o *docOptions) {
				o.resources = fonts("<< /Type /Font /Subtype /TrueType /BaseFont /Noto /FontDescriptor << /Type /FontDescriptor /FontName /Noto /FontFile2 7 0 R >> >>")
				o.extra = []string{fontFile}
			},
			PDFA2B, "FNT001",
		},
		{
			"type0 with embedded descendant",
			func(o *docOptions) {
				o.resources = fonts("<< /Type /Font /Subtype /Type0 /BaseFont /Noto /Encoding /Identity-H /DescendantFonts [<< /Type /Font /Subtype /CIDFontType2 /BaseFont /Noto /FontDescriptor << /Type /FontDescriptor /FontName /Noto /FontFile2 7 0 R >> >>] >>")
				o.extra = []string{fontFile}
			},
			PDFA2B, "FNT001",
		},
		{
			"type3 font",
			func(o *docOptions) {
				o.resources = fonts("<< /Type /Font /Subtype /Type3 /FontBBox [0 0 1 1] /FontMatrix [1 0 0 1 0 0] /CharProcs << >> /Encoding << /Type /Encoding >> /FirstChar 0 /LastChar 0 /Widths [0] >>")
			},
			PDFA2B, "FNT001",
		},
		{
			"file attachment in A-2",
			func(o *docOptions) {
				o.annots = "<< /Type /Annot /Subtype /FileAttachment /Rect [0 0 10 10] /F 4 /AP << >> /FS << /Type /Filespec /F (a.txt) >> >>"
			},
			PDFA2B, "ANN001",
		},
		{
			"embedded file in A-3",
			func(o *docOptions) {
				o.part = 3
				o.catalog = embeddedName
				o.extra = []string{embeddedText}
			},
			PDFA3B, "ATT002",
		},
		{
			"popup without flags",
			func(o *docOptions) { o.annots = "<< /Type /Annot /Subtype /Popup /Rect [0 0 10 10] >>" },
			PDFA2B, "ANN002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := conformantOptions()
			tt.modify(&o)

			report, err := NewValidator().Validate(context.Background(), buildDoc(o), tt.level)
			require.NoError(t, err)
			assert.False(t, hasCode(report, tt.code), "unexpected %s in %v", tt.code, report.Codes())
		})
	}
}

func TestValidateContext_Encrypted(t *testing.T) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(buildDoc(conformantOptions())), model.NewDefaultConfiguration())
	require.NoError(t, err)
	require.NoError(t, pdfCtx.EnsurePageCount())
	pdfCtx.Encrypt = types.NewIndirectRef(1, 0)

	report, err := NewValidator().ValidateContext(context.Background(), pdfCtx, PDFA2B)
	require.NoError(t, err)
	assert.False(t, report.Compliant)
	assert.True(t, hasCode(report, "ENC001"), "want ENC001 in %v", report.Codes())
}

func TestValidate_BundledTemplate(t *testing.T) {
	content, err := template.Bundled()
	require.NoError(t, err)

	report, err := NewValidator().Validate(context.Background(), content, PDFA2B)
	require.NoError(t, err)

	assert.False(t, report.Compliant)
	codes := report.Codes()
	assert.Contains(t, codes, "MET001")
	assert.Contains(t, codes, "INT001")
	assert.Contains(t, codes, "FNT001")
	assert.NotContains(t, codes, "ID001")
	assert.NotContains(t, codes, "ANN002")
	assert.NotContains(t, codes, "ANN003")

	text := report.String()
	assert.True(t, strings.HasPrefix(text, "PDF/A-2b: not compliant"))
	assert.Contains(t, text, "Helvetica")
}

func TestValidate_Garbage(t *testing.T) {
	report, err := NewValidator().Validate(context.Background(), []byte("this is not a pdf"), PDFA2B)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, pdferrors.Is(err, pdferrors.ErrorTypeValidation))
}

func TestValidate_Truncated(t *testing.T) {
	content, err := template.Bundled()
	require.NoError(t, err)

	report, err := NewValidator().Validate(context.Background(), content[:94], PDFA2B)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, pdferrors.Is(err, pdferrors.ErrorTypeValidation))

	for n := 1; n < len(content); n += 97 {
		assert.NotPanics(t, func() {
			_, _ = NewValidator().Validate(context.Background(), content[:n], PDFA2B)
		}, "prefix of %d bytes", n)
	}
}

func TestValidate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewValidator().Validate(ctx, buildDoc(conformantOptions()), PDFA2B)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, pdferrors.Is(err, pdferrors.ErrorTypeValidation))
}

func TestValidate_UnsupportedLevel(t *testing.T) {
	_, err := NewValidator().Validate(context.Background(), buildDoc(conformantOptions()), Level(42))
	assert.True(t, pdferrors.Is(err, pdferrors.ErrorTypeValidation))
}

func TestReport_Codes(t *testing.T) {
	r := &Report{Standard: "PDF/A-2b"}
	r.add("FNT001", "Page 1", "font %s", "Helvetica")
	r.add("FNT001", "Page 1", "font %s", "ZapfDingbats")
	r.add("INT001", "Catalog", "missing")

	assert.Equal(t, []string{"FNT001", "INT001"}, r.Codes())
	assert.Contains(t, r.String(), "FNT001 [Page 1] font Helvetica")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"PDF/A-1b", PDFA1B, false},
		{"pdf/a-2b", PDFA2B, false},
		{"PDFA-2u", PDFA2U, false},
		{"3b", PDFA3B, false},
		{" pdfa2b ", PDFA2B, false},
		{"PDF/A-4", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.True(t, pdferrors.Is(err, pdferrors.ErrorTypeInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
