// Package template provides the fillable form the prefill download is based on.
package template

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	pageWidth  = 612
	pageHeight = 792

	labelX    = 50
	fieldX    = 170
	rowHeight = 40
	topY      = 720
)

// Field flags used by the bundled template (PDF 32000-1, 12.7.4)
const (
	flagMultiline     = 1 << 12
	flagNoToggleToOff = 1 << 14
	flagRadio         = 1 << 15
	flagCombo         = 1 << 17
	annotFlagPrint    = 4
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindCheckBox
	kindRadio
	kindCombo
)

type fieldSpec struct {
	name    string
	label   string
	kind    fieldKind
	width   float64
	height  float64
	flags   int
	options []string
}

// FieldNames lists the fields of the bundled template in page order
var FieldNames = []string{
	"FirstName", "LastName", "Email", "Color", "Land", "Water",
	"Options", "BigTextField1", "BigTextField2", "FinalField", "Date",
}

var bundledFields = []fieldSpec{
	{name: "FirstName", label: "First name", kind: kindText, width: 300, height: 20},
	{name: "LastName", label: "Last name", kind: kindText, width: 300, height: 20},
	{name: "Email", label: "Email", kind: kindText, width: 300, height: 20},
	{name: "Color", label: "Favourite color", kind: kindRadio, options: []string{"Red", "Green", "Blue"}},
	{name: "Land", label: "Land", kind: kindCheckBox},
	{name: "Water", label: "Water", kind: kindCheckBox},
	{name: "Options", label: "Size", kind: kindCombo, width: 150, height: 20, options: []string{"Small", "Medium", "Large"}},
	{name: "BigTextField1", label: "Notes", kind: kindText, width: 380, height: 30, flags: flagMultiline},
	{name: "BigTextField2", label: "More notes", kind: kindText, width: 380, height: 30, flags: flagMultiline},
	{name: "FinalField", label: "Final words", kind: kindText, width: 300, height: 20},
	{name: "Date", label: "Date", kind: kindText, width: 120, height: 20},
}

var (
	bundledOnce  sync.Once
	bundledBytes []byte
	bundledErr   error
)

// Bundled returns the built-in fillable template. The document is generated
// once and the same bytes are returned on every call; callers must not modify them.
func Bundled() ([]byte, error) {
	bundledOnce.Do(func() {
		bundledBytes, bundledErr = build(bundledFields)
	})
	return bundledBytes, bundledErr
}

// Load returns the template at path, or the bundled template when path is empty
func Load(path string) ([]byte, error) {
	if path == "" {
		return Bundled()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("template is empty: %s", path)
	}
	return content, nil
}

func build(fields []fieldSpec) ([]byte, error) {
	w := newObjectWriter("1.7")

	catalog := w.reserve()
	pages := w.reserve()
	page := w.reserve()
	acroForm := w.reserve()
	helv := w.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	zadb := w.add("<< /Type /Font /Subtype /Type1 /BaseFont /ZapfDingbats >>")

	var content strings.Builder
	content.WriteString("BT /Helv 16 Tf 50 760 Td (Fillable form example) Tj ET\n")

	var annots, fieldRefs []string
	y := float64(topY)
	for _, f := range fields {
		fmt.Fprintf(&content, "BT /Helv 10 Tf %d %.0f Td %s Tj ET\n", labelX, y+6, literal(f.label))

		switch f.kind {
		case kindText:
			num := addTextField(w, f, page, helv, y)
			annots = append(annots, ref(num))
			fieldRefs = append(fieldRefs, ref(num))
		case kindCheckBox:
			num := addCheckBox(w, f, page, zadb, y)
			annots = append(annots, ref(num))
			fieldRefs = append(fieldRefs, ref(num))
		case kindRadio:
			parent, kids := addRadioGroup(w, f, page, zadb, y)
			annots = append(annots, kids...)
			fieldRefs = append(fieldRefs, ref(parent))
		case kindCombo:
			num := addComboBox(w, f, page, helv, y)
			annots = append(annots, ref(num))
			fieldRefs = append(fieldRefs, ref(num))
		}

		y -= rowHeight
		if f.height > 20 {
			y -= f.height - 20
		}
	}

	contents := w.addStream("", content.String())

	w.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %s /AcroForm %s >>", ref(pages), ref(acroForm)))
	w.set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count 1 >>", ref(page)))
	w.set(page, fmt.Sprintf(
		"<< /Type /Page /Parent %s /MediaBox [0 0 %d %d] /Resources << /Font << /Helv %s >> >> /Contents %s /Annots [%s] >>",
		ref(pages), pageWidth, pageHeight, ref(helv), ref(contents), strings.Join(annots, " ")))
	w.set(acroForm, fmt.Sprintf(
		"<< /Fields [%s] /DR << /Font << /Helv %s /ZaDb %s >> >> /DA (/Helv 0 Tf 0 g) >>",
		strings.Join(fieldRefs, " "), ref(helv), ref(zadb)))

	return w.bytes(catalog)
}

func rect(x, y, width, height float64) string {
	return fmt.Sprintf("[%.0f %.0f %.0f %.0f]", x, y, x+width, y+height)
}

func formDict(width, height float64, font string, fontRef int) string {
	return fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %.0f %.0f] /Resources << /Font << /%s %s >> >>",
		width, height, font, ref(fontRef))
}

func border(width, height float64) string {
	return fmt.Sprintf("0 G 0.5 w 0.25 0.25 %.2f %.2f re S", width-0.5, height-0.5)
}

func addTextField(w *objectWriter, f fieldSpec, page, helv int, y float64) int {
	ap := w.addStream(formDict(f.width, f.height, "Helv", helv),
		border(f.width, f.height)+"\n/Tx BMC\nEMC")

	return w.add(fmt.Sprintf(
		"<< /Type /Annot /Subtype /Widget /FT /Tx /T %s /Ff %d /Rect %s /F %d /P %s /DA (/Helv 10 Tf 0 g) /V () /MK << /BC [0 0 0] >> /AP << /N %s >> >>",
		literal(f.name), f.flags, rect(fieldX, y, f.width, f.height), annotFlagPrint, ref(page), ref(ap)))
}

func addCheckBox(w *objectWriter, f fieldSpec, page, zadb int, y float64) int {
	const size = 14
	on := w.addStream(formDict(size, size, "ZaDb", zadb),
		border(size, size)+"\nq 0 g BT /ZaDb 10 Tf 2.5 3 Td (4) Tj ET Q")
	off := w.addStream(formDict(size, size, "ZaDb", zadb), border(size, size))

	return w.add(fmt.Sprintf(
		"<< /Type /Annot /Subtype /Widget /FT /Btn /T %s /Rect %s /F %d /P %s /DA (/ZaDb 0 Tf 0 g) /V /Off /AS /Off /MK << /CA (4) /BC [0 0 0] >> /AP << /N << /Yes %s /Off %s >> >> >>",
		literal(f.name), rect(fieldX, y, size, size), annotFlagPrint, ref(page), ref(on), ref(off)))
}

func addRadioGroup(w *objectWriter, f fieldSpec, page, zadb int, y float64) (int, []string) {
	const size = 14
	parent := w.reserve()

	kids := make([]string, 0, len(f.options))
	x := float64(fieldX)
	for _, option := range f.options {
		on := w.addStream(formDict(size, size, "ZaDb", zadb),
			border(size, size)+"\nq 0 g BT /ZaDb 9 Tf 2.5 3.5 Td (l) Tj ET Q")
		off := w.addStream(formDict(size, size, "ZaDb", zadb), border(size, size))

		kid := w.add(fmt.Sprintf(
			"<< /Type /Annot /Subtype /Widget /Parent %s /Rect %s /F %d /P %s /DA (/ZaDb 0 Tf 0 g) /AS /Off /MK << /CA (l) /BC [0 0 0] >> /AP << /N << /%s %s /Off %s >> >> >>",
			ref(parent), rect(x, y, size, size), annotFlagPrint, ref(page), option, ref(on), ref(off)))
		kids = append(kids, ref(kid))
		x += 70
	}

	w.set(parent, fmt.Sprintf("<< /FT /Btn /T %s /Ff %d /V /Off /Kids [%s] >>",
		literal(f.name), flagRadio|flagNoToggleToOff, strings.Join(kids, " ")))

	return parent, kids
}

func addComboBox(w *objectWriter, f fieldSpec, page, helv int, y float64) int {
	ap := w.addStream(formDict(f.width, f.height, "Helv", helv),
		border(f.width, f.height)+"\n/Tx BMC\nEMC")

	opts := make([]string, 0, len(f.options))
	for _, o := range f.options {
		opts = append(opts, literal(o))
	}

	return w.add(fmt.Sprintf(
		"<< /Type /Annot /Subtype /Widget /FT /Ch /T %s /Ff %d /Opt [%s] /Rect %s /F %d /P %s /DA (/Helv 10 Tf 0 g) /MK << /BC [0 0 0] >> /AP << /N %s >> >>",
		literal(f.name), flagCombo, strings.Join(opts, " "),
		rect(fieldX, y, f.width, f.height), annotFlagPrint, ref(page), ref(ap)))
}
