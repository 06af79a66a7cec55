package pdfa

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

// Annotation flags (PDF 32000-1, 12.5.3)
const (
	annotFlagInvisible = 1
	annotFlagHidden    = 1 << 1
	annotFlagPrint     = 1 << 2
	annotFlagNoView    = 1 << 5
)

const (
	maxResourceDepth = 16
	maxActionChain   = 32
)

var forbiddenActions = map[string]bool{
	"JavaScript":  true,
	"Launch":      true,
	"Sound":       true,
	"Movie":       true,
	"ResetForm":   true,
	"ImportData":  true,
	"Hide":        true,
	"SetOCGState": true,
	"Rendition":   true,
	"Trans":       true,
	"GoTo3DView":  true,
}

var (
	xmpPart        = regexp.MustCompile(`pdfaid:part\s*(?:=\s*["']\s*(\d+)\s*["']|>\s*(\d+)\s*<)`)
	xmpConformance = regexp.MustCompile(`pdfaid:conformance\s*(?:=\s*["']\s*([A-Za-z])\s*["']|>\s*([A-Za-z])\s*<)`)
)

type checker struct {
	ctx     *model.Context
	level   Level
	report  *Report
	fonts   map[int]bool // font object numbers already checked
	streams map[int]bool // form XObjects already walked
}

func (c *checker) run(ctx context.Context) error {
	root, err := c.ctx.Catalog()
	if err != nil {
		return pdferrors.Wrap(pdferrors.ErrorTypeValidation, err, "failed to get catalog")
	}

	c.checkHeader()
	c.checkEncryption()
	c.checkID()
	c.checkMetadata(root)
	c.checkOutputIntents(root)
	c.checkAcroForm(root)
	c.checkDocumentActions(root)
	c.checkNames(root)

	for i := 1; i <= c.ctx.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return pdferrors.Wrap(pdferrors.ErrorTypeValidation, err, "validation cancelled")
		}

		pageDict, _, inherited, err := c.ctx.PageDict(i, false)
		if err != nil {
			return pdferrors.Wrap(pdferrors.ErrorTypeValidation, err, fmt.Sprintf("failed to get page %d", i))
		}
		if pageDict == nil {
			continue
		}
		c.checkPage(i, pageDict, inherited)
	}

	return nil
}

func (c *checker) checkHeader() {
	if v := c.ctx.XRefTable.Version(); v > c.level.MaxVersion() {
		c.report.add("HDR001", "Header", "PDF version %s exceeds %s allowed by %s",
			v, c.level.MaxVersion(), c.level)
	}
}

func (c *checker) checkEncryption() {
	if c.ctx.Encrypt != nil {
		c.report.add("ENC001", "Trailer", "Encryption is forbidden in PDF/A")
	}
}

func (c *checker) checkID() {
	if len(c.ctx.ID) < 2 {
		c.report.add("ID001", "Trailer", "File identifier (ID) is required")
	}
}

func (c *checker) checkMetadata(root types.Dict) {
	obj, found := root.Find("Metadata")
	if !found {
		c.report.add("MET001", "Catalog", "XMP metadata stream is required")
		return
	}
	sd, _, err := c.ctx.DereferenceStreamDict(obj)
	if err != nil || sd == nil {
		c.report.add("MET001", "Catalog", "Metadata entry is not a stream")
		return
	}
	if err := sd.Decode(); err != nil {
		c.report.add("MET001", "Catalog", "Metadata stream cannot be decoded: %v", err)
		return
	}

	xmp := string(sd.Content)
	part := firstGroup(xmpPart.FindStringSubmatch(xmp))
	conformance := firstGroup(xmpConformance.FindStringSubmatch(xmp))

	if part != fmt.Sprint(c.level.Part()) {
		c.report.add("MET002", "Metadata", "pdfaid:part is %q, %s requires %d", part, c.level, c.level.Part())
	}
	if !strings.EqualFold(conformance, c.level.Conformance()) {
		c.report.add("MET002", "Metadata", "pdfaid:conformance is %q, %s requires %s",
			conformance, c.level, c.level.Conformance())
	}
}

func firstGroup(m []string) string {
	for _, g := range m[min(1, len(m)):] {
		if g != "" {
			return g
		}
	}
	return ""
}

func (c *checker) checkOutputIntents(root types.Dict) {
	obj, found := root.Find("OutputIntents")
	if !found {
		c.report.add("INT001", "Catalog", "OutputIntent with subtype GTS_PDFA1 is required")
		return
	}
	intents, err := c.ctx.DereferenceArray(obj)
	if err != nil {
		c.report.add("INT001", "Catalog", "OutputIntents is not an array")
		return
	}

	for _, o := range intents {
		intent, err := c.ctx.DereferenceDict(o)
		if err != nil || intent == nil || c.name(intent, "S") != "GTS_PDFA1" {
			continue
		}
		profile, found := intent.Find("DestOutputProfile")
		if !found {
			c.report.add("INT002", "OutputIntent", "DestOutputProfile is required")
			return
		}
		if sd, _, err := c.ctx.DereferenceStreamDict(profile); err != nil || sd == nil {
			c.report.add("INT002", "OutputIntent", "DestOutputProfile is not an ICC profile stream")
		}
		return
	}

	c.report.add("INT001", "Catalog", "OutputIntent with subtype GTS_PDFA1 is required")
}

func (c *checker) checkAcroForm(root types.Dict) {
	obj, found := root.Find("AcroForm")
	if !found {
		return
	}
	form, err := c.ctx.DereferenceDict(obj)
	if err != nil || form == nil {
		return
	}

	if na, found := form.Find("NeedAppearances"); found {
		if b, err := c.ctx.DereferenceBoolean(na, model.V10); err == nil && b != nil && b.Value() {
			c.report.add("FRM001", "AcroForm", "NeedAppearances must not be true")
		}
	}

	if dr, found := form.Find("DR"); found {
		if d, err := c.ctx.DereferenceDict(dr); err == nil && d != nil {
			c.checkFonts("AcroForm DR", d)
		}
	}
}

func (c *checker) checkDocumentActions(root types.Dict) {
	if obj, found := root.Find("OpenAction"); found {
		// OpenAction may also be a destination array.
		if d, err := c.ctx.DereferenceDict(obj); err == nil && d != nil {
			c.checkAction("Catalog OpenAction", d)
		}
	}
	c.checkAdditionalActions("Catalog", root)
}

func (c *checker) checkNames(root types.Dict) {
	obj, found := root.Find("Names")
	if !found {
		return
	}
	names, err := c.ctx.DereferenceDict(obj)
	if err != nil || names == nil {
		return
	}

	if _, found := names.Find("JavaScript"); found {
		c.report.add("ACT002", "Names", "Document level JavaScript is forbidden")
	}

	ef, found := names.Find("EmbeddedFiles")
	if !found {
		return
	}

	var specs []types.Object
	c.collectNameTree(ef, 0, &specs)
	if len(specs) == 0 {
		return
	}

	switch {
	case c.level.isA1():
		c.report.add("ATT001", "Names", "Embedded files are forbidden in %s", c.level)
	case c.level.isA2():
		for _, spec := range specs {
			name, mime := c.embeddedFile(spec)
			if mime != "application/pdf" {
				c.report.add("ATT002", "EmbeddedFile "+name,
					"Embedded file must be a PDF/A document in %s, got %q", c.level, mime)
			}
		}
	}
}

// collectNameTree appends the values of a name tree's leaves
func (c *checker) collectNameTree(o types.Object, depth int, out *[]types.Object) {
	if depth > maxResourceDepth {
		return
	}
	node, err := c.ctx.DereferenceDict(o)
	if err != nil || node == nil {
		return
	}
	if arr, err := c.ctx.DereferenceArray(node["Names"]); err == nil {
		for i := 1; i < len(arr); i += 2 {
			*out = append(*out, arr[i])
		}
	}
	if kids, err := c.ctx.DereferenceArray(node["Kids"]); err == nil {
		for _, kid := range kids {
			c.collectNameTree(kid, depth+1, out)
		}
	}
}

// embeddedFile returns the name and MIME subtype of a file specification
func (c *checker) embeddedFile(o types.Object) (string, string) {
	spec, err := c.ctx.DereferenceDict(o)
	if err != nil || spec == nil {
		return "", ""
	}

	name := c.str(spec, "UF")
	if name == "" {
		name = c.str(spec, "F")
	}

	ef, err := c.ctx.DereferenceDict(spec["EF"])
	if err != nil || ef == nil {
		return name, ""
	}
	sd, _, err := c.ctx.DereferenceStreamDict(ef["F"])
	if err != nil || sd == nil {
		return name, ""
	}
	return name, c.name(sd.Dict, "Subtype")
}

func (c *checker) checkPage(nr int, pageDict types.Dict, inherited *model.InheritedPageAttrs) {
	loc := fmt.Sprintf("Page %d", nr)

	resources, err := c.ctx.DereferenceDict(pageDict["Resources"])
	if (err != nil || resources == nil) && inherited != nil {
		resources = inherited.Resources
	}
	if resources != nil {
		c.walkResources(loc, resources, 0)
	}

	c.checkAdditionalActions(loc, pageDict)

	annots, err := c.ctx.DereferenceArray(pageDict["Annots"])
	if err != nil {
		return
	}
	for i, o := range annots {
		annot, err := c.ctx.DereferenceDict(o)
		if err != nil || annot == nil {
			continue
		}
		c.checkAnnotation(fmt.Sprintf("%s annotation %d", loc, i+1), annot)
	}
}

func (c *checker) checkAnnotation(loc string, annot types.Dict) {
	subtype := c.name(annot, "Subtype")
	loc += " (" + subtype + ")"

	switch subtype {
	case "Sound", "Movie", "Screen", "3D", "RichMedia":
		c.report.add("ANN001", loc, "%s annotations are forbidden in %s", subtype, c.level)
	case "FileAttachment":
		if c.level.isA1() {
			c.report.add("ANN001", loc, "%s annotations are forbidden in %s", subtype, c.level)
		}
	}

	if subtype != "Popup" {
		flags := 0
		if f, err := c.ctx.DereferenceInteger(annot["F"]); err == nil && f != nil {
			flags = f.Value()
		}
		if flags&annotFlagPrint == 0 {
			c.report.add("ANN002", loc, "Print flag must be set")
		}
		if flags&(annotFlagInvisible|annotFlagHidden|annotFlagNoView) != 0 {
			c.report.add("ANN002", loc, "Invisible, Hidden and NoView flags must not be set")
		}
	}

	ap, err := c.ctx.DereferenceDict(annot["AP"])
	if err != nil {
		ap = nil
	}
	if subtype != "Popup" && subtype != "Link" && ap == nil {
		c.report.add("ANN003", loc, "Appearance dictionary is required")
	}
	if ap != nil {
		c.walkAppearance(loc, ap)
	}

	if a, err := c.ctx.DereferenceDict(annot["A"]); err == nil && a != nil {
		c.checkAction(loc+" A", a)
	}
	c.checkAdditionalActions(loc, annot)
}

// walkAppearance checks the resources of every appearance stream
func (c *checker) walkAppearance(loc string, ap types.Dict) {
	for _, key := range []string{"N", "R", "D"} {
		o, found := ap.Find(key)
		if !found {
			continue
		}
		if sd, _, err := c.ctx.DereferenceStreamDict(o); err == nil && sd != nil {
			c.walkForm(loc+" AP "+key, o, sd, 0)
			continue
		}
		states, err := c.ctx.DereferenceDict(o)
		if err != nil || states == nil {
			continue
		}
		for state, so := range states {
			if sd, _, err := c.ctx.DereferenceStreamDict(so); err == nil && sd != nil {
				c.walkForm(loc+" AP "+key+" "+state, so, sd, 0)
			}
		}
	}
}

func (c *checker) walkForm(loc string, o types.Object, sd *types.StreamDict, depth int) {
	if ir, ok := o.(types.IndirectRef); ok {
		nr := ir.ObjectNumber.Value()
		if c.streams[nr] {
			return
		}
		c.streams[nr] = true
	}
	if res, err := c.ctx.DereferenceDict(sd.Dict["Resources"]); err == nil && res != nil {
		c.walkResources(loc, res, depth+1)
	}
}

// walkResources checks fonts and descends into form XObjects
func (c *checker) walkResources(loc string, resources types.Dict, depth int) {
	if depth > maxResourceDepth {
		return
	}

	c.checkFonts(loc, resources)

	xobjects, err := c.ctx.DereferenceDict(resources["XObject"])
	if err != nil || xobjects == nil {
		return
	}
	for name, o := range xobjects {
		sd, _, err := c.ctx.DereferenceStreamDict(o)
		if err != nil || sd == nil || c.name(sd.Dict, "Subtype") != "Form" {
			continue
		}
		c.walkForm(loc+" XObject /"+name, o, sd, depth)
	}
}

func (c *checker) checkFonts(loc string, resources types.Dict) {
	fonts, err := c.ctx.DereferenceDict(resources["Font"])
	if err != nil || fonts == nil {
		return
	}

	for name, o := range fonts {
		if ir, ok := o.(types.IndirectRef); ok {
			nr := ir.ObjectNumber.Value()
			if c.fonts[nr] {
				continue
			}
			c.fonts[nr] = true
		}
		font, err := c.ctx.DereferenceDict(o)
		if err != nil || font == nil {
			continue
		}
		if !c.fontEmbedded(font) {
			c.report.add("FNT001", loc+" font /"+name, "Font must be embedded: %s", c.name(font, "BaseFont"))
		}
	}
}

func (c *checker) fontEmbedded(font types.Dict) bool {
	switch c.name(font, "Subtype") {
	case "Type3":
		return true
	case "Type0":
		descendants, err := c.ctx.DereferenceArray(font["DescendantFonts"])
		if err != nil || len(descendants) == 0 {
			return false
		}
		d, err := c.ctx.DereferenceDict(descendants[0])
		if err != nil || d == nil {
			return false
		}
		return c.hasFontFile(d)
	default:
		return c.hasFontFile(font)
	}
}

func (c *checker) hasFontFile(font types.Dict) bool {
	fd, err := c.ctx.DereferenceDict(font["FontDescriptor"])
	if err != nil || fd == nil {
		return false
	}
	for _, key := range []string{"FontFile", "FontFile2", "FontFile3"} {
		if _, found := fd.Find(key); found {
			return true
		}
	}
	return false
}

func (c *checker) checkAdditionalActions(loc string, d types.Dict) {
	aa, err := c.ctx.DereferenceDict(d["AA"])
	if err != nil || aa == nil {
		return
	}
	for trigger, o := range aa {
		if action, err := c.ctx.DereferenceDict(o); err == nil && action != nil {
			c.checkAction(loc+" AA "+trigger, action)
		}
	}
}

// checkAction flags forbidden action types along the action's Next chain
func (c *checker) checkAction(loc string, action types.Dict) {
	for i := 0; action != nil && i < maxActionChain; i++ {
		if s := c.name(action, "S"); forbiddenActions[s] {
			c.report.add("ACT001", loc, "%s actions are forbidden in %s", s, c.level)
		}

		next, found := action.Find("Next")
		if !found {
			return
		}
		if d, err := c.ctx.DereferenceDict(next); err == nil {
			action = d
			continue
		}
		// Next may be an array of actions.
		arr, err := c.ctx.DereferenceArray(next)
		if err != nil {
			return
		}
		for _, o := range arr {
			if d, err := c.ctx.DereferenceDict(o); err == nil && d != nil {
				c.checkAction(loc, d)
			}
		}
		return
	}
}

func (c *checker) name(d types.Dict, key string) string {
	o, found := d.Find(key)
	if !found {
		return ""
	}
	n, err := c.ctx.DereferenceName(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return n.Value()
}

func (c *checker) str(d types.Dict, key string) string {
	o, found := d.Find(key)
	if !found {
		return ""
	}
	s, err := c.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}
