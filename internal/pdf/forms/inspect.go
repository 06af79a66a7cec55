package forms

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

const maxFieldDepth = 32

// inherited holds the inheritable field attributes of an ancestor
type inherited struct {
	ft string
	ff int
	v  types.Object
}

type inspector struct {
	ctx     *model.Context
	pages   map[int]int // page object number -> page number
	visited map[int]bool
	fields  Fields
}

// Configuration returns a fresh pdfcpu configuration in relaxed validation
// mode. pdfcpu mutates the configuration it is handed, so every operation gets its own.
func Configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// ReadContext parses content with pdfcpu in relaxed mode. pdfcpu panics on
// some truncated files; those surface as ParseError too.
func ReadContext(content []byte) (ctx *model.Context, err error) {
	defer pdferrors.Recover(&err, pdferrors.ErrorTypeParse, "failed to read PDF context")

	ctx, err = api.ReadContext(bytes.NewReader(content), Configuration())
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to read PDF context")
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to ensure page count")
	}

	return ctx, nil
}

// InspectBytes parses content and returns its form fields
func InspectBytes(content []byte) (fields Fields, err error) {
	defer pdferrors.Recover(&err, pdferrors.ErrorTypeParse, "failed to inspect form")

	ctx, err := ReadContext(content)
	if err != nil {
		return nil, err
	}
	return Inspect(ctx)
}

// Inspect returns all terminal form fields of the document in ctx. A document
// without an AcroForm has no fields.
func Inspect(ctx *model.Context) (Fields, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to get catalog")
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return Fields{}, nil
	}

	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to dereference AcroForm")
	}
	if acroFormDict == nil {
		return Fields{}, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return Fields{}, nil
	}

	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to dereference Fields array")
	}

	in := &inspector{
		ctx:     ctx,
		pages:   pageNumbers(ctx),
		visited: map[int]bool{},
		fields:  Fields{},
	}

	for _, fieldObj := range fieldsArray {
		if err := in.walk(fieldObj, "", inherited{}, 0); err != nil {
			return nil, err
		}
	}

	return in.fields, nil
}

func pageNumbers(ctx *model.Context) map[int]int {
	pages := make(map[int]int, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		_, indRef, _, err := ctx.PageDict(i, false)
		if err != nil || indRef == nil {
			continue
		}
		pages[indRef.ObjectNumber.Value()] = i
	}
	return pages
}

func objectNumber(o types.Object) int {
	if ir, ok := o.(types.IndirectRef); ok {
		return ir.ObjectNumber.Value()
	}
	return 0
}

func (in *inspector) walk(obj types.Object, parentName string, inh inherited, depth int) error {
	if depth > maxFieldDepth {
		return pdferrors.New(pdferrors.ErrorTypeParse, "form field hierarchy too deep")
	}

	objNr := objectNumber(obj)
	if objNr > 0 {
		if in.visited[objNr] {
			return nil
		}
		in.visited[objNr] = true
	}

	d, err := in.ctx.DereferenceDict(obj)
	if err != nil {
		return pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to dereference field")
	}
	if d == nil {
		return nil
	}

	name := parentName
	if partial := in.stringEntry(d, "T"); partial != "" {
		if name != "" {
			name += "."
		}
		name += partial
	}

	if ft := in.nameEntry(d, "FT"); ft != "" {
		inh.ft = ft
	}
	if ff, ok := in.intEntry(d, "Ff"); ok {
		inh.ff = ff
	}
	if v, found := d.Find("V"); found {
		inh.v = v
	}

	var childFields, widgets []types.Object
	if isWidget(in.ctx, d) {
		widgets = append(widgets, obj)
	}

	if kidsObj, found := d.Find("Kids"); found {
		kids, err := in.ctx.DereferenceArray(kidsObj)
		if err != nil {
			return pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to dereference Kids")
		}
		for _, kid := range kids {
			kd, err := in.ctx.DereferenceDict(kid)
			if err != nil || kd == nil {
				continue
			}
			if _, hasName := kd.Find("T"); hasName {
				childFields = append(childFields, kid)
			} else {
				widgets = append(widgets, kid)
			}
		}
	}

	// Non-terminal field: its named kids are the fields.
	if len(childFields) > 0 {
		for _, child := range childFields {
			if err := in.walk(child, name, inh, depth+1); err != nil {
				return err
			}
		}
		if len(widgets) == 0 {
			return nil
		}
	}

	if name == "" {
		name = fmt.Sprintf("field_%d", len(in.fields))
	}

	in.fields = append(in.fields, in.terminal(d, objNr, name, inh, widgets))
	return nil
}

func (in *inspector) terminal(d types.Dict, objNr int, name string, inh inherited, widgets []types.Object) Field {
	field := Field{
		ID:       objNr,
		Name:     name,
		Kind:     in.kind(d, inh, widgets),
		ReadOnly: inh.ff&flagReadOnly != 0,
		Required: inh.ff&flagRequired != 0,
		Widgets:  len(widgets),
	}

	if maxLen, ok := in.intEntry(d, "MaxLen"); ok {
		field.MaxLen = maxLen
	}

	onStates := in.onStates(widgets)

	switch field.Kind {
	case KindText, KindDate:
		field.Value = in.stringValue(inh.v)
	case KindCheckBox:
		field.Value = in.nameValue(inh.v)
		if len(onStates) > 0 {
			field.OnState = onStates[0]
		}
	case KindRadioGroup:
		field.Value = in.nameValue(inh.v)
		field.Options = onStates
	case KindComboBox:
		field.Value = in.stringValue(inh.v)
		field.Options = in.options(d)
	case KindListBox:
		field.Values = in.stringValues(inh.v)
		if len(field.Values) > 0 {
			field.Value = field.Values[0]
		}
		field.Options = in.options(d)
	case KindPushButton, KindSignature, KindUnknown:
	}

	field.Pages = in.widgetPages(widgets)
	return field
}

func (in *inspector) kind(d types.Dict, inh inherited, widgets []types.Object) Kind {
	switch inh.ft {
	case "Btn":
		if inh.ff&flagRadio != 0 {
			return KindRadioGroup
		}
		if inh.ff&flagPushButton != 0 {
			return KindPushButton
		}
		return KindCheckBox
	case "Tx":
		if in.hasDateFormat(d) || in.anyWidgetHasDateFormat(widgets) {
			return KindDate
		}
		return KindText
	case "Ch":
		if inh.ff&flagCombo != 0 {
			return KindComboBox
		}
		return KindListBox
	case "Sig":
		return KindSignature
	default:
		return KindUnknown
	}
}

// hasDateFormat detects the AFDate_FormatEx format action Acrobat uses for date fields
func (in *inspector) hasDateFormat(d types.Dict) bool {
	aaObj, found := d.Find("AA")
	if !found {
		return false
	}
	aa, err := in.ctx.DereferenceDict(aaObj)
	if err != nil || aa == nil {
		return false
	}
	fObj, found := aa.Find("F")
	if !found {
		return false
	}
	action, err := in.ctx.DereferenceDict(fObj)
	if err != nil || action == nil {
		return false
	}
	return strings.Contains(in.javaScript(action), "AFDate_FormatEx(")
}

func (in *inspector) anyWidgetHasDateFormat(widgets []types.Object) bool {
	for _, w := range widgets {
		if wd, err := in.ctx.DereferenceDict(w); err == nil && wd != nil && in.hasDateFormat(wd) {
			return true
		}
	}
	return false
}

func (in *inspector) javaScript(action types.Dict) string {
	jsObj, found := action.Find("JS")
	if !found {
		return ""
	}
	if s, err := in.ctx.DereferenceStringOrHexLiteral(jsObj, model.V10, nil); err == nil {
		return s
	}
	if sd, _, err := in.ctx.DereferenceStreamDict(jsObj); err == nil && sd != nil {
		if err := sd.Decode(); err == nil {
			return string(sd.Content)
		}
	}
	return ""
}

// onStates returns the appearance state names other than Off, in widget order
func (in *inspector) onStates(widgets []types.Object) []string {
	var states []string
	seen := map[string]bool{}

	for _, w := range widgets {
		wd, err := in.ctx.DereferenceDict(w)
		if err != nil || wd == nil {
			continue
		}
		normal := in.normalAppearanceDict(wd)
		if normal == nil {
			continue
		}

		keys := make([]string, 0, len(normal))
		for k := range normal {
			if k != "Off" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				states = append(states, k)
			}
		}
	}

	return states
}

// normalAppearanceDict returns /AP /N when it is a dictionary of appearance states
func (in *inspector) normalAppearanceDict(widget types.Dict) types.Dict {
	apObj, found := widget.Find("AP")
	if !found {
		return nil
	}
	ap, err := in.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil
	}
	if ir, ok := nObj.(types.IndirectRef); ok {
		o, err := in.ctx.Dereference(ir)
		if err != nil {
			return nil
		}
		nObj = o
	}
	if n, ok := nObj.(types.Dict); ok {
		return n
	}
	return nil
}

func (in *inspector) widgetPages(widgets []types.Object) []int {
	var pages []int
	seen := map[int]bool{}

	for _, w := range widgets {
		wd, err := in.ctx.DereferenceDict(w)
		if err != nil || wd == nil {
			continue
		}
		pObj, found := wd.Find("P")
		if !found {
			continue
		}
		if nr, ok := in.pages[objectNumber(pObj)]; ok && !seen[nr] {
			seen[nr] = true
			pages = append(pages, nr)
		}
	}

	sort.Ints(pages)
	return pages
}

// options returns the display values of a choice field's Opt array
func (in *inspector) options(d types.Dict) []string {
	optObj, found := d.Find("Opt")
	if !found {
		return nil
	}
	optArray, err := in.ctx.DereferenceArray(optObj)
	if err != nil {
		return nil
	}

	var options []string
	for _, opt := range optArray {
		if s, err := in.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			options = append(options, s)
		} else if pair, err := in.ctx.DereferenceArray(opt); err == nil && len(pair) >= 2 {
			// [export value, display value]; filling matches on the export value
			if s, err := in.ctx.DereferenceStringOrHexLiteral(pair[0], model.V10, nil); err == nil {
				options = append(options, s)
			}
		}
	}
	return options
}

func (in *inspector) stringEntry(d types.Dict, key string) string {
	o, found := d.Find(key)
	if !found {
		return ""
	}
	s, err := in.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func (in *inspector) nameEntry(d types.Dict, key string) string {
	o, found := d.Find(key)
	if !found {
		return ""
	}
	n, err := in.ctx.DereferenceName(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return n.Value()
}

func (in *inspector) intEntry(d types.Dict, key string) (int, bool) {
	o, found := d.Find(key)
	if !found {
		return 0, false
	}
	i, err := in.ctx.DereferenceInteger(o)
	if err != nil || i == nil {
		return 0, false
	}
	return i.Value(), true
}

func (in *inspector) stringValue(o types.Object) string {
	if o == nil {
		return ""
	}
	if s, err := in.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil); err == nil {
		return s
	}
	return ""
}

func (in *inspector) nameValue(o types.Object) string {
	if o == nil {
		return ""
	}
	if n, err := in.ctx.DereferenceName(o, model.V10, nil); err == nil {
		return n.Value()
	}
	return ""
}

func (in *inspector) stringValues(o types.Object) []string {
	if o == nil {
		return nil
	}
	if s, err := in.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil); err == nil {
		return []string{s}
	}
	arr, err := in.ctx.DereferenceArray(o)
	if err != nil {
		return nil
	}
	var values []string
	for _, item := range arr {
		if s, err := in.ctx.DereferenceStringOrHexLiteral(item, model.V10, nil); err == nil {
			values = append(values, s)
		}
	}
	return values
}

func isWidget(ctx *model.Context, d types.Dict) bool {
	o, found := d.Find("Subtype")
	if !found {
		_, hasRect := d.Find("Rect")
		return hasRect
	}
	n, err := ctx.DereferenceName(o, model.V10, nil)
	return err == nil && n.Value() == "Widget"
}
