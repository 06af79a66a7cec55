// Package flatten bakes form widget appearances into page content and
// removes the interactive form.
package flatten

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
	"github.com/a3tai/pdfslot/internal/pdf/forms"
)

// Annotation flags (PDF 32000-1, 12.5.3)
const (
	annotFlagHidden = 1 << 1
	annotFlagNoView = 1 << 5
)

// Result describes what a flatten pass changed
type Result struct {
	Widgets int `json:"widgets"` // widgets painted into page content
	Dropped int `json:"dropped"` // widgets removed without painting
	Pages   int `json:"pages"`   // pages touched
}

// Bytes flattens content and returns the rewritten document
func Bytes(content []byte) (flat []byte, res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			flat, res = nil, Result{}
			err = pdferrors.Newf(pdferrors.ErrorTypeParse, "failed to flatten document: %v", r)
		}
	}()

	ctx, err := forms.ReadContext(content)
	if err != nil {
		return nil, Result{}, err
	}

	res, err = Flatten(ctx)
	if err != nil {
		return nil, Result{}, err
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, Result{}, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to write flattened document")
	}

	return out.Bytes(), res, nil
}

// Flatten rewrites ctx in place. Every widget annotation with a normal
// appearance is painted onto its page as a form XObject, all widgets are
// removed from the pages and the AcroForm is dropped from the catalog.
func Flatten(ctx *model.Context) (Result, error) {
	var res Result

	for i := 1; i <= ctx.PageCount; i++ {
		pageDict, _, inherited, err := ctx.PageDict(i, false)
		if err != nil {
			return res, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, fmt.Sprintf("failed to get page %d", i))
		}
		if pageDict == nil {
			continue
		}

		p := &page{ctx: ctx, dict: pageDict, inherited: inherited}
		touched, err := p.flatten(&res)
		if err != nil {
			return res, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, fmt.Sprintf("failed to flatten page %d", i))
		}
		if touched {
			res.Pages++
		}
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return res, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to get catalog")
	}
	rootDict.Delete("AcroForm")

	return res, nil
}

type page struct {
	ctx       *model.Context
	dict      types.Dict
	inherited *model.InheritedPageAttrs
	xobjects  types.Dict
	ops       strings.Builder
}

func (p *page) flatten(res *Result) (bool, error) {
	annotsObj, found := p.dict.Find("Annots")
	if !found {
		return false, nil
	}
	annots, err := p.ctx.DereferenceArray(annotsObj)
	if err != nil {
		return false, err
	}

	kept := types.Array{}
	widgets := 0

	for _, annotObj := range annots {
		annot, err := p.ctx.DereferenceDict(annotObj)
		if err != nil || annot == nil || !isWidget(p.ctx, annot) {
			kept = append(kept, annotObj)
			continue
		}
		widgets++

		painted, err := p.paint(annot)
		if err != nil {
			return false, err
		}
		if painted {
			res.Widgets++
		} else {
			res.Dropped++
		}
	}

	if widgets == 0 {
		return false, nil
	}

	if len(kept) == 0 {
		p.dict.Delete("Annots")
	} else {
		p.dict.Update("Annots", kept)
	}

	if p.ops.Len() > 0 {
		if err := p.appendContent(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// paint queues the drawing of a widget's normal appearance. It reports false
// for hidden widgets and widgets without appearance.
func (p *page) paint(annot types.Dict) (bool, error) {
	if flags, ok := intEntry(p.ctx, annot, "F"); ok && flags&(annotFlagHidden|annotFlagNoView) != 0 {
		return false, nil
	}

	apRef, sd, err := p.normalAppearance(annot)
	if err != nil || sd == nil {
		return false, err
	}

	rect, ok := rectEntry(p.ctx, annot, "Rect")
	if !ok {
		return false, nil
	}
	bbox, ok := rectEntry(p.ctx, sd.Dict, "BBox")
	if !ok {
		return false, nil
	}
	if m, ok := matrixEntry(p.ctx, sd.Dict); ok {
		bbox = m.transform(bbox)
	}
	if bbox.width() == 0 || bbox.height() == 0 {
		return false, nil
	}

	sd.Dict.Update("Type", types.Name("XObject"))
	sd.Dict.Update("Subtype", types.Name("Form"))

	name, err := p.register(apRef)
	if err != nil {
		return false, err
	}

	sx := rect.width() / bbox.width()
	sy := rect.height() / bbox.height()
	tx := rect.llx - bbox.llx*sx
	ty := rect.lly - bbox.lly*sy

	fmt.Fprintf(&p.ops, "q %s 0 0 %s %s %s cm /%s Do Q\n", num(sx), num(sy), num(tx), num(ty), name)
	return true, nil
}

// normalAppearance resolves /AP /N, selecting the /AS state when /N is a
// dictionary of appearance states.
func (p *page) normalAppearance(annot types.Dict) (types.IndirectRef, *types.StreamDict, error) {
	apObj, found := annot.Find("AP")
	if !found {
		return types.IndirectRef{}, nil, nil
	}
	ap, err := p.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return types.IndirectRef{}, nil, err
	}

	n, found := ap.Find("N")
	if !found {
		return types.IndirectRef{}, nil, nil
	}

	if ir, ok := n.(types.IndirectRef); ok {
		o, err := p.ctx.Dereference(ir)
		if err != nil {
			return types.IndirectRef{}, nil, err
		}
		if sd, ok := o.(types.StreamDict); ok {
			return ir, &sd, nil
		}
		n = o
	}

	states, ok := n.(types.Dict)
	if !ok {
		return types.IndirectRef{}, nil, nil
	}

	state := "Off"
	if as, found := annot.Find("AS"); found {
		if name, err := p.ctx.DereferenceName(as, model.V10, nil); err == nil {
			state = name.Value()
		}
	}

	stateObj, found := states.Find(state)
	if !found {
		return types.IndirectRef{}, nil, nil
	}
	ir, ok := stateObj.(types.IndirectRef)
	if !ok {
		return types.IndirectRef{}, nil, nil
	}
	sd, _, err := p.ctx.DereferenceStreamDict(ir)
	if err != nil || sd == nil {
		return types.IndirectRef{}, nil, err
	}
	return ir, sd, nil
}

// register adds the appearance to the page's XObject resources under a fresh name
func (p *page) register(ref types.IndirectRef) (string, error) {
	if p.xobjects == nil {
		resources, err := p.resources()
		if err != nil {
			return "", err
		}
		xobjects, err := p.ctx.DereferenceDict(resources["XObject"])
		if err != nil {
			return "", err
		}
		if xobjects == nil {
			xobjects = types.Dict{}
		} else {
			xobjects = xobjects.Clone().(types.Dict)
		}
		resources.Update("XObject", xobjects)
		p.xobjects = xobjects
	}

	for i := len(p.xobjects); ; i++ {
		name := "Flat" + strconv.Itoa(i)
		if _, taken := p.xobjects.Find(name); !taken {
			p.xobjects.Insert(name, ref)
			return name, nil
		}
	}
}

// resources returns the page's own resource dictionary, materializing
// inherited resources on the page when it has none.
func (p *page) resources() (types.Dict, error) {
	if obj, found := p.dict.Find("Resources"); found {
		d, err := p.ctx.DereferenceDict(obj)
		if err != nil {
			return nil, err
		}
		if d != nil {
			// Indirect resource dicts may be shared between pages.
			d = d.Clone().(types.Dict)
			p.dict.Update("Resources", d)
			return d, nil
		}
	}

	d := types.Dict{}
	if p.inherited != nil && p.inherited.Resources != nil {
		d = p.inherited.Resources.Clone().(types.Dict)
	}
	p.dict.Update("Resources", d)
	return d, nil
}

// appendContent wraps the existing content in q/Q and appends the queued
// appearance drawing operators.
func (p *page) appendContent() error {
	prefix, err := p.newContentStream("q\n")
	if err != nil {
		return err
	}
	suffix, err := p.newContentStream("Q\n" + p.ops.String())
	if err != nil {
		return err
	}

	contents := types.Array{*prefix}
	if obj, found := p.dict.Find("Contents"); found {
		switch c := obj.(type) {
		case types.IndirectRef:
			o, err := p.ctx.Dereference(c)
			if err != nil {
				return err
			}
			if arr, ok := o.(types.Array); ok {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, c)
			}
		case types.Array:
			contents = append(contents, c...)
		}
	}
	contents = append(contents, *suffix)

	p.dict.Update("Contents", contents)
	return nil
}

func (p *page) newContentStream(s string) (*types.IndirectRef, error) {
	sd, err := p.ctx.NewStreamDictForBuf([]byte(s))
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return p.ctx.IndRefForNewObject(*sd)
}

func isWidget(ctx *model.Context, d types.Dict) bool {
	o, found := d.Find("Subtype")
	if !found {
		return false
	}
	n, err := ctx.DereferenceName(o, model.V10, nil)
	return err == nil && n.Value() == "Widget"
}

func intEntry(ctx *model.Context, d types.Dict, key string) (int, bool) {
	o, found := d.Find(key)
	if !found {
		return 0, false
	}
	i, err := ctx.DereferenceInteger(o)
	if err != nil || i == nil {
		return 0, false
	}
	return i.Value(), true
}

type box struct {
	llx, lly, urx, ury float64
}

func (b box) width() float64  { return b.urx - b.llx }
func (b box) height() float64 { return b.ury - b.lly }

func numbers(ctx *model.Context, d types.Dict, key string, n int) ([]float64, bool) {
	o, found := d.Find(key)
	if !found {
		return nil, false
	}
	arr, err := ctx.DereferenceArray(o)
	if err != nil || len(arr) != n {
		return nil, false
	}
	vals := make([]float64, n)
	for i, item := range arr {
		f, err := ctx.DereferenceNumber(item)
		if err != nil {
			return nil, false
		}
		vals[i] = f
	}
	return vals, true
}

// rectEntry reads a rectangle, normalizing corner order
func rectEntry(ctx *model.Context, d types.Dict, key string) (box, bool) {
	v, ok := numbers(ctx, d, key, 4)
	if !ok {
		return box{}, false
	}
	return box{
		llx: math.Min(v[0], v[2]), lly: math.Min(v[1], v[3]),
		urx: math.Max(v[0], v[2]), ury: math.Max(v[1], v[3]),
	}, true
}

type matrix [6]float64

func matrixEntry(ctx *model.Context, d types.Dict) (matrix, bool) {
	v, ok := numbers(ctx, d, "Matrix", 6)
	if !ok {
		return matrix{}, false
	}
	var m matrix
	copy(m[:], v)
	return m, true
}

// transform returns the bounding box of b mapped through m
func (m matrix) transform(b box) box {
	xs := [4]float64{b.llx, b.urx, b.urx, b.llx}
	ys := [4]float64{b.lly, b.lly, b.ury, b.ury}

	out := box{llx: math.Inf(1), lly: math.Inf(1), urx: math.Inf(-1), ury: math.Inf(-1)}
	for i := range xs {
		x := m[0]*xs[i] + m[2]*ys[i] + m[4]
		y := m[1]*xs[i] + m[3]*ys[i] + m[5]
		out.llx = math.Min(out.llx, x)
		out.lly = math.Min(out.lly, y)
		out.urx = math.Max(out.urx, x)
		out.ury = math.Max(out.ury, y)
	}
	return out
}

func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*10000)/10000, 'f', -1, 64)
}
