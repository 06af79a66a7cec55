package forms

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

type valueKind int

const (
	valueText valueKind = iota
	valueChecked
	valueSelected
)

// Value is a value assigned to a field: text, a check state, or a selected option
type Value struct {
	kind    valueKind
	text    string
	checked bool
}

// TextValue assigns text to a text or date field
func TextValue(s string) Value {
	return Value{kind: valueText, text: s}
}

// Checked sets a check box on or off
func Checked(on bool) Value {
	return Value{kind: valueChecked, checked: on}
}

// Selected selects an option of a radio group, combo box or list box
func Selected(option string) Value {
	return Value{kind: valueSelected, text: option}
}

// String renders the value for logs
func (v Value) String() string {
	switch v.kind {
	case valueChecked:
		return fmt.Sprintf("checked=%t", v.checked)
	case valueSelected:
		return fmt.Sprintf("selected=%q", v.text)
	default:
		return fmt.Sprintf("text=%q", v.text)
	}
}

// Assignment pairs a fully qualified field name with a value
type Assignment struct {
	Name  string
	Value Value
}

// DefaultPrefill returns the fixed value set used for the prefilled download
func DefaultPrefill() []Assignment {
	return []Assignment{
		{Name: "FirstName", Value: TextValue("Prefill")},
		{Name: "LastName", Value: TextValue("Prefillson")},
		{Name: "Email", Value: TextValue("prefill@example.com")},
		{Name: "Color", Value: Selected("Blue")},
		{Name: "Land", Value: Checked(true)},
		{Name: "Water", Value: Checked(true)},
		{Name: "Options", Value: Selected("Large")},
		{Name: "BigTextField1", Value: TextValue("Just some random text")},
		{Name: "BigTextField2", Value: TextValue("More gibberish text")},
		{Name: "FinalField", Value: TextValue("The end in near")},
		{Name: "Date", Value: TextValue("2023-12-31")},
	}
}

// Resolved is an assignment bound to the field it targets
type Resolved struct {
	Field Field
	Value Value
}

// Resolve binds every assignment to its field. A missing field yields
// FieldNotFound; a value that cannot be applied to the field's kind yields
// UnsupportedFieldKind.
func Resolve(fields Fields, assignments []Assignment) ([]Resolved, error) {
	resolved := make([]Resolved, 0, len(assignments))

	for _, a := range assignments {
		field, err := fields.Lookup(a.Name)
		if err != nil {
			return nil, err
		}
		if err := compatible(field, a.Value); err != nil {
			return nil, err
		}
		resolved = append(resolved, Resolved{Field: field, Value: a.Value})
	}

	return resolved, nil
}

func compatible(field Field, v Value) error {
	unsupported := func() error {
		return pdferrors.Newf(pdferrors.ErrorTypeUnsupportedFieldKind,
			"cannot assign %s to %s field", v, field.Kind).WithField(field.Name)
	}

	switch field.Kind {
	case KindText, KindDate:
		if v.kind != valueText {
			return unsupported()
		}
	case KindCheckBox:
		if v.kind != valueChecked {
			return unsupported()
		}
	case KindRadioGroup, KindComboBox, KindListBox:
		if v.kind != valueSelected {
			return unsupported()
		}
		if !field.HasOption(v.text) {
			return pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest,
				"option %q not offered, options are %v", v.text, field.Options).WithField(field.Name)
		}
	case KindPushButton, KindSignature, KindUnknown:
		return unsupported()
	}
	return nil
}

// The JSON form exchange format understood by api.FillForm.
type (
	formGroup struct {
		Forms []form `json:"forms"`
	}

	form struct {
		TextFields        []textField  `json:"textfield,omitempty"`
		DateFields        []textField  `json:"datefield,omitempty"`
		CheckBoxes        []checkBox   `json:"checkbox,omitempty"`
		RadioButtonGroups []choice     `json:"radiobuttongroup,omitempty"`
		ComboBoxes        []choice     `json:"combobox,omitempty"`
		ListBoxes         []listChoice `json:"listbox,omitempty"`
	}

	textField struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	checkBox struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}

	choice struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}

	listChoice struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	}
)

func encodeForm(resolved []Resolved) ([]byte, error) {
	var f form

	for _, r := range resolved {
		switch r.Field.Kind {
		case KindText:
			f.TextFields = append(f.TextFields, textField{Name: r.Field.Name, Value: r.Value.text})
		case KindDate:
			f.DateFields = append(f.DateFields, textField{Name: r.Field.Name, Value: r.Value.text})
		case KindCheckBox:
			f.CheckBoxes = append(f.CheckBoxes, checkBox{Name: r.Field.Name, Value: r.Value.checked})
		case KindRadioGroup:
			f.RadioButtonGroups = append(f.RadioButtonGroups, choice{Name: r.Field.Name, Value: r.Value.text})
		case KindComboBox:
			f.ComboBoxes = append(f.ComboBoxes, choice{Name: r.Field.Name, Value: r.Value.text})
		case KindListBox:
			f.ListBoxes = append(f.ListBoxes, listChoice{Name: r.Field.Name, Values: []string{r.Value.text}})
		case KindPushButton, KindSignature, KindUnknown:
			return nil, pdferrors.Newf(pdferrors.ErrorTypeUnsupportedFieldKind,
				"cannot fill %s field", r.Field.Kind).WithField(r.Field.Name)
		}
	}

	return json.Marshal(formGroup{Forms: []form{f}})
}

// Fill applies assignments to the form of content and returns the saved document
func Fill(content []byte, assignments []Assignment) (filled []byte, err error) {
	defer pdferrors.Recover(&err, pdferrors.ErrorTypeParse, "failed to fill form")

	fields, err := InspectBytes(content)
	if err != nil {
		return nil, err
	}

	resolved, err := Resolve(fields, assignments)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		out := make([]byte, len(content))
		copy(out, content)
		return out, nil
	}

	formJSON, err := encodeForm(resolved)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(content), bytes.NewReader(formJSON), &out, Configuration()); err != nil {
		return nil, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to fill form")
	}

	return out.Bytes(), nil
}
