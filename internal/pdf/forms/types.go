// Package forms reads and fills AcroForm fields.
//
// Fields are classified once, when they are read, into a Kind. Code that
// needs kind-specific behaviour switches over Kind instead of inspecting the
// underlying PDF dictionaries again.
package forms

import (
	"fmt"
	"strings"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

// Kind identifies the type of an AcroForm field
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindDate
	KindCheckBox
	KindRadioGroup
	KindComboBox
	KindListBox
	KindPushButton
	KindSignature
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindCheckBox:
		return "checkbox"
	case KindRadioGroup:
		return "radio"
	case KindComboBox:
		return "combobox"
	case KindListBox:
		return "listbox"
	case KindPushButton:
		return "pushbutton"
	case KindSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON output
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Field flag bits (PDF 32000-1, tables 221, 226, 228, 230)
const (
	flagReadOnly   = 1
	flagRequired   = 1 << 1
	flagPushButton = 1 << 16
	flagRadio      = 1 << 15
	flagCombo      = 1 << 17
)

// Field is a terminal AcroForm field
type Field struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"` // multi-select list boxes
	Options  []string `json:"options,omitempty"`
	OnState  string   `json:"on_state,omitempty"` // check boxes only
	ReadOnly bool     `json:"read_only"`
	Required bool     `json:"required"`
	MaxLen   int      `json:"max_len,omitempty"`
	Pages    []int    `json:"pages,omitempty"`
	Widgets  int      `json:"widgets"`
}

// Checked reports whether a check box is in its on state
func (f Field) Checked() bool {
	return f.Kind == KindCheckBox && f.Value != "" && f.Value != "Off"
}

// HasOption reports whether option is one of the field's options. Fields
// without a known option list accept any option.
func (f Field) HasOption(option string) bool {
	if len(f.Options) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o == option {
			return true
		}
	}
	return false
}

// String renders the field as a single diagnostic line
func (f Field) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{name: %s", f.Kind, f.Name)

	switch f.Kind {
	case KindCheckBox:
		fmt.Fprintf(&b, ", checked: %t, onState: %s", f.Checked(), f.OnState)
	case KindRadioGroup, KindComboBox:
		fmt.Fprintf(&b, ", value: %q, options: [%s]", f.Value, strings.Join(f.Options, ", "))
	case KindListBox:
		fmt.Fprintf(&b, ", values: [%s], options: [%s]", strings.Join(f.Values, ", "), strings.Join(f.Options, ", "))
	case KindText, KindDate:
		fmt.Fprintf(&b, ", value: %q", f.Value)
		if f.MaxLen > 0 {
			fmt.Fprintf(&b, ", maxLen: %d", f.MaxLen)
		}
	case KindPushButton, KindSignature, KindUnknown:
	}

	if f.ReadOnly {
		b.WriteString(", readOnly")
	}
	if f.Required {
		b.WriteString(", required")
	}
	if len(f.Pages) > 0 {
		fmt.Fprintf(&b, ", pages: %v", f.Pages)
	}
	b.WriteString("}")
	return b.String()
}

// Fields is the ordered list of terminal fields of a document
type Fields []Field

// Lookup returns the field with the given fully qualified name
func (fs Fields) Lookup(name string) (Field, error) {
	for _, f := range fs {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, pdferrors.New(pdferrors.ErrorTypeFieldNotFound, "form field not present").WithField(name)
}

// Names returns the fully qualified names in document order
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Describe returns one human readable line per field
func Describe(fields Fields) []string {
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f.String()
	}
	return lines
}
