// Package summary produces a short text-level overview of a PDF document.
package summary

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	pdferrors "github.com/a3tai/pdfslot/internal/pdf/errors"
)

const (
	// PreviewLength is the maximum number of runes kept in Summary.Preview
	PreviewLength = 120

	minMeaningfulTextLength = 50
)

// Content types reported by Summarize
const (
	ContentText      = "text"
	ContentMixed     = "mixed"
	ContentScanned   = "scanned_images"
	ContentNoContent = "no_content"
)

// Summary describes a document's pages and extractable text
type Summary struct {
	Pages       int    `json:"pages"`
	TextLength  int    `json:"text_length"`
	Images      int    `json:"images"`
	ContentType string `json:"content_type"`
	Preview     string `json:"preview,omitempty"`
}

func (s Summary) String() string {
	return fmt.Sprintf("pages: %d, text: %d bytes, images: %d, content: %s",
		s.Pages, s.TextLength, s.Images, s.ContentType)
}

// Summarize reads content and extracts its plain text page by page. Pages
// whose text cannot be decoded are skipped.
func Summarize(content []byte) (sum Summary, err error) {
	if len(content) == 0 {
		return Summary{}, pdferrors.New(pdferrors.ErrorTypeParse, "empty PDF content")
	}

	// The reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			sum = Summary{}
			err = pdferrors.Newf(pdferrors.ErrorTypeParse, "failed to read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Summary{}, pdferrors.Wrap(pdferrors.ErrorTypeParse, err, "failed to open PDF")
	}

	sum.Pages = reader.NumPage()

	var text strings.Builder
	for pageNum := 1; pageNum <= sum.Pages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		sum.Images += countImages(page)

		txt, err := pageText(page)
		if err != nil || txt == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(txt)
	}

	sum.TextLength = text.Len()
	sum.Preview = preview(text.String())
	sum.ContentType = contentType(text.String(), sum.Images)
	return sum, nil
}

func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text extraction panicked: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

func countImages(page pdf.Page) (count int) {
	defer func() {
		if recover() != nil {
			count = 0
		}
	}()

	xObjects := page.V.Key("Resources").Key("XObject")
	if xObjects.IsNull() || xObjects.Kind() != pdf.Dict {
		return 0
	}

	for _, key := range xObjects.Keys() {
		if xObjects.Key(key).Key("Subtype").Name() == "Image" {
			count++
		}
	}
	return count
}

func contentType(text string, images int) string {
	clean := strings.TrimSpace(text)
	switch {
	case len(clean) >= minMeaningfulTextLength && images > 0:
		return ContentMixed
	case len(clean) >= minMeaningfulTextLength:
		return ContentText
	case images > 0:
		return ContentScanned
	default:
		return ContentNoContent
	}
}

// preview collapses whitespace and truncates to PreviewLength runes
func preview(text string) string {
	p := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(p) <= PreviewLength {
		return p
	}
	runes := []rune(p)
	return string(runes[:PreviewLength]) + "..."
}
