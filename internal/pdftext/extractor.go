// Package pdftext extracts per-page plain text from PDF documents.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Magic is the header every PDF body starts with.
const Magic = "%PDF-"

// ErrNotPDF is returned for bodies without the PDF header.
var ErrNotPDF = errors.New("body is not a pdf")

// PageError records a page whose text could not be extracted.
type PageError struct {
	Page int
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e PageError) Unwrap() error {
	return e.Err
}

// Extractor implements minutes.TextExtractor over github.com/ledongthuc/pdf.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}

// Extract returns one Page per PDF page, numbered from 1. Pages that fail to
// decode are returned with empty text; their failures are joined into the
// returned error alongside the pages. Callers that only need text may ignore
// an error when pages is non-nil.
func (e *Extractor) Extract(data []byte) (pages []minutes.Page, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}
	defer func() {
		// The decoder panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("decode pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages = make([]minutes.Page, 0, total)
	var pageErrs []error
	for i := 1; i <= total; i++ {
		text, perr := pageText(reader, i)
		if perr != nil {
			pageErrs = append(pageErrs, PageError{Page: i, Err: perr})
		}
		pages = append(pages, minutes.Page{Number: i, Text: text})
	}
	return pages, errors.Join(pageErrs...)
}

func pageText(reader *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("extract text: %v", r)
		}
	}()
	page := reader.Page(number)
	if page.V.IsNull() {
		return "", nil
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return Normalize(raw), nil
}

// Normalize applies NFKC and collapses every whitespace run to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
