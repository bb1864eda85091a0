package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/doc-assistant/internal/domain"
)

// ErrUnsupportedMediaType marks uploads that are neither PDF, PNG nor JPEG.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Validator provides input validation for uploaded documents
type Validator struct {
	maxPages int
}

// NewValidator creates a validator. maxPages of 0 disables the page limit.
func NewValidator(maxPages int) *Validator {
	return &Validator{maxPages: maxPages}
}

// DetectMediaType resolves the media type of an upload from the declared
// Content-Type and the sniffed content. A generic or missing declaration
// defers to the sniffed type; a specific declaration must agree with it.
func (v *Validator) DetectMediaType(declared string, data []byte) (domain.MediaType, error) {
	if len(data) == 0 {
		return "", domain.ValidationError("file is empty", nil)
	}

	sniffed := normalizeMediaType(http.DetectContentType(data))
	decl := normalizeMediaType(declared)

	if decl == "" || decl == "application/octet-stream" {
		decl = sniffed
	}

	mt := domain.MediaType(decl)
	if !mt.IsSupported() {
		return "", domain.ValidationError(fmt.Sprintf("file type %q is not supported", decl), ErrUnsupportedMediaType)
	}

	if decl != sniffed {
		return "", domain.ValidationError(
			fmt.Sprintf("declared type %s does not match file content (%s)", decl, sniffed),
			ErrUnsupportedMediaType,
		)
	}

	return mt, nil
}

// ValidateDocument checks a document before it reaches the renderer. PDFs
// are opened with pdfcpu to confirm they parse and respect the page limit.
func (v *Validator) ValidateDocument(doc *domain.Document) (int, error) {
	if doc == nil {
		return 0, domain.ValidationError("no document loaded", nil)
	}
	if doc.Size() == 0 {
		return 0, domain.ValidationError("document is empty", nil)
	}
	if !doc.MediaType.IsSupported() {
		return 0, domain.ValidationError(fmt.Sprintf("file type %q is not supported", doc.MediaType), ErrUnsupportedMediaType)
	}

	if !doc.MediaType.IsPDF() {
		return 1, nil
	}

	count, err := PageCount(doc.Data)
	if err != nil {
		return 0, domain.RenderError("Failed to read PDF structure", err)
	}
	if err := v.ValidatePageCount(count); err != nil {
		return 0, err
	}

	return count, nil
}

// ValidatePageCount enforces the configured page limit
func (v *Validator) ValidatePageCount(count int) error {
	if count == 0 {
		return domain.ValidationError("PDF has no pages", nil)
	}
	if v.maxPages > 0 && count > v.maxPages {
		return domain.ValidationError(fmt.Sprintf("PDF has %d pages, the limit is %d", count, v.maxPages), nil)
	}
	return nil
}

// PageCount returns the number of pages in a PDF held in memory. A panic
// inside pdfcpu on malformed input is returned as an error.
func PageCount(data []byte) (int, error) {
	return countPages(func() (int, error) {
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		return api.PageCount(bytes.NewReader(data), conf)
	})
}

func countPages(read func() (int, error)) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, fmt.Errorf("pdfcpu: %v", r)
		}
	}()
	return read()
}

func normalizeMediaType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		s = mt
	}
	s = strings.ToLower(s)
	if s == "image/jpg" || s == "image/pjpeg" {
		s = string(domain.MediaTypeJPEG)
	}
	return s
}
