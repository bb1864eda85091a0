package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/observability"
)

// DefaultDPI is the rasterization resolution used when none is configured
const DefaultDPI = 200

// Converter implements domain.Renderer using go-fitz for PDFs and the
// standard image decoders for direct uploads.
type Converter struct {
	dpi       float64
	validator *Validator
	logger    *observability.Logger
}

// NewConverter creates a new converter instance
func NewConverter(dpi float64, maxPages int, logger *observability.Logger) *Converter {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Converter{
		dpi:       dpi,
		validator: NewValidator(maxPages),
		logger:    logger.WithComponent("renderer"),
	}
}

// Render converts doc into page images in document order. An image upload
// yields exactly one page.
func (c *Converter) Render(ctx context.Context, doc *domain.Document) ([]domain.PageImage, error) {
	pageCount, err := c.validator.ValidateDocument(doc)
	if err != nil {
		if !doc.MediaType.IsPDF() || !domain.IsType(err, domain.ErrorTypeRender) {
			return nil, err
		}
		// MuPDF repairs files pdfcpu cannot parse; it decides below.
		c.logger.Warn().Err(err).Str("document", doc.Name).Msg("PDF pre-flight failed, using MuPDF page count")
		pageCount = 0
	}

	if !doc.MediaType.IsPDF() {
		img, _, err := image.Decode(bytes.NewReader(doc.Data))
		if err != nil {
			return nil, domain.RenderError("Failed to decode image", err)
		}
		return []domain.PageImage{{PageNumber: 1, Image: img}}, nil
	}

	return c.renderPDF(ctx, doc, pageCount)
}

func (c *Converter) renderPDF(ctx context.Context, doc *domain.Document, expected int) ([]domain.PageImage, error) {
	fd, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		return nil, domain.RenderError("Failed to open PDF", err)
	}
	defer fd.Close()

	pageCount := fd.NumPage()
	if err := c.validator.ValidatePageCount(pageCount); err != nil {
		return nil, err
	}
	if expected > 0 && pageCount != expected {
		c.logger.Warn().
			Int("pdfcpu_pages", expected).
			Int("mupdf_pages", pageCount).
			Msg("Page count mismatch between parsers")
	}

	images := make([]domain.PageImage, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := fd.ImageDPI(pageNum, c.dpi)
		if err != nil {
			return nil, domain.RenderError(fmt.Sprintf("Failed to render page %d", pageNum+1), err)
		}

		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			Image:      img,
		})
	}

	c.logger.Debug().
		Str("document", doc.Name).
		Int("pages", len(images)).
		Msg("PDF rasterized")

	return images, nil
}
