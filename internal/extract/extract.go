// Package extract pulls chapter text out of uploaded PDF files.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/booktrans/pkg/models"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrInvalidPDF = errors.New("invalid PDF file")
	ErrNoText     = errors.New("no extractable text found in PDF")
)

// Extractor turns an uploaded document into chapters.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]models.Chapter, error)
}

// PDFExtractor emits one chapter per page that has text. The chapter ID is
// the 1-based page number, so skipped pages leave gaps.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) ([]models.Chapter, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	var chapters []models.Chapter
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", i, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		chapters = append(chapters, models.Chapter{ID: i, Content: text})
	}

	if len(chapters) == 0 {
		return nil, ErrNoText
	}
	return chapters, nil
}

// pageText returns the trimmed plain text of one page. The reader panics on
// some malformed content streams, so that is reported as an error.
func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read page content: %v", r)
		}
	}()
	s, err := p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

var _ Extractor = (*PDFExtractor)(nil)
