// Package render turns translated chapters into a finished book file.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrEmptyBook         = errors.New("book has no chapters")
)

// Book is the renderer input. Chapters may arrive in any order; they are
// laid out by ascending ID.
type Book struct {
	JobID    uuid.UUID
	Title    string
	Language string
	Chapters []models.Chapter
}

// Layout holds the book typography. Lengths are inches, sizes are points.
type Layout struct {
	PageWidth    float64
	PageHeight   float64
	InnerMargin  float64
	OuterMargin  float64
	TopMargin    float64
	BottomMargin float64

	BodySize        float64
	TitleSize       float64
	DropCapSize     float64
	DropCapLines    int
	FirstLineIndent float64

	ChapterLabel string
	// DocxFont is the body font named in Word output.
	DocxFont string
	// PDFFontPath, when set, is a UTF-8 TrueType font embedded in PDF
	// output. Without it the core Times fonts are used.
	PDFFontPath string
}

// DefaultLayout is a 6x9 trade paperback.
func DefaultLayout() Layout {
	return Layout{
		PageWidth:       6,
		PageHeight:      9,
		InnerMargin:     0.75,
		OuterMargin:     0.5,
		TopMargin:       0.5,
		BottomMargin:    0.5,
		BodySize:        11,
		TitleSize:       30,
		DropCapSize:     30,
		DropCapLines:    3,
		FirstLineIndent: 20,
		ChapterLabel:    "Chapter",
		DocxFont:        "Georgia",
	}
}

// Renderer produces the output document for a job and returns its path.
type Renderer interface {
	Render(ctx context.Context, format models.OutputFormat, book Book) (string, error)
}

// encoder writes one format to w. Chapters are already sorted.
type encoder func(ctx context.Context, w io.Writer, book Book, l Layout) error

// FileRenderer writes <dir>/<job-id>.<ext>. The final name only appears once
// the file is complete; failed renders leave nothing behind.
type FileRenderer struct {
	dir      string
	layout   Layout
	encoders map[models.OutputFormat]encoder
	validate map[models.OutputFormat]func(path string) error
}

func NewFileRenderer(dir string, layout Layout) *FileRenderer {
	return &FileRenderer{
		dir:    dir,
		layout: layout,
		encoders: map[models.OutputFormat]encoder{
			models.FormatDOCX: encodeDOCX,
			models.FormatPDF:  encodePDF,
		},
		validate: map[models.OutputFormat]func(string) error{
			models.FormatPDF: validatePDF,
		},
	}
}

// Dir returns the output directory.
func (r *FileRenderer) Dir() string { return r.dir }

func (r *FileRenderer) Render(ctx context.Context, format models.OutputFormat, book Book) (string, error) {
	enc, ok := r.encoders[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if len(book.Chapters) == 0 {
		return "", ErrEmptyBook
	}

	book.Chapters = slices.Clone(book.Chapters)
	slices.SortStableFunc(book.Chapters, func(a, b models.Chapter) int { return a.ID - b.ID })

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	final := filepath.Join(r.dir, book.JobID.String()+"."+format.Ext())
	tmp, err := os.CreateTemp(r.dir, "."+book.JobID.String()+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := enc(ctx, tmp, book, r.layout); err != nil {
		tmp.Close()
		return "", fmt.Errorf("render %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if check := r.validate[format]; check != nil {
		if err := check(tmpPath); err != nil {
			return "", fmt.Errorf("validate %s: %w", format, err)
		}
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("publish document: %w", err)
	}
	published = true

	slog.Info("document rendered", "job_id", book.JobID, "format", format,
		"chapters", len(book.Chapters), "path", final)
	return final, nil
}

// paragraphs splits chapter text on blank lines. Single line breaks inside
// a paragraph become spaces.
func paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(content, "\n\n") {
		p := strings.Join(strings.Fields(block), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitDropCap separates the first rune of p. Paragraphs of one rune get no
// drop cap.
func splitDropCap(p string) (capital, rest string) {
	for i := range p {
		if i > 0 {
			return p[:i], p[i:]
		}
	}
	return "", p
}

func (l Layout) chapterTitle(id int) string {
	label := l.ChapterLabel
	if label == "" {
		label = "Chapter"
	}
	return fmt.Sprintf("%s %d", label, id)
}

var _ Renderer = (*FileRenderer)(nil)
