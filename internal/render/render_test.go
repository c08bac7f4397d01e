package render_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/internal/render"
	"github.com/kiranshivaraju/booktrans/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBook() render.Book {
	return render.Book{
		JobID:    uuid.New(),
		Title:    "El libro",
		Language: "Spanish",
		Chapters: []models.Chapter{
			{ID: 2, Content: "Segundo capítulo.\n\nOtra línea con <etiqueta> & símbolos."},
			{ID: 1, Content: "Érase una vez un traductor.\n\nY otro párrafo."},
			{ID: 3, Content: "Fin."},
		},
	}
}

func readZipEntry(t *testing.T, path, name string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatalf("zip entry %s not found", name)
	return ""
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRender_DOCX(t *testing.T) {
	dir := t.TempDir()
	r := render.NewFileRenderer(dir, render.DefaultLayout())
	book := sampleBook()

	path, err := r.Render(context.Background(), models.FormatDOCX, book)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, book.JobID.String()+".docx"), path)
	assert.Equal(t, []string{book.JobID.String() + ".docx"}, dirEntries(t, dir), "no temp files left")

	doc := readZipEntry(t, path, "word/document.xml")
	one := strings.Index(doc, "Chapter 1")
	two := strings.Index(doc, "Chapter 2")
	three := strings.Index(doc, "Chapter 3")
	require.True(t, one >= 0 && two >= 0 && three >= 0)
	assert.Less(t, one, two)
	assert.Less(t, two, three)

	assert.Contains(t, doc, `w:dropCap="drop"`)
	assert.Contains(t, doc, `<w:t>É</w:t>`, "first letter becomes the drop cap")
	assert.Contains(t, doc, "&lt;etiqueta&gt; &amp; símbolos")
	assert.Equal(t, 2, strings.Count(doc, "<w:pageBreakBefore/>"), "every chapter after the first starts a page")
	assert.Contains(t, doc, `<w:pgSz w:w="8640" w:h="12960"/>`)
	assert.Contains(t, doc, `w:left="1080"`)
	assert.Contains(t, doc, `w:right="720"`)

	settings := readZipEntry(t, path, "word/settings.xml")
	assert.Contains(t, settings, "<w:mirrorMargins/>")
	assert.Contains(t, settings, "<w:evenAndOddHeaders/>")

	assert.Contains(t, readZipEntry(t, path, "word/footer1.xml"), `<w:jc w:val="right"/>`)
	assert.Contains(t, readZipEntry(t, path, "word/footer2.xml"), `<w:jc w:val="left"/>`)
	assert.Contains(t, readZipEntry(t, path, "word/styles.xml"), `w:ascii="Georgia"`)
}

func TestRender_DOCX_ChapterLabel(t *testing.T) {
	layout := render.DefaultLayout()
	layout.ChapterLabel = "Capítulo"
	r := render.NewFileRenderer(t.TempDir(), layout)

	path, err := r.Render(context.Background(), models.FormatDOCX, sampleBook())
	require.NoError(t, err)
	assert.Contains(t, readZipEntry(t, path, "word/document.xml"), "Capítulo 1")
}

func TestRender_PDF(t *testing.T) {
	dir := t.TempDir()
	r := render.NewFileRenderer(dir, render.DefaultLayout())
	book := sampleBook()
	book.Chapters[0].Content = strings.Repeat("Una frase bastante larga que ocupa espacio en la página. ", 200)

	path, err := r.Render(context.Background(), models.FormatPDF, book)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, book.JobID.String()+".pdf"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))
	assert.Equal(t, []string{book.JobID.String() + ".pdf"}, dirEntries(t, dir))
}

func TestRender_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	r := render.NewFileRenderer(dir, render.DefaultLayout())

	_, err := r.Render(context.Background(), models.OutputFormat("epub"), sampleBook())
	assert.ErrorIs(t, err, render.ErrUnsupportedFormat)
	assert.Empty(t, dirEntries(t, dir))
}

func TestRender_EmptyBook(t *testing.T) {
	r := render.NewFileRenderer(t.TempDir(), render.DefaultLayout())
	_, err := r.Render(context.Background(), models.FormatDOCX, render.Book{JobID: uuid.New()})
	assert.ErrorIs(t, err, render.ErrEmptyBook)
}

func TestRender_CancelledLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	r := render.NewFileRenderer(dir, render.DefaultLayout())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, f := range []models.OutputFormat{models.FormatDOCX, models.FormatPDF} {
		_, err := r.Render(ctx, f, sampleBook())
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Empty(t, dirEntries(t, dir))
}

func TestRender_MissingFontFails(t *testing.T) {
	dir := t.TempDir()
	layout := render.DefaultLayout()
	layout.PDFFontPath = filepath.Join(dir, "missing.ttf")
	r := render.NewFileRenderer(dir, layout)

	_, err := r.Render(context.Background(), models.FormatPDF, sampleBook())
	assert.Error(t, err)
	assert.Empty(t, dirEntries(t, dir))
}

func TestRender_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	r := render.NewFileRenderer(dir, render.DefaultLayout())

	path, err := r.Render(context.Background(), models.FormatDOCX, sampleBook())
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
