package render

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	pointsPerInch = 72.0
	lineSpacing   = 1.3
	utf8Family    = "booktrans"
)

// pdfBook carries the gofpdf document and the derived metrics.
type pdfBook struct {
	pdf    *gofpdf.Fpdf
	l      Layout
	family string
	style  string // bold style for titles, empty for embedded fonts
	tr     func(string) string
	lh     float64 // body line height in inches
}

// encodePDF typesets the book with gofpdf. Margins mirror on even pages and
// page numbers sit on the outer edge.
func encodePDF(ctx context.Context, w io.Writer, book Book, l Layout) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "in",
		Size:    gofpdf.SizeType{Wd: l.PageWidth, Ht: l.PageHeight},
	})
	pdf.SetTitle(book.Title, true)
	pdf.SetCreator("booktrans", true)

	b := &pdfBook{
		pdf:    pdf,
		l:      l,
		family: "Times",
		style:  "B",
		lh:     l.BodySize * lineSpacing / pointsPerInch,
	}
	if l.PDFFontPath != "" {
		pdf.AddUTF8Font(utf8Family, "", l.PDFFontPath)
		b.family, b.style = utf8Family, ""
		b.tr = func(s string) string { return s }
	} else {
		b.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("load font: %w", err)
	}

	pdf.SetAutoPageBreak(true, l.BottomMargin+b.lh)
	pdf.SetAcceptPageBreakFunc(func() bool {
		b.mirrorMargins(pdf.PageNo() + 1)
		return true
	})
	pdf.SetFooterFunc(b.footer)

	for _, ch := range book.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.chapter(ch.ID, ch.Content)
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("chapter %d: %w", ch.ID, err)
		}
	}
	return pdf.Output(w)
}

// mirrorMargins sets margins for page n: the inner margin is on the left of
// odd pages and on the right of even pages.
func (b *pdfBook) mirrorMargins(n int) {
	left, right := b.l.InnerMargin, b.l.OuterMargin
	if n%2 == 0 {
		left, right = right, left
	}
	b.pdf.SetMargins(left, b.l.TopMargin, right)
}

func (b *pdfBook) footer() {
	n := b.pdf.PageNo()
	align := "R"
	if n%2 == 0 {
		align = "L"
	}
	b.pdf.SetY(-b.l.BottomMargin - b.lh/2)
	b.pdf.SetFont(b.family, "", b.l.BodySize-1)
	b.pdf.CellFormat(0, b.lh, strconv.Itoa(n), "", 0, align, false, 0, "")
}

func (b *pdfBook) chapter(id int, content string) {
	pdf := b.pdf
	b.mirrorMargins(pdf.PageNo() + 1)
	pdf.AddPage()

	titleH := b.l.TitleSize * 1.2 / pointsPerInch
	pdf.SetFont(b.family, b.style, b.l.TitleSize)
	pdf.CellFormat(0, titleH, b.tr(b.l.chapterTitle(id)), "", 1, "R", false, 0, "")
	pdf.Ln(titleH / 2)

	pdf.SetFont(b.family, "", b.l.BodySize)
	for i, p := range paragraphs(content) {
		if i == 0 {
			b.leadParagraph(p)
			continue
		}
		b.paragraph(p, func(line int) float64 {
			if line == 0 {
				return b.l.FirstLineIndent / pointsPerInch
			}
			return 0
		})
	}
}

// leadParagraph opens a chapter with a drop cap spanning DropCapLines lines.
func (b *pdfBook) leadParagraph(p string) {
	capital, rest := splitDropCap(p)
	if capital == "" || b.l.DropCapLines < 1 {
		b.paragraph(p, func(int) float64 { return 0 })
		return
	}

	pdf := b.pdf
	// Keep the cap and its wrapped lines on one page.
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+float64(b.l.DropCapLines)*b.lh > pageH-b.l.BottomMargin-b.lh {
		b.mirrorMargins(pdf.PageNo() + 1)
		pdf.AddPage()
	}

	x, y := pdf.GetX(), pdf.GetY()
	pdf.SetFont(b.family, b.style, b.l.DropCapSize)
	capText := b.tr(capital)
	capW := pdf.GetStringWidth(capText) + 0.06
	baseline := y + float64(b.l.DropCapLines)*b.lh - b.lh*0.3
	pdf.Text(x, baseline, capText)
	pdf.SetFont(b.family, "", b.l.BodySize)

	b.paragraph(strings.TrimLeft(rest, " "), func(line int) float64 {
		if line < b.l.DropCapLines {
			return capW
		}
		return 0
	})
}

// paragraph sets p justified. indent returns the left offset of each line.
func (b *pdfBook) paragraph(p string, indent func(line int) float64) {
	pdf := b.pdf
	words := strings.Fields(p)
	if len(words) == 0 {
		return
	}

	line := 0
	for len(words) > 0 {
		b.ensureLine()
		left, _, right, _ := pdf.GetMargins()
		pageW, _ := pdf.GetPageSize()
		off := indent(line)
		avail := pageW - left - right - off

		n, used := b.fit(words, avail)
		last := n == len(words)

		gap := pdf.GetStringWidth(" ")
		if !last && n > 1 {
			gap = (avail - used) / float64(n-1)
		}

		pdf.SetX(left + off)
		for i := 0; i < n; i++ {
			text := b.tr(words[i])
			ww := pdf.GetStringWidth(text)
			if i < n-1 {
				ww += gap
			}
			ln := 0
			if i == n-1 {
				ln = 1
			}
			pdf.CellFormat(ww, b.lh, text, "", ln, "L", false, 0, "")
		}
		words = words[n:]
		line++
	}
	pdf.Ln(b.lh * 0.3)
}

// ensureLine starts a new page when the next body line would cross the
// bottom margin. Breaking here rather than inside CellFormat keeps the line
// start on the new page's margins.
func (b *pdfBook) ensureLine() {
	_, pageH := b.pdf.GetPageSize()
	if b.pdf.GetY()+b.lh > pageH-b.l.BottomMargin-b.lh {
		b.mirrorMargins(b.pdf.PageNo() + 1)
		b.pdf.AddPage()
		b.pdf.SetFont(b.family, "", b.l.BodySize)
	}
}

// fit returns how many words fit in width avail, at least one, and the width
// of the words without spaces.
func (b *pdfBook) fit(words []string, avail float64) (int, float64) {
	space := b.pdf.GetStringWidth(" ")
	used, total := 0.0, 0.0
	n := 0
	for _, w := range words {
		ww := b.pdf.GetStringWidth(b.tr(w))
		next := total + ww
		if n > 0 {
			next += space
		}
		if n > 0 && next > avail {
			break
		}
		total = next
		used += ww
		n++
	}
	return n, used
}

// validatePDF rejects output pdfcpu cannot parse.
func validatePDF(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.ValidateFile(path, conf)
}
