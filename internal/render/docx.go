package render

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strings"
	"text/template"
)

const twipsPerInch = 1440

type docxChapter struct {
	Title     string
	PageBreak bool
	DropCap   string
	Lead      string
	Rest      []string
}

type docxView struct {
	Layout   Layout
	Title    string
	Language string
	Chapters []docxChapter
}

var docxFuncs = template.FuncMap{
	"xml": func(s string) (string, error) {
		var b strings.Builder
		if err := xml.EscapeText(&b, []byte(s)); err != nil {
			return "", err
		}
		return b.String(), nil
	},
	"twips":      func(in float64) int { return int(math.Round(in * twipsPerInch)) },
	"twipsPt":    func(pt float64) int { return int(math.Round(pt * 20)) },
	"halfPoints": func(pt float64) int { return int(math.Round(pt * 2)) },
	"dropLine": func(l Layout) int {
		// Exact line height of the drop cap frame, in twips.
		return int(math.Round(l.BodySize * 1.2 * float64(max(l.DropCapLines, 1)) * 20))
	},
}

var docxParts = []struct {
	name string
	tmpl *template.Template
}{
	{"[Content_Types].xml", mustPart(contentTypesXML)},
	{"_rels/.rels", mustPart(rootRelsXML)},
	{"docProps/core.xml", mustPart(coreXML)},
	{"word/_rels/document.xml.rels", mustPart(documentRelsXML)},
	{"word/settings.xml", mustPart(settingsXML)},
	{"word/styles.xml", mustPart(stylesXML)},
	{"word/footer1.xml", mustPart(footerXML("right"))},
	{"word/footer2.xml", mustPart(footerXML("left"))},
	{"word/document.xml", mustPart(documentXML)},
}

func mustPart(src string) *template.Template {
	return template.Must(template.New("").Funcs(docxFuncs).Parse(src))
}

// encodeDOCX writes a WordprocessingML package. Odd and even pages use
// mirrored margins and footers so page numbers sit on the outer edge.
func encodeDOCX(ctx context.Context, w io.Writer, book Book, l Layout) error {
	view := docxView{Layout: l, Title: book.Title, Language: book.Language}
	for i, ch := range book.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		dc := docxChapter{Title: l.chapterTitle(ch.ID), PageBreak: i > 0}
		paras := paragraphs(ch.Content)
		if len(paras) > 0 {
			dc.DropCap, dc.Lead = splitDropCap(paras[0])
			dc.Rest = paras[1:]
		}
		view.Chapters = append(view.Chapters, dc)
	}

	zw := zip.NewWriter(w)
	for _, part := range docxParts {
		f, err := zw.Create(part.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", part.name, err)
		}
		if err := part.tmpl.Execute(f, view); err != nil {
			return fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	return zw.Close()
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const contentTypesXML = xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
<Override PartName="/word/settings.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"/>
<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>
<Override PartName="/word/footer2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

const rootRelsXML = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

const coreXML = xmlHeader + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>{{xml .Title}}</dc:title>
<dc:language>{{xml .Language}}</dc:language>
<dc:creator>booktrans</dc:creator>
</cp:coreProperties>`

const documentRelsXML = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
<Relationship Id="rIdSettings" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/settings" Target="settings.xml"/>
<Relationship Id="rIdFooterOdd" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>
<Relationship Id="rIdFooterEven" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer2.xml"/>
</Relationships>`

const settingsXML = xmlHeader + `<w:settings xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:mirrorMargins/>
<w:evenAndOddHeaders/>
</w:settings>`

const stylesXML = xmlHeader + `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults>
<w:rPrDefault><w:rPr><w:rFonts w:ascii="{{xml .Layout.DocxFont}}" w:hAnsi="{{xml .Layout.DocxFont}}" w:cs="{{xml .Layout.DocxFont}}"/><w:sz w:val="{{halfPoints .Layout.BodySize}}"/></w:rPr></w:rPrDefault>
</w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="BodyText"><w:name w:val="Body Text"/><w:basedOn w:val="Normal"/>
<w:pPr><w:jc w:val="both"/><w:ind w:firstLine="{{twipsPt .Layout.FirstLineIndent}}"/><w:spacing w:after="0"/></w:pPr></w:style>
<w:style w:type="paragraph" w:styleId="ChapterTitle"><w:name w:val="Chapter Title"/><w:basedOn w:val="Normal"/>
<w:pPr><w:jc w:val="right"/><w:spacing w:after="480"/></w:pPr><w:rPr><w:sz w:val="{{halfPoints .Layout.TitleSize}}"/></w:rPr></w:style>
</w:styles>`

func footerXML(align string) string {
	return xmlHeader + `<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:p><w:pPr><w:jc w:val="` + align + `"/></w:pPr>
<w:r><w:fldChar w:fldCharType="begin"/></w:r><w:r><w:instrText xml:space="preserve"> PAGE </w:instrText></w:r><w:r><w:fldChar w:fldCharType="separate"/></w:r><w:r><w:t>1</w:t></w:r><w:r><w:fldChar w:fldCharType="end"/></w:r>
</w:p>
</w:ftr>`
}

const documentXML = xmlHeader + `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
{{- $l := .Layout}}
{{- range .Chapters}}
<w:p><w:pPr><w:pStyle w:val="ChapterTitle"/>{{if .PageBreak}}<w:pageBreakBefore/>{{end}}</w:pPr><w:r><w:t>{{xml .Title}}</w:t></w:r></w:p>
{{- if .DropCap}}
<w:p><w:pPr><w:framePr w:dropCap="drop" w:lines="{{$l.DropCapLines}}" w:wrap="around" w:vAnchor="text" w:hAnchor="text"/><w:spacing w:after="0" w:line="{{dropLine $l}}" w:lineRule="exact"/></w:pPr><w:r><w:rPr><w:position w:val="-4"/><w:sz w:val="{{halfPoints $l.DropCapSize}}"/></w:rPr><w:t>{{xml .DropCap}}</w:t></w:r></w:p>
{{- end}}
{{- if .Lead}}
<w:p><w:pPr><w:pStyle w:val="BodyText"/><w:ind w:firstLine="0"/></w:pPr><w:r><w:t xml:space="preserve">{{xml .Lead}}</w:t></w:r></w:p>
{{- end}}
{{- range .Rest}}
<w:p><w:pPr><w:pStyle w:val="BodyText"/></w:pPr><w:r><w:t xml:space="preserve">{{xml .}}</w:t></w:r></w:p>
{{- end}}
{{- end}}
<w:sectPr>
<w:footerReference w:type="default" r:id="rIdFooterOdd"/>
<w:footerReference w:type="even" r:id="rIdFooterEven"/>
<w:pgSz w:w="{{twips $l.PageWidth}}" w:h="{{twips $l.PageHeight}}"/>
<w:pgMar w:top="{{twips $l.TopMargin}}" w:right="{{twips $l.OuterMargin}}" w:bottom="{{twips $l.BottomMargin}}" w:left="{{twips $l.InnerMargin}}" w:header="360" w:footer="360" w:gutter="0"/>
</w:sectPr>
</w:body>
</w:document>`
