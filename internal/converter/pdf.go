package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
)

const (
	pdfFontFamily = "Helvetica"
	pdfFontSize   = 10
	pdfLineHeight = 5
	pdfMargin     = 15
	pdfCellPad    = 1.5
)

// PDFRenderer renders a document's outline to PDF without external tools.
// Layout is simple: paragraphs top to bottom, tables as bordered grids with
// equal column widths and a bold header row.
type PDFRenderer struct{}

func (PDFRenderer) Name() string { return "builtin" }

func (r PDFRenderer) Convert(ctx context.Context, src, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := document.Load(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddPage()
	pdf.SetFont(pdfFontFamily, "", pdfFontSize)

	// Core fonts are cp1252; translate UTF-8 text before drawing.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, item := range doc.Outline() {
		if item.IsTable() {
			renderTable(pdf, tr, item.Rows)
			continue
		}
		renderParagraph(pdf, tr, item.Text)
	}

	if pdf.Err() {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, pdf.Error())
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(outDir, base+".pdf")
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	return out, nil
}

func contentWidth(pdf *gofpdf.Fpdf) float64 {
	pageW, _ := pdf.GetPageSize()
	lm, _, rm, _ := pdf.GetMargins()
	return pageW - lm - rm
}

func renderParagraph(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	if strings.TrimSpace(text) == "" {
		pdf.Ln(pdfLineHeight)
		return
	}
	pdf.MultiCell(contentWidth(pdf), pdfLineHeight, tr(text), "", "L", false)
}

func renderTable(pdf *gofpdf.Fpdf, tr func(string) string, rows [][]string) {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}

	width := contentWidth(pdf) / float64(cols)
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()

	pdf.Ln(2)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		pdf.SetFont(pdfFontFamily, style, pdfFontSize)

		// Row height follows the cell with the most wrapped lines.
		lines := make([][]string, cols)
		maxLines := 1
		for c := 0; c < cols; c++ {
			text := ""
			if c < len(row) {
				text = tr(row[c])
			}
			lines[c] = pdf.SplitText(text, width-2*pdfCellPad)
			if len(lines[c]) > maxLines {
				maxLines = len(lines[c])
			}
		}
		height := float64(maxLines)*pdfLineHeight + 2*pdfCellPad

		if pdf.GetY()+height > pageH-bottom {
			pdf.AddPage()
		}

		x, y := pdf.GetXY()
		for c := 0; c < cols; c++ {
			cx := x + float64(c)*width
			if i == 0 {
				pdf.SetFillColor(230, 230, 230)
				pdf.Rect(cx, y, width, height, "FD")
			} else {
				pdf.Rect(cx, y, width, height, "D")
			}
			for l, line := range lines[c] {
				pdf.SetXY(cx+pdfCellPad, y+pdfCellPad+float64(l)*pdfLineHeight)
				pdf.CellFormat(width-2*pdfCellPad, pdfLineHeight, line, "", 0, "L", false, 0, "")
			}
		}
		pdf.SetXY(x, y+height)
	}
	pdf.SetFont(pdfFontFamily, "", pdfFontSize)
	pdf.Ln(2)
}
