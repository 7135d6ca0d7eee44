// Package documenttest builds small DOCX and XLSX templates in memory for
// tests.
package documenttest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>%s</Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

const documentHead = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:v="urn:schemas-microsoft-com:vml"><w:body>`

const documentTail = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:body></w:document>`

// DOCX assembles a word document body.
type DOCX struct {
	body    strings.Builder
	headers []string
}

// NewDOCX starts an empty document.
func NewDOCX() *DOCX {
	return &DOCX{}
}

// Paragraph adds a paragraph with one run per argument, so a token can be
// split across runs on purpose.
func (d *DOCX) Paragraph(runs ...string) *DOCX {
	d.body.WriteString(paragraph(runs))
	return d
}

// TextBox adds an empty paragraph anchoring a VML text box that holds one
// paragraph with the given runs.
func (d *DOCX) TextBox(runs ...string) *DOCX {
	d.body.WriteString(`<w:p><w:r><w:pict><v:shape><v:textbox><w:txbxContent>`)
	d.body.WriteString(paragraph(runs))
	d.body.WriteString(`</w:txbxContent></v:textbox></v:shape></w:pict></w:r></w:p>`)
	return d
}

// Table adds a table; each cell holds one paragraph with one run.
func (d *DOCX) Table(rows ...[]string) *DOCX {
	d.body.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
	for i, row := range rows {
		d.body.WriteString("<w:tr>")
		if i == 0 {
			d.body.WriteString(`<w:trPr><w:tblHeader/></w:trPr>`)
		}
		for _, cell := range row {
			d.body.WriteString("<w:tc>" + paragraph([]string{cell}) + "</w:tc>")
		}
		d.body.WriteString("</w:tr>")
	}
	d.body.WriteString("</w:tbl>")
	return d
}

// Header adds a header part holding one paragraph with the given runs.
func (d *DOCX) Header(runs ...string) *DOCX {
	d.headers = append(d.headers, paragraph(runs))
	return d
}

// Bytes encodes the package.
func (d *DOCX) Bytes(t testing.TB) []byte {
	t.Helper()

	var overrides strings.Builder
	for i := range d.headers {
		fmt.Fprintf(&overrides, `<Override PartName="/word/header%d.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>`, i+1)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}

	add("[Content_Types].xml", fmt.Sprintf(contentTypes, overrides.String()))
	add("_rels/.rels", rootRels)
	add("word/document.xml", documentHead+d.body.String()+documentTail)
	for i, h := range d.headers {
		add(fmt.Sprintf("word/header%d.xml", i+1),
			`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
				`<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`+h+`</w:hdr>`)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Package zips the given parts verbatim, for packages the builders cannot
// express such as damaged ones.
func Package(t testing.TB, parts map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(parts[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func paragraph(runs []string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for i, run := range runs {
		b.WriteString("<w:r>")
		if i%2 == 1 {
			b.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(&b, []byte(run))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}

// XLSX assembles a single-sheet workbook.
type XLSX struct {
	t testing.TB
	f *excelize.File
}

// Sheet is the name of the fixture's worksheet.
const Sheet = "Sheet1"

// NewXLSX starts an empty workbook.
func NewXLSX(t testing.TB) *XLSX {
	t.Helper()
	x := &XLSX{t: t, f: excelize.NewFile()}
	t.Cleanup(func() { _ = x.f.Close() })
	return x
}

// Set writes a string cell.
func (x *XLSX) Set(axis, value string) *XLSX {
	x.t.Helper()
	require.NoError(x.t, x.f.SetCellStr(Sheet, axis, value))
	return x
}

// SetFormula writes a formula cell.
func (x *XLSX) SetFormula(axis, formula string) *XLSX {
	x.t.Helper()
	require.NoError(x.t, x.f.SetCellFormula(Sheet, axis, formula))
	return x
}

// Table writes rows starting at topLeft and declares them as a table.
func (x *XLSX) Table(name, topLeft string, rows ...[]string) *XLSX {
	x.t.Helper()
	col, row, err := excelize.CellNameToCoordinates(topLeft)
	require.NoError(x.t, err)

	width := 0
	for i, cells := range rows {
		for j, v := range cells {
			axis, err := excelize.CoordinatesToCellName(col+j, row+i)
			require.NoError(x.t, err)
			require.NoError(x.t, x.f.SetCellStr(Sheet, axis, v))
		}
		if len(cells) > width {
			width = len(cells)
		}
	}

	bottomRight, err := excelize.CoordinatesToCellName(col+width-1, row+len(rows)-1)
	require.NoError(x.t, err)
	require.NoError(x.t, x.f.AddTable(Sheet, &excelize.Table{
		Range:     topLeft + ":" + bottomRight,
		Name:      name,
		StyleName: "TableStyleMedium2",
	}))
	return x
}

// Bytes encodes the workbook.
func (x *XLSX) Bytes() []byte {
	x.t.Helper()
	buf, err := x.f.WriteToBuffer()
	require.NoError(x.t, err)
	return buf.Bytes()
}
