package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

const (
	docxMainPart  = "word/document.xml"
	wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// docxPart is a parsed XML part of the package and the prefix it binds to
// the WordprocessingML namespace.
type docxPart struct {
	root *xmlNode
	w    string
}

type docxDocument struct {
	zr     *zip.Reader
	parts  map[string]*docxPart
	extra  []string // header and footer part names, sorted
	main   *docxPart
	body   *xmlNode
	tables []*docxTable
}

func openDOCX(data []byte) (*docxDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}

	d := &docxDocument{zr: zr, parts: make(map[string]*docxPart)}
	for _, f := range zr.File {
		if f.Name != docxMainPart && !isHeaderFooterPart(f.Name) {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		root, err := parseXML(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", f.Name, err)
		}
		d.parts[f.Name] = &docxPart{root: root, w: wordPrefix(root)}
		if f.Name != docxMainPart {
			d.extra = append(d.extra, f.Name)
		}
	}
	sort.Strings(d.extra)

	d.main = d.parts[docxMainPart]
	if d.main == nil {
		return nil, fmt.Errorf("failed to open docx: missing %s", docxMainPart)
	}
	if docEl := firstElement(d.main.root); docEl != nil {
		d.body = docEl.child(d.main.w, "body")
	}
	if d.body == nil {
		return nil, errors.New("failed to open docx: document has no body")
	}

	for _, tbl := range d.body.find(d.main.w, "tbl") {
		d.tables = append(d.tables, newDOCXTable(d.main.w, tbl))
	}
	return d, nil
}

func (d *docxDocument) Format() types.Format { return types.FormatDOCX }

// Blocks returns body paragraphs outside tables, then header and footer
// paragraphs. Each part's text box paragraphs follow its own.
func (d *docxDocument) Blocks() []Block {
	blocks := partBlocks(d.main.w, d.body)
	for _, name := range d.extra {
		part := d.parts[name]
		blocks = append(blocks, partBlocks(part.w, part.root)...)
	}
	return blocks
}

// partBlocks returns the paragraphs of root outside tables, then those of
// its text boxes. Word keeps a fallback copy of each box; both are returned
// so both get filled.
func partBlocks(w string, root *xmlNode) []Block {
	var blocks []Block
	for _, p := range root.find(w, "p", "tbl", "txbxContent") {
		blocks = append(blocks, &docxBlock{w: w, node: p})
	}
	for _, box := range root.find(w, "txbxContent") {
		blocks = append(blocks, partBlocks(w, box)...)
	}
	return blocks
}

func (d *docxDocument) Tables() []Table {
	out := make([]Table, len(d.tables))
	for i, t := range d.tables {
		out[i] = t
	}
	return out
}

func (d *docxDocument) Sections() int {
	return d.main.root.count(d.main.w, "sectPr")
}

func (d *docxDocument) Outline() []OutlineItem {
	w := d.main.w
	var out []OutlineItem
	var walk func(*xmlNode)
	walk = func(n *xmlNode) {
		for _, c := range n.children {
			switch {
			case c.is(w, "p"):
				out = append(out, OutlineItem{Text: joinTexts(c.find(w, "t", "txbxContent"))})
			case c.is(w, "tbl"):
				rows := [][]string{}
				for _, tr := range c.childrenNamed(w, "tr") {
					var row []string
					for _, tc := range tr.childrenNamed(w, "tc") {
						var lines []string
						for _, p := range tc.childrenNamed(w, "p") {
							lines = append(lines, joinTexts(p.find(w, "t", "txbxContent")))
						}
						row = append(row, strings.Join(lines, "\n"))
					}
					rows = append(rows, row)
				}
				out = append(out, OutlineItem{Rows: rows})
			case c.kind == elementNode && !c.is(w, "sectPr"):
				walk(c)
			}
		}
	}
	walk(d.body)
	return out
}

// WriteTo re-encodes the parsed parts and copies every other entry of the
// package unchanged.
func (d *docxDocument) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	for _, f := range d.zr.File {
		part, ok := d.parts[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return cw.n, fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
			continue
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return cw.n, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if _, err := fw.Write(part.root.render()); err != nil {
			return cw.n, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("failed to finish docx: %w", err)
	}
	return cw.n, nil
}

// =============================================================================
// BLOCKS
// =============================================================================

// docxBlock is a paragraph (w:p) or a table cell (w:tc). Its fragments are
// the w:t texts of its runs.
type docxBlock struct {
	w    string
	node *xmlNode
}

func (b *docxBlock) texts() []*xmlNode {
	return b.node.find(b.w, "t", "tbl", "txbxContent")
}

func (b *docxBlock) Fragments() []string {
	ts := b.texts()
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.innerText()
	}
	return out
}

func (b *docxBlock) SetFragments(frags []string) {
	ts := b.texts()
	if len(ts) == 0 {
		text := strings.Join(frags, "")
		if text == "" {
			return
		}
		p := b.paragraph()
		p.children = append(p.children, newRun(b.w, text))
		return
	}

	for i, v := range distribute(frags, len(ts)) {
		if ts[i].innerText() == v {
			continue
		}
		ts[i].setText(v)
		ts[i].setAttr("xml", "space", "preserve")
	}
}

// paragraph returns the paragraph new runs go into, creating one in an
// empty cell.
func (b *docxBlock) paragraph() *xmlNode {
	if b.node.is(b.w, "p") {
		return b.node
	}
	if p := b.node.child(b.w, "p"); p != nil {
		return p
	}
	p := &xmlNode{kind: elementNode, name: xml.Name{Space: b.w, Local: "p"}}
	b.node.children = append(b.node.children, p)
	return p
}

func newRun(w, text string) *xmlNode {
	t := &xmlNode{
		kind:  elementNode,
		name:  xml.Name{Space: w, Local: "t"},
		attrs: []xml.Attr{{Name: xml.Name{Space: "xml", Local: "space"}, Value: "preserve"}},
	}
	t.setText(text)
	return &xmlNode{kind: elementNode, name: xml.Name{Space: w, Local: "r"}, children: []*xmlNode{t}}
}

// =============================================================================
// TABLES
// =============================================================================

type docxTable struct {
	w     string
	node  *xmlNode
	proto *xmlNode
}

// newDOCXTable captures the prototype row: the first body row, or the
// header row of a table without body rows. Its text is cleared.
func newDOCXTable(w string, tbl *xmlNode) *docxTable {
	t := &docxTable{w: w, node: tbl}

	rows := t.rows()
	switch {
	case len(rows) > 1:
		t.proto = rows[1].clone()
	case len(rows) == 1:
		t.proto = rows[0].clone()
		if trPr := t.proto.child(w, "trPr"); trPr != nil {
			trPr.children = withoutElements(trPr.children, w, "tblHeader")
		}
	}
	if t.proto != nil {
		for _, text := range t.proto.find(w, "t") {
			text.setText("")
		}
	}
	return t
}

func (t *docxTable) rows() []*xmlNode {
	return t.node.childrenNamed(t.w, "tr")
}

func (t *docxTable) RowCount() int {
	return len(t.rows())
}

func (t *docxTable) CellCount(row int) int {
	rows := t.rows()
	if row < 0 || row >= len(rows) {
		return 0
	}
	return len(rows[row].childrenNamed(t.w, "tc"))
}

func (t *docxTable) Cell(row, col int) Block {
	return &docxBlock{w: t.w, node: t.rows()[row].childrenNamed(t.w, "tc")[col]}
}

func (t *docxTable) TruncateRows(n int) error {
	if n < 0 {
		return fmt.Errorf("cannot keep %d rows", n)
	}
	rows := t.rows()
	if n >= len(rows) {
		return nil
	}

	drop := make(map[*xmlNode]bool, len(rows)-n)
	for _, r := range rows[n:] {
		drop[r] = true
	}
	kept := t.node.children[:0]
	for _, c := range t.node.children {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	t.node.children = kept
	return nil
}

func (t *docxTable) AppendRow() error {
	if t.proto == nil {
		return errors.New("table has no row to copy")
	}

	row := t.proto.clone()
	rows := t.rows()
	if len(rows) == 0 {
		t.node.children = append(t.node.children, row)
		return nil
	}
	t.node.insertAt(t.node.indexOf(rows[len(rows)-1])+1, row)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isHeaderFooterPart(name string) bool {
	rest, ok := strings.CutPrefix(name, "word/")
	if !ok || strings.Contains(rest, "/") || !strings.HasSuffix(rest, ".xml") {
		return false
	}
	return strings.HasPrefix(rest, "header") || strings.HasPrefix(rest, "footer")
}

// wordPrefix returns the prefix the root element binds to the
// WordprocessingML namespace, "w" when it declares none.
func wordPrefix(root *xmlNode) string {
	if el := firstElement(root); el != nil {
		for _, a := range el.attrs {
			if a.Name.Space == "xmlns" && a.Value == wordNamespace {
				return a.Name.Local
			}
		}
	}
	return "w"
}

func firstElement(n *xmlNode) *xmlNode {
	for _, c := range n.children {
		if c.kind == elementNode {
			return c
		}
	}
	return nil
}

func withoutElements(nodes []*xmlNode, prefix, local string) []*xmlNode {
	var out []*xmlNode
	for _, n := range nodes {
		if !n.is(prefix, local) {
			out = append(out, n)
		}
	}
	return out
}

func joinTexts(ts []*xmlNode) string {
	var b strings.Builder
	for _, t := range ts {
		b.WriteString(t.innerText())
	}
	return b.String()
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
