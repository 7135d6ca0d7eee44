// =============================================================================
// Invoice Generator - XLSX Template Backend
// =============================================================================
//
// Workbook templates are filled in place with excelize:
//   - Every string cell outside a defined table is a text block with one
//     fragment (cells holding formulas are left alone)
//   - Every defined table (Insert > Table in a spreadsheet) is a Table whose
//     first range row is the header
//   - Every sheet counts as a section
//
// TABLE EDITING:
//   excelize adjusts table ranges while rows are inserted or removed and
//   drops a table whose range shrinks to its header row. To keep full control
//   over the final ranges, tables are detached from the workbook when it is
//   opened and attached again, with their recomputed ranges, on every write.
//
// =============================================================================

package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

var rawValues = excelize.Options{RawCellValue: true}

type xlsxDocument struct {
	f      *excelize.File
	tables []*xlsxTable

	// err is the first error hit by a Block setter; it is reported by WriteTo.
	err error
}

func openXLSX(data []byte) (*xlsxDocument, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}

	d := &xlsxDocument{f: f}
	for _, sheet := range f.GetSheetList() {
		tbls, err := f.GetTables(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read tables of sheet %q: %w", sheet, err)
		}
		for _, tbl := range tbls {
			t, err := newXLSXTable(d, sheet, tbl)
			if err != nil {
				return nil, err
			}
			d.tables = append(d.tables, t)
		}
	}

	for _, t := range d.tables {
		if err := f.DeleteTable(t.def.Name); err != nil {
			return nil, fmt.Errorf("failed to detach table %q: %w", t.def.Name, err)
		}
	}
	return d, nil
}

func (d *xlsxDocument) Format() types.Format { return types.FormatXLSX }

// Blocks returns the string cells outside tables, sheet by sheet, row by row.
func (d *xlsxDocument) Blocks() []Block {
	var blocks []Block
	for _, sheet := range d.f.GetSheetList() {
		rows, err := d.f.GetRows(sheet, rawValues)
		if err != nil {
			d.fail(err)
			continue
		}
		for r, row := range rows {
			for c, value := range row {
				col, y := c+1, r+1
				if value == "" || d.inTable(sheet, col, y) {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(col, y)
				if err != nil {
					d.fail(err)
					continue
				}
				if formula, _ := d.f.GetCellFormula(sheet, axis); formula != "" {
					continue
				}
				blocks = append(blocks, &xlsxCell{doc: d, sheet: sheet, axis: axis})
			}
		}
	}
	return blocks
}

func (d *xlsxDocument) Tables() []Table {
	out := make([]Table, len(d.tables))
	for i, t := range d.tables {
		out[i] = t
	}
	return out
}

func (d *xlsxDocument) Sections() int {
	return len(d.f.GetSheetList())
}

// Outline lists each sheet's rows: table rows as tables, other non-empty
// rows as text.
func (d *xlsxDocument) Outline() []OutlineItem {
	var out []OutlineItem
	for _, sheet := range d.f.GetSheetList() {
		rows, err := d.f.GetRows(sheet)
		if err != nil {
			d.fail(err)
			continue
		}
		for y := 1; y <= len(rows); y++ {
			if t := d.tableStartingAt(sheet, y); t != nil {
				out = append(out, OutlineItem{Rows: t.values(rows)})
				y += t.rows - 1
				continue
			}
			if isRowEmpty(rows[y-1]) || d.inTable(sheet, 0, y) {
				continue
			}
			out = append(out, OutlineItem{Text: joinNonEmpty(rows[y-1])})
		}
	}
	return out
}

// WriteTo attaches the tables, encodes the workbook and detaches them again
// so the document stays editable.
func (d *xlsxDocument) WriteTo(w io.Writer) (int64, error) {
	if d.err != nil {
		return 0, fmt.Errorf("failed to update workbook: %w", d.err)
	}

	var attached []*xlsxTable
	defer func() {
		for _, t := range attached {
			_ = d.f.DeleteTable(t.def.Name)
		}
	}()

	for _, t := range d.tables {
		if t.rows == 0 {
			continue
		}
		def := t.def
		def.Range = t.ref()
		if err := d.f.AddTable(t.sheet, &def); err != nil {
			return 0, fmt.Errorf("failed to attach table %q: %w", t.def.Name, err)
		}
		attached = append(attached, t)
	}

	n, err := d.f.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return n, nil
}

func (d *xlsxDocument) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// inTable reports whether (col, y) lies inside a table of sheet. col 0
// matches any column.
func (d *xlsxDocument) inTable(sheet string, col, y int) bool {
	for _, t := range d.tables {
		if t.sheet != sheet || y < t.y1 || y >= t.y1+t.rows {
			continue
		}
		if col == 0 || (col >= t.x1 && col <= t.x2) {
			return true
		}
	}
	return false
}

func (d *xlsxDocument) tableStartingAt(sheet string, y int) *xlsxTable {
	for _, t := range d.tables {
		if t.sheet == sheet && t.rows > 0 && t.y1 == y {
			return t
		}
	}
	return nil
}

// shift moves the tables of sheet starting at or below row y by delta rows.
func (d *xlsxDocument) shift(sheet string, y, delta int, except *xlsxTable) {
	for _, t := range d.tables {
		if t != except && t.sheet == sheet && t.y1 >= y {
			t.y1 += delta
		}
	}
}

// =============================================================================
// CELLS
// =============================================================================

type xlsxCell struct {
	doc   *xlsxDocument
	sheet string
	axis  string
}

func (c *xlsxCell) Fragments() []string {
	v, err := c.doc.f.GetCellValue(c.sheet, c.axis, rawValues)
	if err != nil {
		c.doc.fail(err)
		return nil
	}
	if v == "" {
		return nil
	}
	return []string{v}
}

// SetFragments stores the joined fragments as a string cell. Unchanged
// cells are not rewritten so numbers keep their type.
func (c *xlsxCell) SetFragments(frags []string) {
	text := strings.Join(frags, "")
	if current, err := c.doc.f.GetCellValue(c.sheet, c.axis, rawValues); err == nil && current == text {
		return
	}
	if err := c.doc.f.SetCellStr(c.sheet, c.axis, text); err != nil {
		c.doc.fail(err)
	}
}

// =============================================================================
// TABLES
// =============================================================================

type xlsxTable struct {
	doc   *xlsxDocument
	sheet string
	def   excelize.Table

	x1, x2 int // columns, 1-based, inclusive
	y1     int // header row, 1-based
	rows   int // including the header

	protoStyles []int
	protoHeight float64
}

func newXLSXTable(d *xlsxDocument, sheet string, def excelize.Table) (*xlsxTable, error) {
	x1, y1, x2, y2, err := parseRange(def.Range)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", def.Name, err)
	}

	t := &xlsxTable{doc: d, sheet: sheet, def: def, x1: x1, x2: x2, y1: y1, rows: y2 - y1 + 1}

	// Prototype row: first body row, or the header when there is none.
	proto := y1
	if y2 > y1 {
		proto = y1 + 1
	}
	for x := x1; x <= x2; x++ {
		axis, err := excelize.CoordinatesToCellName(x, proto)
		if err != nil {
			return nil, err
		}
		style, err := d.f.GetCellStyle(sheet, axis)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", def.Name, err)
		}
		t.protoStyles = append(t.protoStyles, style)
	}
	if t.protoHeight, err = d.f.GetRowHeight(sheet, proto); err != nil {
		return nil, fmt.Errorf("table %q: %w", def.Name, err)
	}
	return t, nil
}

func (t *xlsxTable) RowCount() int { return t.rows }

func (t *xlsxTable) CellCount(row int) int {
	if row < 0 || row >= t.rows {
		return 0
	}
	return t.x2 - t.x1 + 1
}

func (t *xlsxTable) Cell(row, col int) Block {
	axis, err := excelize.CoordinatesToCellName(t.x1+col, t.y1+row)
	if err != nil {
		t.doc.fail(err)
	}
	return &xlsxCell{doc: t.doc, sheet: t.sheet, axis: axis}
}

func (t *xlsxTable) TruncateRows(n int) error {
	if n < 0 {
		return fmt.Errorf("cannot keep %d rows", n)
	}
	for t.rows > n {
		y := t.y1 + t.rows - 1
		if err := t.doc.f.RemoveRow(t.sheet, y); err != nil {
			return fmt.Errorf("failed to remove row %d of %q: %w", y, t.sheet, err)
		}
		t.doc.shift(t.sheet, y+1, -1, t)
		t.rows--
	}
	return nil
}

func (t *xlsxTable) AppendRow() error {
	y := t.y1 + t.rows
	if err := t.doc.f.InsertRows(t.sheet, y, 1); err != nil {
		return fmt.Errorf("failed to insert row %d of %q: %w", y, t.sheet, err)
	}
	t.doc.shift(t.sheet, y, 1, t)
	t.rows++

	for i, style := range t.protoStyles {
		if style == 0 {
			continue
		}
		axis, err := excelize.CoordinatesToCellName(t.x1+i, y)
		if err != nil {
			return err
		}
		if err := t.doc.f.SetCellStyle(t.sheet, axis, axis, style); err != nil {
			return fmt.Errorf("failed to style %s: %w", axis, err)
		}
	}
	if t.protoHeight > 0 {
		if err := t.doc.f.SetRowHeight(t.sheet, y, t.protoHeight); err != nil {
			return fmt.Errorf("failed to size row %d: %w", y, err)
		}
	}
	return nil
}

func (t *xlsxTable) ref() string {
	y2 := t.y1 + t.rows - 1
	tl, _ := excelize.CoordinatesToCellName(t.x1, t.y1)
	br, _ := excelize.CoordinatesToCellName(t.x2, y2)
	return tl + ":" + br
}

// values returns the table's cells from rows, padded to the table size.
func (t *xlsxTable) values(rows [][]string) [][]string {
	out := make([][]string, 0, t.rows)
	for y := t.y1; y < t.y1+t.rows; y++ {
		line := make([]string, t.x2-t.x1+1)
		if y-1 < len(rows) {
			for x := t.x1; x <= t.x2; x++ {
				if x-1 < len(rows[y-1]) {
					line[x-t.x1] = rows[y-1][x-1]
				}
			}
		}
		out = append(out, line)
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

// parseRange converts "B2:E9" (with optional $ anchors) to coordinates.
func parseRange(ref string) (x1, y1, x2, y2 int, err error) {
	ref = strings.ReplaceAll(ref, "$", "")
	tl, br, ok := strings.Cut(ref, ":")
	if !ok {
		br = tl
	}
	if x1, y1, err = excelize.CellNameToCoordinates(tl); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid range %q: %w", ref, err)
	}
	if x2, y2, err = excelize.CellNameToCoordinates(br); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid range %q: %w", ref, err)
	}
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return x1, y1, x2, y2, nil
}

// isRowEmpty checks if a row is empty (all cells are empty or whitespace).
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func joinNonEmpty(row []string) string {
	var parts []string
	for _, cell := range row {
		if s := strings.TrimSpace(cell); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "  ")
}
