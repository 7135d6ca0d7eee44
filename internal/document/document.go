// =============================================================================
// Invoice Generator - Template Documents
// =============================================================================
//
// This module gives the rest of the application one view over the template
// formats it can fill:
//   - DOCX: word processing documents (paragraphs, tables, sections)
//   - XLSX: workbooks (cells, defined tables, sheets)
//
// Both are exposed as text Blocks made of Fragments (the runs or cells that
// hold the text) and Tables made of cells, so placeholder substitution and
// line-item expansion do not care which format they are working on.
//
// A Document is a private, in-memory copy. Nothing touches the disk until
// Save or WriteTo is called.
//
// =============================================================================

package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

// ErrUnsupportedFormat is returned for content that is neither DOCX nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// zipMagic is the local file header signature every OOXML package starts with.
var zipMagic = []byte("PK\x03\x04")

// =============================================================================
// INTERFACES
// =============================================================================

// Block is a unit of text split into fragments. A fragment is the smallest
// piece that carries its own formatting (a run in DOCX, a cell in XLSX).
type Block interface {
	Fragments() []string

	// SetFragments replaces the block text. Fragment i goes to the i-th
	// fragment; missing fragments are cleared and surplus fragments are
	// appended to the last one. A block without fragments gets one.
	SetFragments([]string)
}

// Table is a grid of cell blocks. Row 0 is the header row.
type Table interface {
	RowCount() int
	CellCount(row int) int
	Cell(row, col int) Block

	// TruncateRows keeps the first n rows.
	TruncateRows(n int) error

	// AppendRow adds an empty row shaped like the table's first body row as
	// it was when the document was opened.
	AppendRow() error
}

// Document is an opened template.
type Document interface {
	Format() types.Format

	// Blocks returns every text block outside tables, text boxes included.
	Blocks() []Block
	Tables() []Table
	Sections() int

	// Outline returns the visible content in document order.
	Outline() []OutlineItem

	WriteTo(w io.Writer) (int64, error)
}

// OutlineItem is either a paragraph of text or a table.
type OutlineItem struct {
	Text string
	Rows [][]string
}

// IsTable reports whether the item is a table.
func (o OutlineItem) IsTable() bool {
	return o.Rows != nil
}

// =============================================================================
// OPENING AND SAVING
// =============================================================================

// Sniff identifies the format of data from its content, not its name.
func Sniff(data []byte) (types.Format, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return "", fmt.Errorf("%w: missing zip signature", ErrUnsupportedFormat)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var contentTypes, wordDoc, workbook bool
	for _, f := range zr.File {
		switch f.Name {
		case "[Content_Types].xml":
			contentTypes = true
		case "word/document.xml":
			wordDoc = true
		case "xl/workbook.xml":
			workbook = true
		}
	}

	switch {
	case !contentTypes:
		return "", fmt.Errorf("%w: missing [Content_Types].xml", ErrUnsupportedFormat)
	case wordDoc:
		return types.FormatDOCX, nil
	case workbook:
		return types.FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: neither a word document nor a workbook", ErrUnsupportedFormat)
}

// Open sniffs and decodes data.
func Open(data []byte) (Document, error) {
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	switch format {
	case types.FormatDOCX:
		return openDOCX(data)
	case types.FormatXLSX:
		return openXLSX(data)
	}
	return nil, ErrUnsupportedFormat
}

// Load opens the document stored at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Open(data)
}

// Save writes doc to path, replacing any existing file.
func Save(doc Document, path string) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Text joins the fragments of b.
func Text(b Block) string {
	return strings.Join(b.Fragments(), "")
}

// distribute maps frags onto n slots following the SetFragments contract.
func distribute(frags []string, n int) []string {
	out := make([]string, n)
	for i, f := range frags {
		if i < n {
			out[i] = f
		} else if n > 0 {
			out[n-1] += f
		}
	}
	return out
}
