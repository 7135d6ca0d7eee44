// =============================================================================
// Invoice Generator - CSV Line Item Parser
// =============================================================================
//
// This module reads invoice line items from a CSV file for the offline
// generate command. It handles:
//   - Different delimiters (comma, semicolon, pipe, tab)
//   - Header aliases (qty/quantity, rate/unit_rate/price, hsn/hsn_code)
//   - Quoted fields and ragged rows
//   - Blank lines between items
//
// EXPECTED LAYOUT:
//   description,hsn,qty,rate,unit
//   Copper wire,7408,2,100,Nos
//   Cable tie,3926,1,50,
//
// Quantities and rates are parsed as decimals. A value that is not a number
// is an error; it is never coerced to zero.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

// =============================================================================
// COLUMNS
// =============================================================================

// Canonical column names.
const (
	ColDescription = "description"
	ColHSN         = "hsn"
	ColQuantity    = "qty"
	ColRate        = "rate"
	ColUnit        = "unit"
)

// aliases maps accepted header spellings to canonical column names.
var aliases = map[string]string{
	"description": ColDescription,
	"desc":        ColDescription,
	"item":        ColDescription,
	"hsn":         ColHSN,
	"hsn_code":    ColHSN,
	"hsncode":     ColHSN,
	"qty":         ColQuantity,
	"quantity":    ColQuantity,
	"rate":        ColRate,
	"unit_rate":   ColRate,
	"price":       ColRate,
	"unit":        ColUnit,
	"uom":         ColUnit,
}

// required lists the columns every items file must have.
var required = []string{ColDescription, ColQuantity, ColRate}

// ErrEmptyFile is returned for a file without a header row.
var ErrEmptyFile = errors.New("CSV file is empty")

// RowError describes a value that could not be parsed.
type RowError struct {
	// Row is the 1-based line of the record in the file.
	Row   int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// Options controls how the file is read.
type Options struct {
	// Delimiter is a single character or one of "tab", "pipe",
	// "semicolon". Default: ","
	Delimiter string
}

// CSVData represents a parsed CSV file with canonical headers.
type CSVData struct {
	// Headers contains the canonical column names in file order.
	// Unknown columns keep their cleaned header.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// Lines holds the 1-based file line of each row, for error messages.
	Lines []int

	// SourceFile is the path to the source CSV file, if any.
	SourceFile string
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads a CSV file.
func ParseFile(filePath string, opts Options) (*CSVData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := Parse(bufio.NewReader(file), opts)
	if err != nil {
		return nil, err
	}
	data.SourceFile = filePath
	return data, nil
}

// Parse reads CSV records from r. The first non-empty record is the header.
func Parse(r io.Reader, opts Options) (*CSVData, error) {
	reader := csv.NewReader(r)
	configureReader(reader, opts)

	var (
		data    = &CSVData{}
		line    int
		headers []string
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ = reader.FieldPos(0)

		if isRowEmpty(record) {
			continue
		}
		if headers == nil {
			headers = cleanHeaders(record)
			continue
		}

		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = strings.TrimSpace(record[i])
			} else {
				row[header] = ""
			}
		}
		data.Rows = append(data.Rows, row)
		data.Lines = append(data.Lines, line)
	}

	if headers == nil {
		return nil, ErrEmptyFile
	}
	data.Headers = headers
	return data, nil
}

// configureReader configures the CSV reader based on the options.
func configureReader(reader *csv.Reader, opts Options) {
	switch opts.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(opts.Delimiter) > 0 {
			reader.Comma = rune(opts.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Trailing empty columns are often dropped by spreadsheet exports.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// cleanHeaders lower-cases headers, joins words with underscores and maps
// aliases to canonical names.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		header = strings.TrimPrefix(header, "\ufeff")
		header = strings.ToLower(strings.Join(strings.Fields(header), "_"))

		if canonical, ok := aliases[header]; ok {
			header = canonical
		}
		if header == "" {
			header = fmt.Sprintf("column_%d", i+1)
		}
		cleaned[i] = header
	}

	return cleaned
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// ReadItems parses a line-item CSV file.
func ReadItems(filePath string, opts Options) ([]types.LineItem, error) {
	data, err := ParseFile(filePath, opts)
	if err != nil {
		return nil, err
	}
	return Items(data)
}

// Items converts parsed rows into line items, in file order. All parse
// errors are reported together.
func Items(data *CSVData) ([]types.LineItem, error) {
	present := make(map[string]bool, len(data.Headers))
	for _, h := range data.Headers {
		present[h] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	items := make([]types.LineItem, 0, len(data.Rows))
	var errs []error

	for i, row := range data.Rows {
		qty, err := parseDecimal(row[ColQuantity])
		if err != nil {
			errs = append(errs, &RowError{Row: data.Lines[i], Field: ColQuantity, Value: row[ColQuantity], Err: err})
		}
		rate, err := parseDecimal(row[ColRate])
		if err != nil {
			errs = append(errs, &RowError{Row: data.Lines[i], Field: ColRate, Value: row[ColRate], Err: err})
		}

		items = append(items, types.LineItem{
			Description: row[ColDescription],
			HSNCode:     row[ColHSN],
			Quantity:    qty,
			UnitRate:    rate,
			Unit:        row[ColUnit],
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

// parseDecimal accepts plain numbers with optional thousands separators.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, errors.New("value is required")
	}
	return decimal.NewFromString(s)
}
