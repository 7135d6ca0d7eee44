// =============================================================================
// Invoice Generator - Shared Types
// =============================================================================
//
// This package contains the invoice data model shared across modules to avoid
// import cycles. Types defined here are used by:
//   - validation
//   - totals
//   - filler
//   - invoice
//   - server
//
// All monetary values are decimal.Decimal. Floats never carry money.
//
// =============================================================================

package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUnit is the unit of measure used when a line item does not name one.
const DefaultUnit = "Nos"

// =============================================================================
// DOCUMENT FORMATS
// =============================================================================

// Format identifies a document format handled by the generator.
type Format string

const (
	// FormatDOCX is a WordprocessingML template or filled document.
	FormatDOCX Format = "docx"

	// FormatXLSX is a SpreadsheetML template or filled document.
	FormatXLSX Format = "xlsx"

	// FormatPDF is the fixed-layout delivery format.
	FormatPDF Format = "pdf"
)

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FormatFromExt maps a file name or extension to a Format.
// The second return value is false for unknown extensions.
func FormatFromExt(name string) (Format, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", false
	}
	switch strings.ToLower(name[i+1:]) {
	case "docx":
		return FormatDOCX, true
	case "xlsx":
		return FormatXLSX, true
	case "pdf":
		return FormatPDF, true
	}
	return "", false
}

// =============================================================================
// INVOICE TYPES
// =============================================================================

// LineItem is a single billed line of an invoice.
// Methods use value receivers; a LineItem is not modified after normalization.
type LineItem struct {
	// Description is the free-text item description.
	Description string `json:"description" yaml:"description"`

	// HSNCode is the Harmonized System of Nomenclature code of the item.
	HSNCode string `json:"hsn" yaml:"hsn"`

	// Quantity is the billed quantity, 0 to 1,000,000 with up to 4 decimals.
	Quantity decimal.Decimal `json:"qty" yaml:"qty"`

	// UnitRate is the price per unit, 0 to 1,000,000,000 with up to 4 decimals.
	UnitRate decimal.Decimal `json:"rate" yaml:"rate"`

	// Unit is the unit of measure. Defaults to DefaultUnit.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Amount returns Quantity x UnitRate.
func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.UnitRate)
}

// InvoiceRequest is one invoice generation call.
type InvoiceRequest struct {
	// CustomerName is the billed party.
	CustomerName string `json:"customer_name" yaml:"customer_name"`

	// InvoiceNumber identifies the invoice and names the output artifact,
	// so it must be safe to use inside a file name.
	InvoiceNumber string `json:"invoice_no" yaml:"invoice_no"`

	// InvoiceDate is printed verbatim.
	InvoiceDate string `json:"invoice_date" yaml:"invoice_date"`

	// Items is ordered. The order fixes the output row order and row index.
	Items []LineItem `json:"items" yaml:"items"`

	// Legacy marks a request that arrived in the flat single-item shape.
	// Legacy requests also expose description/hsn/qty/rate placeholders.
	Legacy bool `json:"-" yaml:"-"`
}

// InvoiceTotals is derived once per request and never mutated.
type InvoiceTotals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	SGST          decimal.Decimal `json:"sgst"`
	CGST          decimal.Decimal `json:"cgst"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	RoundedTotal  decimal.Decimal `json:"rounded_total"`
	AmountInWords string          `json:"amount_in_words"`
}
