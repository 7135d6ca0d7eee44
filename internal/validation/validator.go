// =============================================================================
// Invoice Generator - Request Validation
// =============================================================================
//
// This module validates and normalizes incoming invoice requests before any
// computation happens. It checks:
//   - Required header fields (customer name, invoice number, invoice date)
//   - Invoice number safety (it names the output file)
//   - A non-empty, ordered item list
//   - Per-item required fields and bounded, non-negative quantity/rate
//
// ERROR HANDLING:
//   - Errors are collected, not returned on the first failure
//   - Each error names the field (with item index) and the offending value
//   - The collected errors are returned as a single ValidationErrors value
//
// Non-numeric quantities and rates never reach this module: the decimal
// decoder rejects them while the request body is decoded. Quantities and
// rates are bounded so that the rounded total of any valid request can be
// spelled out; the bounds are checked on the digits of a number before its
// exponent is ever expanded.
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation failure.
type ValidationError struct {
	// Field is the JSON name of the field, e.g. "items[2].qty".
	Field string `json:"field"`

	// Value is the rejected value, as text.
	Value string `json:"value,omitempty"`

	// Rule is the violated rule: required, format, min, max, precision,
	// max_length.
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (value: '%s')", e.Field, e.Message, e.Value)
}

// ValidationErrors is the collected result of a failed validation.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	return FormatErrors(ve)
}

// IsValidationError reports whether err is or wraps a validation failure.
func IsValidationError(err error) bool {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single *ValidationError
	return errors.As(err, &single)
}

// =============================================================================
// RULES
// =============================================================================

const (
	// MaxItems bounds the number of line items of one invoice.
	MaxItems = 500

	// MaxTextLength bounds every free-text field.
	MaxTextLength = 512

	// MaxDecimalPlaces bounds the fractional digits of quantities and rates.
	MaxDecimalPlaces = 4

	// maxIntegerDigits rejects numbers far beyond any bound without
	// comparing them.
	maxIntegerDigits = 19
)

var (
	// MaxQuantity bounds the quantity of one line item.
	MaxQuantity = decimal.NewFromInt(1_000_000)

	// MaxRate bounds the unit rate of one line item. MaxItems lines at
	// MaxQuantity and MaxRate, taxed, stay well inside int64.
	MaxRate = decimal.NewFromInt(1_000_000_000)
)

// invoiceNumberPattern keeps invoice numbers usable as a file name component.
var invoiceNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize trims text fields, applies the default unit and drops the
// exponent of zero numbers such as 0e9.
// It must run before Validate.
func Normalize(req *types.InvoiceRequest) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	req.InvoiceDate = strings.TrimSpace(req.InvoiceDate)

	for i := range req.Items {
		item := &req.Items[i]
		if item.Quantity.IsZero() {
			item.Quantity = decimal.Zero
		}
		if item.UnitRate.IsZero() {
			item.UnitRate = decimal.Zero
		}
		item.Description = strings.TrimSpace(item.Description)
		item.HSNCode = strings.TrimSpace(item.HSNCode)
		item.Unit = strings.TrimSpace(item.Unit)
		if item.Unit == "" {
			item.Unit = types.DefaultUnit
		}
	}
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Validate checks a normalized request.
//
// RETURNS:
//   - nil when the request is valid.
//   - ValidationErrors listing every failure otherwise.
func Validate(req *types.InvoiceRequest) error {
	var errs ValidationErrors

	errs = append(errs, validateText("customer_name", req.CustomerName, true)...)
	errs = append(errs, validateText("invoice_date", req.InvoiceDate, true)...)

	// =========================================================================
	// INVOICE NUMBER
	// =========================================================================
	// The invoice number becomes part of the artifact file name.

	switch {
	case req.InvoiceNumber == "":
		errs = append(errs, required("invoice_no"))
	case !invoiceNumberPattern.MatchString(req.InvoiceNumber) || strings.Contains(req.InvoiceNumber, ".."):
		errs = append(errs, &ValidationError{
			Field:   "invoice_no",
			Value:   req.InvoiceNumber,
			Rule:    "format",
			Message: "must be 1-64 characters of letters, digits, '.', '_' or '-' and must not start with a separator",
		})
	}

	// =========================================================================
	// LINE ITEMS
	// =========================================================================

	switch {
	case len(req.Items) == 0:
		errs = append(errs, &ValidationError{
			Field:   "items",
			Rule:    "required",
			Message: "at least one line item is required",
		})
	case len(req.Items) > MaxItems:
		errs = append(errs, &ValidationError{
			Field:   "items",
			Value:   fmt.Sprintf("%d", len(req.Items)),
			Rule:    "max_length",
			Message: fmt.Sprintf("at most %d line items are allowed", MaxItems),
		})
	}

	// Legacy payloads carry their single item at the top level, so its
	// fields are reported without an items[i] prefix.
	for i, item := range req.Items {
		prefix := itemPrefix(i)
		if req.Legacy {
			prefix = ""
		}
		errs = append(errs, validateLineItem(prefix, item)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateLineItem validates a single line item at position index.
func ValidateLineItem(index int, item types.LineItem) []*ValidationError {
	return validateLineItem(itemPrefix(index), item)
}

func itemPrefix(index int) string {
	return fmt.Sprintf("items[%d].", index)
}

func validateLineItem(prefix string, item types.LineItem) []*ValidationError {
	var errs []*ValidationError

	errs = append(errs, validateText(prefix+"description", item.Description, true)...)
	errs = append(errs, validateText(prefix+"hsn", item.HSNCode, false)...)
	errs = append(errs, validateText(prefix+"unit", item.Unit, false)...)
	errs = append(errs, validateNumber(prefix+"qty", item.Quantity, MaxQuantity)...)
	errs = append(errs, validateNumber(prefix+"rate", item.UnitRate, MaxRate)...)

	return errs
}

// =============================================================================
// HELPERS
// =============================================================================

func validateText(field, value string, mandatory bool) []*ValidationError {
	if value == "" {
		if mandatory {
			return []*ValidationError{required(field)}
		}
		return nil
	}
	if len(value) > MaxTextLength {
		return []*ValidationError{{
			Field:   field,
			Rule:    "max_length",
			Message: fmt.Sprintf("exceeds maximum length of %d characters (actual: %d)", MaxTextLength, len(value)),
		}}
	}
	return nil
}

// validateNumber checks 0 <= value <= limit with at most MaxDecimalPlaces
// decimals. The value is echoed back only when it is short to print.
func validateNumber(field string, value, limit decimal.Decimal) []*ValidationError {
	if value.IsZero() {
		return nil
	}

	digits, places := numberShape(value)
	var echo string
	if digits <= maxIntegerDigits && places <= MaxDecimalPlaces {
		echo = value.String()
	}

	switch {
	case value.IsNegative():
		return []*ValidationError{{
			Field:   field,
			Value:   echo,
			Rule:    "min",
			Message: "must not be negative",
		}}
	case places > MaxDecimalPlaces:
		return []*ValidationError{{
			Field:   field,
			Rule:    "precision",
			Message: fmt.Sprintf("must have at most %d decimal places", MaxDecimalPlaces),
		}}
	case digits > maxIntegerDigits || value.GreaterThan(limit):
		return []*ValidationError{{
			Field:   field,
			Value:   echo,
			Rule:    "max",
			Message: fmt.Sprintf("must not exceed %s", limit),
		}}
	}
	return nil
}

// numberShape returns the integer digit count and decimal places of a
// non-zero d, read from its coefficient and exponent without rescaling.
func numberShape(d decimal.Decimal) (digits, places int64) {
	coef := strings.TrimPrefix(d.Coefficient().String(), "-")
	significant := strings.TrimRight(coef, "0")
	exp := int64(d.Exponent()) + int64(len(coef)-len(significant))
	return int64(len(significant)) + exp, max(0, -exp)
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Rule: "required", Message: "is required"}
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errs []*ValidationError) string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	if len(errs) == 1 {
		return "validation failed: " + errs[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors: ", len(errs))
	for i, err := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}
