// =============================================================================
// Invoice Generator - Totals Calculator
// =============================================================================
//
// This module computes the tax totals of an invoice and the placeholder
// mapping used to fill the template.
//
// COMPUTATION:
//   subtotal      = sum(quantity x unit_rate)
//   sgst          = subtotal x 0.09
//   cgst          = subtotal x 0.09
//   total_tax     = sgst + cgst
//   grand_total   = subtotal + total_tax
//   rounded_total = ceil(grand_total)
//   words         = Title Case cardinal words of rounded_total + " " + suffix
//
// The 9% + 9% split is fixed tax policy and is not configurable.
//
// =============================================================================

package totals

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
)

// =============================================================================
// TAX POLICY
// =============================================================================

var (
	// SGSTRate is the state goods and services tax rate.
	SGSTRate = decimal.RequireFromString("0.09")

	// CGSTRate is the central goods and services tax rate.
	CGSTRate = decimal.RequireFromString("0.09")
)

// DefaultWordsSuffix is appended to the amount in words.
const DefaultWordsSuffix = "Only"

// ErrAmountOutOfRange is returned for an amount too large to spell out.
var ErrAmountOutOfRange = errors.New("amount out of range")

// maxWordsAmount is the largest magnitude Cardinal can represent.
var maxWordsAmount = decimal.NewFromInt(math.MaxInt64)

// =============================================================================
// OPTIONS
// =============================================================================

// Options controls the presentation of the totals. The arithmetic itself has
// no options.
type Options struct {
	// WordsSuffix is appended to the amount in words, separated by a space.
	// Empty means DefaultWordsSuffix.
	WordsSuffix string

	// NumberSystem selects the digit grouping of the amount in words.
	NumberSystem NumberSystem
}

// DefaultOptions returns the presentation defaults.
func DefaultOptions() Options {
	return Options{
		WordsSuffix:  DefaultWordsSuffix,
		NumberSystem: International,
	}
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate computes the totals of the given items. It fails only when the
// rounded total cannot be spelled out.
func Calculate(items []types.LineItem, opts Options) (types.InvoiceTotals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount())
	}

	sgst := subtotal.Mul(SGSTRate)
	cgst := subtotal.Mul(CGSTRate)
	totalTax := sgst.Add(cgst)
	grandTotal := subtotal.Add(totalTax)
	rounded := RoundUp(grandTotal)

	words, err := AmountInWords(rounded, opts)
	if err != nil {
		return types.InvoiceTotals{}, err
	}

	return types.InvoiceTotals{
		Subtotal:      subtotal,
		SGST:          sgst,
		CGST:          cgst,
		TotalTax:      totalTax,
		GrandTotal:    grandTotal,
		RoundedTotal:  rounded,
		AmountInWords: words,
	}, nil
}

// RoundUp rounds up to the nearest integer. Integers are returned unchanged.
func RoundUp(d decimal.Decimal) decimal.Decimal {
	return d.Ceil()
}

// AmountInWords renders an integral amount as words followed by the suffix.
// Any fractional part is ignored; callers pass the rounded total. Amounts
// beyond the int64 range are refused with ErrAmountOutOfRange.
func AmountInWords(amount decimal.Decimal, opts Options) (string, error) {
	if amount.Abs().GreaterThan(maxWordsAmount) {
		return "", fmt.Errorf("%w: magnitude exceeds %s", ErrAmountOutOfRange, maxWordsAmount)
	}

	suffix := strings.TrimSpace(opts.WordsSuffix)
	if suffix == "" {
		suffix = DefaultWordsSuffix
	}
	words := TitleCase(Cardinal(amount.IntPart(), opts.NumberSystem))
	return words + " " + suffix, nil
}

// =============================================================================
// PLACEHOLDER MAPPING
// =============================================================================

// Money formats a monetary value with exactly two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Mapping builds the placeholder values for a request and its totals.
// Legacy single-item requests additionally expose description, hsn, qty and rate.
func Mapping(req *types.InvoiceRequest, t types.InvoiceTotals) map[string]string {
	m := map[string]string{
		"customer_name":   req.CustomerName,
		"invoice_no":      req.InvoiceNumber,
		"invoice_date":    req.InvoiceDate,
		"subtotal":        Money(t.Subtotal),
		"sgst":            Money(t.SGST),
		"cgst":            Money(t.CGST),
		"total_tax":       Money(t.TotalTax),
		"grand_total":     Money(t.GrandTotal),
		"round_off":       Money(t.RoundedTotal),
		"amount_in_words": t.AmountInWords,
	}

	if req.Legacy && len(req.Items) == 1 {
		item := req.Items[0]
		m["description"] = item.Description
		m["hsn"] = item.HSNCode
		m["qty"] = Money(item.Quantity)
		m["rate"] = Money(item.UnitRate)
	}

	return m
}
