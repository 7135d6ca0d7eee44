package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/internal/validation"
)

// Payload is the wire shape of a generation request, shared by the HTTP
// API and request files. It accepts two shapes:
//
//	{"customer_name", "invoice_no", "invoice_date", "items": [{"description", "hsn", "qty", "rate", "unit"}]}
//	{"customer_name", "invoice_no", "invoice_date", "description", "hsn", "qty", "rate"}
//
// The flat shape is the legacy single-item form. Numbers may be given as
// JSON numbers or numeric strings; anything else fails decoding.
type Payload struct {
	CustomerName string        `json:"customer_name" yaml:"customer_name"`
	InvoiceNo    string        `json:"invoice_no" yaml:"invoice_no"`
	InvoiceDate  string        `json:"invoice_date" yaml:"invoice_date"`
	Items        []ItemPayload `json:"items" yaml:"items"`

	Description *string          `json:"description,omitempty" yaml:"description,omitempty"`
	HSN         string           `json:"hsn,omitempty" yaml:"hsn,omitempty"`
	Qty         *decimal.Decimal `json:"qty,omitempty" yaml:"qty,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty" yaml:"rate,omitempty"`
	Unit        string           `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// ItemPayload is one entry of Payload.Items.
type ItemPayload struct {
	Description string           `json:"description" yaml:"description"`
	HSN         string           `json:"hsn" yaml:"hsn"`
	Qty         *decimal.Decimal `json:"qty" yaml:"qty"`
	Rate        *decimal.Decimal `json:"rate" yaml:"rate"`
	Unit        string           `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// IsLegacy reports whether p uses the flat single-item shape.
func (p *Payload) IsLegacy() bool {
	return p.Items == nil && (p.Description != nil || p.Qty != nil || p.Rate != nil)
}

// Request converts p into an InvoiceRequest. Missing quantities and rates
// are reported as validation errors rather than read as zero.
func (p *Payload) Request() (*types.InvoiceRequest, error) {
	req := &types.InvoiceRequest{
		CustomerName:  p.CustomerName,
		InvoiceNumber: p.InvoiceNo,
		InvoiceDate:   p.InvoiceDate,
	}

	items := p.Items
	if p.IsLegacy() {
		req.Legacy = true
		description := ""
		if p.Description != nil {
			description = *p.Description
		}
		items = []ItemPayload{{Description: description, HSN: p.HSN, Qty: p.Qty, Rate: p.Rate, Unit: p.Unit}}
	}

	var errs validation.ValidationErrors
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		if req.Legacy {
			prefix = ""
		}
		if item.Qty == nil {
			errs = append(errs, missing(prefix, "qty"))
		}
		if item.Rate == nil {
			errs = append(errs, missing(prefix, "rate"))
		}

		li := types.LineItem{Description: item.Description, HSNCode: item.HSN, Unit: item.Unit}
		if item.Qty != nil {
			li.Quantity = *item.Qty
		}
		if item.Rate != nil {
			li.UnitRate = *item.Rate
		}
		req.Items = append(req.Items, li)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return req, nil
}

func missing(prefix, field string) *validation.ValidationError {
	if prefix != "" {
		field = prefix + "." + field
	}
	return &validation.ValidationError{Field: field, Rule: "required", Message: "is required"}
}
