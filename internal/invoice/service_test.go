package invoice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/converter"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document/documenttest"
	"github.com/stormdotcom/invo-gen-fastapi/internal/filler"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/internal/validation"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

// pdfConverter writes a stub PDF next to the source, or fails with err.
type pdfConverter struct {
	err error
}

func (pdfConverter) Name() string { return "stub" }

func (c pdfConverter) Convert(_ context.Context, src, outDir string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pdf")
	return out, os.WriteFile(out, []byte("%PDF-1.4 stub"), 0o644)
}

type fixture struct {
	svc  *Service
	root string
}

func newFixture(t *testing.T, tmpl []byte, conv converter.Converter) *fixture {
	t.Helper()
	dir := t.TempDir()

	store := template.NewStore(filepath.Join(dir, "template.docx"), nil)
	if tmpl != nil {
		_, err := store.Replace("template.docx", tmpl)
		require.NoError(t, err)
	}

	root := filepath.Join(dir, "work")
	svc, err := New(store, utils.NewWorkspaces(root, time.Hour), conv, config.InvoiceConfig{}, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, root: root}
}

// workspaces lists the workspaces still on disk.
func (f *fixture) workspaces(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func invoiceTemplate(t *testing.T) []byte {
	return documenttest.NewDOCX().
		Paragraph("Invoice ", "{{invoice_no}}", " dated {{invoice_date}}").
		Paragraph("Bill to: {{customer_name}}").
		Table(
			[]string{"#", "Description", "HSN", "Qty", "Unit", "Rate", "Amount"},
			[]string{"", "", "", "", "", "", ""},
		).
		Paragraph("Subtotal {{subtotal}} SGST {{sgst}} CGST {{cgst}}").
		Paragraph("Total {{round_off}} ({{amount_in_words}})").
		Bytes(t)
}

func request() *types.InvoiceRequest {
	return &types.InvoiceRequest{
		CustomerName:  "  Acme Traders ",
		InvoiceNumber: "INV-001",
		InvoiceDate:   "2024-01-15",
		Items: []types.LineItem{
			{Description: "Copper wire", HSNCode: "7408", Quantity: decimal.NewFromInt(2), UnitRate: decimal.NewFromInt(100)},
			{Description: "Cable tie", HSNCode: "3926", Quantity: decimal.NewFromInt(1), UnitRate: decimal.NewFromInt(50), Unit: "Pkt"},
		},
	}
}

func TestGenerateDOCX(t *testing.T) {
	f := newFixture(t, invoiceTemplate(t), nil)

	artifact, err := f.svc.Generate(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "invoice_INV-001.docx", artifact.FileName)
	assert.Equal(t, types.FormatDOCX, artifact.Format)
	assert.Equal(t, types.FormatDOCX.ContentType(), artifact.ContentType)
	assert.Equal(t, uint64(1), artifact.Revision)
	assert.Empty(t, artifact.Unresolved)
	assert.Equal(t, "295", artifact.Totals.RoundedTotal.String())
	assert.Equal(t, 2, artifact.Stats.LineItems)
	assert.Equal(t, "none", artifact.Stats.Converter)

	doc, err := document.Load(artifact.Path)
	require.NoError(t, err)

	blocks := doc.Blocks()
	assert.Equal(t, "Invoice INV-001 dated 2024-01-15", document.Text(blocks[0]))
	assert.Equal(t, "Bill to: Acme Traders", document.Text(blocks[1]))
	assert.Equal(t, "Subtotal 250.00 SGST 22.50 CGST 22.50", document.Text(blocks[2]))
	assert.Equal(t, "Total 295.00 (Two Hundred Ninety Five Only)", document.Text(blocks[3]))

	table := doc.Tables()[0]
	require.Equal(t, 3, table.RowCount())
	assert.Equal(t, "Nos", document.Text(table.Cell(1, 4)), "unit defaults")
	assert.Equal(t, "Pkt", document.Text(table.Cell(2, 4)))
	assert.Equal(t, "200.00", document.Text(table.Cell(1, 6)))

	assert.Len(t, f.workspaces(t), 1)
	require.NoError(t, artifact.Close())
	require.NoError(t, artifact.Close())
	assert.Empty(t, f.workspaces(t))
}

func TestGenerateConverts(t *testing.T) {
	f := newFixture(t, invoiceTemplate(t), pdfConverter{})

	artifact, err := f.svc.Generate(context.Background(), request())
	require.NoError(t, err)
	defer artifact.Close()

	assert.Equal(t, "invoice_INV-001.pdf", artifact.FileName)
	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.Equal(t, "stub", artifact.Stats.Converter)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 stub", string(data))
}

func TestGenerateUnresolvedPlaceholders(t *testing.T) {
	tmpl := documenttest.NewDOCX().
		Paragraph("{{invoice_no}} PO {{po_number}} {{vehicle}}").
		Table([]string{"#"}, []string{""}).
		Bytes(t)
	f := newFixture(t, tmpl, nil)

	artifact, err := f.svc.Generate(context.Background(), request())
	require.NoError(t, err)
	defer artifact.Close()

	assert.Equal(t, []string{"po_number", "vehicle"}, artifact.Unresolved)
}

func TestGenerateIgnoresExampleRowTokens(t *testing.T) {
	tmpl := documenttest.NewDOCX().
		Paragraph("Invoice {{invoice_no}}").
		Table(
			[]string{"#", "Description", "HSN", "Qty", "Unit", "Rate", "Amount"},
			[]string{"{{index}}", "{{description}}", "{{hsn}}", "{{qty}}", "{{unit}}", "{{rate}}", "{{amount}}"},
		).
		Bytes(t)
	f := newFixture(t, tmpl, nil)

	artifact, err := f.svc.Generate(context.Background(), request())
	require.NoError(t, err)
	defer artifact.Close()

	assert.Empty(t, artifact.Unresolved)

	doc, err := document.Load(artifact.Path)
	require.NoError(t, err)
	table := doc.Tables()[0]
	require.Equal(t, 3, table.RowCount())
	assert.Equal(t, []string{"1", "Copper wire", "7408", "2.00", "Nos", "100.00", "200.00"}, rowText(table, 1))
	assert.Equal(t, []string{"2", "Cable tie", "3926", "1.00", "Pkt", "50.00", "50.00"}, rowText(table, 2))
}

func rowText(table document.Table, row int) []string {
	var out []string
	for col := 0; col < table.CellCount(row); col++ {
		out = append(out, document.Text(table.Cell(row, col)))
	}
	return out
}

func TestGenerateFailuresLeaveNoWorkspace(t *testing.T) {
	noTable := documenttest.NewDOCX().Paragraph("{{invoice_no}}").Bytes(t)
	timeout := pdfConverter{err: converter.ErrConversionTimeout}

	tests := []struct {
		name   string
		tmpl   []byte
		conv   converter.Converter
		mutate func(*types.InvoiceRequest)
		check  func(*testing.T, error)
	}{
		{
			name:   "validation",
			tmpl:   invoiceTemplate(t),
			mutate: func(r *types.InvoiceRequest) { r.Items = nil },
			check: func(t *testing.T, err error) {
				assert.True(t, validation.IsValidationError(err))
			},
		},
		{
			name: "no template",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, template.ErrTemplateNotFound)
			},
		},
		{
			name: "no items table",
			tmpl: noTable,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, filler.ErrNoItemsTable)
			},
		},
		{
			name: "conversion",
			tmpl: invoiceTemplate(t),
			conv: timeout,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, converter.ErrConversionTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.tmpl, tt.conv)
			req := request()
			if tt.mutate != nil {
				tt.mutate(req)
			}

			artifact, err := f.svc.Generate(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, artifact)
			tt.check(t, err)
			assert.Empty(t, f.workspaces(t))
		})
	}
}

func TestGenerateCancelled(t *testing.T) {
	f := newFixture(t, invoiceTemplate(t), pdfConverter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Generate(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.workspaces(t))
}

func TestGenerateLegacyWithoutTable(t *testing.T) {
	tmpl := documenttest.NewDOCX().
		Paragraph("{{description}} HSN {{hsn}} x {{qty}} @ {{rate}}").
		Paragraph("Total {{round_off}}").
		Bytes(t)
	f := newFixture(t, tmpl, nil)

	req := &types.InvoiceRequest{
		CustomerName:  "Acme",
		InvoiceNumber: "L-1",
		InvoiceDate:   "2024-01-15",
		Legacy:        true,
		Items: []types.LineItem{
			{Description: "Copper wire", HSNCode: "7408", Quantity: decimal.NewFromInt(2), UnitRate: decimal.NewFromInt(125)},
		},
	}

	artifact, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	defer artifact.Close()

	assert.Zero(t, artifact.Stats.LineItems)
	doc, err := document.Load(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "Copper wire HSN 7408 x 2.00 @ 125.00", document.Text(doc.Blocks()[0]))
	assert.Equal(t, "Total 295.00", document.Text(doc.Blocks()[1]))
}

func TestGenerateXLSX(t *testing.T) {
	dir := t.TempDir()
	store := template.NewStore(filepath.Join(dir, "template.docx"), nil)
	_, err := store.Replace("book.xlsx", documenttest.NewXLSX(t).
		Set("A1", "Invoice {{invoice_no}}").
		Table("Items", "A3",
			[]string{"#", "Description", "HSN", "Qty", "Unit", "Rate", "Amount"},
			[]string{"", "", "", "", "", "", ""},
		).
		Set("F5", "Total").
		Set("G5", "{{round_off}}").
		Bytes())
	require.NoError(t, err)

	svc, err := New(store, utils.NewWorkspaces(filepath.Join(dir, "work"), time.Hour), nil, config.InvoiceConfig{}, nil)
	require.NoError(t, err)

	artifact, err := svc.Generate(context.Background(), request())
	require.NoError(t, err)
	defer artifact.Close()

	assert.Equal(t, "invoice_INV-001.xlsx", artifact.FileName)
	doc, err := document.Load(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Tables()[0].RowCount())

	var texts []string
	for _, b := range doc.Blocks() {
		texts = append(texts, document.Text(b))
	}
	assert.Contains(t, texts, "Invoice INV-001")
	assert.Contains(t, texts, "295.00")
}

func TestGenerateConcurrent(t *testing.T) {
	f := newFixture(t, invoiceTemplate(t), pdfConverter{})

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request()
			req.InvoiceNumber = "INV-" + string(rune('A'+i))
			artifact, err := f.svc.Generate(context.Background(), req)
			if assert.NoError(t, err) {
				paths[i] = artifact.Path
				assert.NoError(t, artifact.Close())
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p])
		seen[p] = true
	}
	assert.Empty(t, f.workspaces(t))
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil, nil)

	got, err := f.svc.Preview(request())
	require.NoError(t, err)
	assert.Equal(t, "250", got.Subtotal.String())
	assert.Equal(t, "45", got.TotalTax.String())
	assert.Equal(t, "Two Hundred Ninety Five Only", got.AmountInWords)

	req := request()
	req.InvoiceNumber = "../etc"
	_, err = f.svc.Preview(req)
	assert.True(t, validation.IsValidationError(err))
}

func TestNewRejectsNumberSystem(t *testing.T) {
	_, err := New(nil, nil, nil, config.InvoiceConfig{NumberSystem: "roman"}, nil)
	assert.Error(t, err)
}
