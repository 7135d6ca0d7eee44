package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document/documenttest"
	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

func newTestBatch(t *testing.T, concurrency int) *batch {
	t.Helper()
	dir := t.TempDir()

	store := template.NewStore(filepath.Join(dir, "template.docx"), nil)
	tmpl := documenttest.NewDOCX().
		Paragraph("Invoice {{invoice_no}} for {{customer_name}}").
		Table(
			[]string{"#", "Description", "HSN", "Qty", "Unit", "Rate", "Amount"},
			[]string{"", "", "", "", "", "", ""},
		).
		Paragraph("Total {{round_off}}").
		Bytes(t)
	_, err := store.Replace("template.docx", tmpl)
	require.NoError(t, err)

	svc, err := invoice.New(store, utils.NewWorkspaces(filepath.Join(dir, "work"), time.Hour), nil, config.InvoiceConfig{}, nil)
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))
	return &batch{svc: svc, outDir: out, concurrency: concurrency, log: zap.NewNop()}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()

	jsonPath := writeFile(t, dir, "a.json", `{
		"customer_name": "Acme",
		"invoice_no": "INV-1",
		"invoice_date": "2024-01-15",
		"items": [{"description": "Copper wire", "hsn": "7408", "qty": 2, "rate": 100}]
	}`)
	p, err := readPayload(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", p.InvoiceNo)
	require.Len(t, p.Items, 1)

	yamlPath := writeFile(t, dir, "b.YML", "customer_name: Acme\ninvoice_no: INV-2\ninvoice_date: \"2024-01-15\"\ndescription: Copper wire\nqty: 1\nrate: 10\n")
	p, err = readPayload(yamlPath)
	require.NoError(t, err)
	assert.True(t, p.IsLegacy())

	_, err = readPayload(writeFile(t, dir, "c.txt", "{}"))
	assert.ErrorContains(t, err, "unsupported request file extension")

	_, err = readPayload(writeFile(t, dir, "d.json", "{"))
	assert.ErrorContains(t, err, "failed to parse request file")

	_, err = readPayload(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBatchRun(t *testing.T) {
	b := newTestBatch(t, 2)
	in := t.TempDir()

	jobs := []job{
		requestJob(writeFile(t, in, "one.json", `{"customer_name":"Acme","invoice_no":"INV-1","invoice_date":"2024-01-15",
			"items":[{"description":"Copper wire","hsn":"7408","qty":2,"rate":100},{"description":"Tie","qty":1,"rate":50}]}`)),
		requestJob(writeFile(t, in, "two.yaml", "customer_name: Beta\ninvoice_no: INV-2\ninvoice_date: \"2024-01-16\"\nitems:\n  - description: Bolt\n    qty: 3\n    rate: 33.33\n")),
		requestJob(writeFile(t, in, "bad.json", `{"customer_name":"Acme","invoice_no":"../x","invoice_date":"2024-01-15","items":[{"qty":1,"rate":1}]}`)),
		requestJob(writeFile(t, in, "broken.yaml", "items: [")),
	}

	summary := b.run(context.Background(), jobs)

	assert.Equal(t, 4, summary.TotalRequests)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 3, summary.TotalLineItems)

	require.Len(t, summary.Generated, 2)
	assert.Equal(t, "one.json", summary.Generated[0].InputFile)
	assert.Equal(t, "295.00", summary.Generated[0].GrandTotal)
	assert.Equal(t, "two.yaml", summary.Generated[1].InputFile)
	assert.Equal(t, "118.00", summary.Generated[1].GrandTotal)

	require.Len(t, summary.FailedList, 2)
	assert.Equal(t, "bad.json", summary.FailedList[0].InputFile)
	assert.Contains(t, summary.FailedList[0].ErrorMessage, "invoice_no")
	assert.Equal(t, "broken.yaml", summary.FailedList[1].InputFile)

	doc, err := document.Load(filepath.Join(b.outDir, "invoice_INV-1.docx"))
	require.NoError(t, err)
	blocks := doc.Blocks()
	assert.Equal(t, "Invoice INV-1 for Acme", document.Text(blocks[0]))
	assert.Equal(t, "Total 295.00", document.Text(blocks[1]))
	assert.Equal(t, 3, doc.Tables()[0].RowCount())
	assert.FileExists(t, filepath.Join(b.outDir, "invoice_INV-2.docx"))

	entries, err := os.ReadDir(b.outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBatchRunCancelled(t *testing.T) {
	b := newTestBatch(t, 1)
	in := t.TempDir()
	path := writeFile(t, in, "one.json", `{"customer_name":"Acme","invoice_no":"INV-1","invoice_date":"2024-01-15","items":[{"description":"Bolt","qty":1,"rate":1}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := b.run(ctx, []job{requestJob(path), requestJob(path)})
	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 2, summary.Failed)
}

func TestItemsJob(t *testing.T) {
	b := newTestBatch(t, 1)
	in := t.TempDir()
	csvPath := writeFile(t, in, "items.csv", "Description;HSN;Qty;Rate;Unit\nCopper wire;7408;2;100;Mtr\nTie;;1;50;\n")

	summary := b.run(context.Background(), []job{itemsJob(csvPath, "Acme", "INV-9", "2024-01-15", "semicolon")})
	require.Equal(t, 1, summary.Successful, summary.FailedList)
	assert.Equal(t, "items.csv", summary.Generated[0].InputFile)
	assert.Equal(t, 2, summary.Generated[0].LineItems)
	assert.FileExists(t, filepath.Join(b.outDir, "invoice_INV-9.docx"))

	summary = b.run(context.Background(), []job{itemsJob(csvPath, "", "INV-9", "2024-01-15", "semicolon")})
	require.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.FailedList[0].ErrorMessage, "customer_name")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--short"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		shortVersion = false
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, Version+"\n", out.String())
}
