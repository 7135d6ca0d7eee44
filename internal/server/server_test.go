package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/converter"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document/documenttest"
	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// failingConverter always fails with err.
type failingConverter struct{ err error }

func (failingConverter) Name() string { return "failing" }

func (f failingConverter) Convert(context.Context, string, string) (string, error) {
	return "", f.err
}

type testServer struct {
	*Server
	store *template.Store
	work  string
}

func newTestServer(t *testing.T, tmpl []byte, conv converter.Converter) *testServer {
	t.Helper()
	dir := t.TempDir()

	store := template.NewStore(filepath.Join(dir, "template.docx"), nil)
	if tmpl != nil {
		_, err := store.Replace("template.docx", tmpl)
		require.NoError(t, err)
	}

	work := filepath.Join(dir, "work")
	svc, err := invoice.New(store, utils.NewWorkspaces(work, time.Hour), conv, config.InvoiceConfig{}, nil)
	require.NoError(t, err)

	srv := New(svc, config.ServerConfig{MaxUploadBytes: 64 << 10}, nil)
	return &testServer{Server: srv, store: store, work: work}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, []byte(body), "application/json")
}

func (ts *testServer) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/upload_template", body.Bytes(), mw.FormDataContentType())
}

func (ts *testServer) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(ts.work)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func invoiceTemplate(t *testing.T) []byte {
	return documenttest.NewDOCX().
		Paragraph("Invoice {{invoice_no}} for {{customer_name}}").
		Table(
			[]string{"#", "Description", "HSN", "Qty", "Unit", "Rate", "Amount"},
			[]string{"", "", "", "", "", "", ""},
		).
		Paragraph("Total {{round_off}} {{amount_in_words}}").
		Bytes(t)
}

const itemsBody = `{
	"customer_name": "Acme Traders",
	"invoice_no": "INV-001",
	"invoice_date": "2024-01-15",
	"items": [
		{"description": "Copper wire", "hsn": "7408", "qty": 2, "rate": 100},
		{"description": "Cable tie", "hsn": "3926", "qty": 1, "rate": 50}
	]
}`

func TestRoot(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.do(t, http.MethodGet, "/", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Invoice API running", decodeJSON(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get(CorrelationIDHeader))
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "req-42")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(CorrelationIDHeader))
}

func TestGenerateInvoice(t *testing.T) {
	ts := newTestServer(t, invoiceTemplate(t), nil)
	w := ts.postJSON(t, "/generate_invoice", itemsBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.FormatDOCX.ContentType(), w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="invoice_INV-001.docx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Template-Revision"))
	assert.Empty(t, w.Header().Get("X-Unresolved-Placeholders"))

	doc, err := document.Open(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-001 for Acme Traders", document.Text(doc.Blocks()[0]))
	assert.Equal(t, "Total 295.00 Two Hundred Ninety Five Only", document.Text(doc.Blocks()[1]))
	assert.Equal(t, 3, doc.Tables()[0].RowCount())

	ts.assertNoWorkspaces(t)
}

func TestGenerateInvoiceLegacyShape(t *testing.T) {
	tmpl := documenttest.NewDOCX().
		Paragraph("{{description}} {{qty}} x {{rate}} = {{subtotal}} {{po_number}}").
		Bytes(t)
	ts := newTestServer(t, tmpl, nil)

	w := ts.postJSON(t, "/generate_invoice", `{
		"customer_name": "Acme", "invoice_no": "L-1", "invoice_date": "2024-01-15",
		"description": "Copper wire", "hsn": "7408", "qty": 2, "rate": 125
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "po_number", w.Header().Get("X-Unresolved-Placeholders"))

	doc, err := document.Open(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Copper wire 2.00 x 125.00 = 250.00 {{po_number}}", document.Text(doc.Blocks()[0]))
}

func TestGenerateInvoiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		tmpl       bool
		conv       converter.Converter
		body       string
		wantStatus int
		wantError  string
	}{
		{"malformed json", true, nil, `{"customer_name": `, http.StatusBadRequest, msgInvalidBody},
		{"non-numeric qty", true, nil, `{"items": [{"description": "x", "qty": "two", "rate": 1}]}`, http.StatusBadRequest, msgInvalidBody},
		{"empty items", true, nil, `{"customer_name": "A", "invoice_no": "1", "invoice_date": "d", "items": []}`, http.StatusBadRequest, msgValidation},
		{"missing rate", true, nil, `{"customer_name": "A", "invoice_no": "1", "invoice_date": "d", "items": [{"description": "x", "qty": 1}]}`, http.StatusBadRequest, msgValidation},
		{"unsafe invoice number", true, nil, strings.Replace(itemsBody, "INV-001", "../../etc/passwd", 1), http.StatusBadRequest, msgValidation},
		{"no template", false, nil, itemsBody, http.StatusNotFound, msgTemplateNotFound},
		{"conversion timeout", true, failingConverter{converter.ErrConversionTimeout}, itemsBody, http.StatusGatewayTimeout, msgConversionTimeout},
		{"conversion failure", true, failingConverter{errors.New("soffice: segfault in /opt/secret")}, itemsBody, http.StatusInternalServerError, msgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tmpl []byte
			if tt.tmpl {
				tmpl = invoiceTemplate(t)
			}
			ts := newTestServer(t, tmpl, tt.conv)

			w := ts.postJSON(t, "/generate_invoice", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeJSON(t, w)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotContains(t, w.Body.String(), "/opt/secret")
			ts.assertNoWorkspaces(t)
		})
	}
}

func TestValidationDetails(t *testing.T) {
	ts := newTestServer(t, invoiceTemplate(t), nil)
	w := ts.postJSON(t, "/generate_invoice", `{"invoice_no": "1", "invoice_date": "d", "items": [{"description": "x", "qty": -1, "rate": 1}]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	details, ok := decodeJSON(t, w)["details"].([]any)
	require.True(t, ok)

	var fields []string
	for _, d := range details {
		fields = append(fields, d.(map[string]any)["field"].(string))
	}
	assert.Contains(t, fields, "customer_name")
	assert.Contains(t, fields, "items[0].qty")
}

func TestComputeTotals(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.postJSON(t, "/compute_totals", `{
		"customer_name": "A", "invoice_no": "1", "invoice_date": "d",
		"items": [{"description": "x", "qty": 1, "rate": "33.33"}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, "33.33", body["subtotal"])
	assert.Equal(t, "3.00", body["sgst"])
	assert.Equal(t, "39.33", body["grand_total"])
	assert.Equal(t, "40.00", body["round_off"])
	assert.Equal(t, "Forty Only", body["amount_in_words"])
}

func TestComputeTotalsRejectsOversizedNumbers(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	for _, qty := range []string{"1e5000000", "10000000000000000000"} {
		start := time.Now()
		w := ts.postJSON(t, "/compute_totals", `{
			"customer_name": "A", "invoice_no": "1", "invoice_date": "d",
			"items": [{"description": "x", "qty": `+qty+`, "rate": 1}]
		}`)
		assert.Less(t, time.Since(start), time.Second, qty)

		require.Equal(t, http.StatusBadRequest, w.Code, qty)
		details, ok := decodeJSON(t, w)["details"].([]any)
		require.True(t, ok)
		require.Len(t, details, 1)
		assert.Equal(t, "items[0].qty", details[0].(map[string]any)["field"])
		assert.Equal(t, "max", details[0].(map[string]any)["rule"])
	}
}

func TestTemplateEndpointsWithoutTemplate(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	for _, path := range []string{"/view_template", "/template_info"} {
		w := ts.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, msgTemplateNotFound, decodeJSON(t, w)["error"])
	}
}

func TestViewTemplate(t *testing.T) {
	tmpl := invoiceTemplate(t)
	ts := newTestServer(t, tmpl, nil)

	w := ts.do(t, http.MethodGet, "/view_template", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tmpl, w.Body.Bytes())
	assert.Equal(t, types.FormatDOCX.ContentType(), w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="template.docx"`, w.Header().Get("Content-Disposition"))
}

func TestTemplateInfo(t *testing.T) {
	ts := newTestServer(t, invoiceTemplate(t), nil)

	w := ts.do(t, http.MethodGet, "/template_info", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.EqualValues(t, 2, body["paragraph_count"])
	assert.EqualValues(t, 1, body["table_count"])
	assert.EqualValues(t, 1, body["section_count"])
	assert.Equal(t, "docx", body["format"])
	assert.Equal(t, []any{"amount_in_words", "customer_name", "invoice_no", "round_off"}, body["placeholders"])
}

func TestUploadTemplate(t *testing.T) {
	ts := newTestServer(t, invoiceTemplate(t), nil)

	w := ts.upload(t, "new.docx", documenttest.NewDOCX().Paragraph("Hello {{customer_name}}").Bytes(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, "Template uploaded", body["message"])
	assert.EqualValues(t, 2, body["revision"])
	assert.Equal(t, []any{"customer_name"}, body["placeholders"])

	w = ts.postJSON(t, "/generate_invoice", itemsBody)
	require.Equal(t, http.StatusInternalServerError, w.Code, "the new template has no items table")

	w = ts.upload(t, "sheet.xlsx", documenttest.NewXLSX(t).
		Table("Items", "A1", []string{"#", "Description"}, []string{"", ""}).
		Set("A5", "{{round_off}}").
		Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.postJSON(t, "/generate_invoice", itemsBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="invoice_INV-001.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "3", w.Header().Get("X-Template-Revision"))
}

func TestUploadTemplateRejections(t *testing.T) {
	original := invoiceTemplate(t)

	tests := []struct {
		name       string
		filename   string
		data       []byte
		wantStatus int
	}{
		{"wrong extension", "invoice.pdf", original, http.StatusBadRequest},
		{"bad signature", "invoice.docx", []byte("not a zip"), http.StatusBadRequest},
		{"format mismatch", "invoice.xlsx", original, http.StatusBadRequest},
		{"undecodable", "invoice.docx", documenttest.Package(t, map[string]string{
			"[Content_Types].xml": "<Types/>",
			"word/document.xml":   "<w:document>",
		}), http.StatusBadRequest},
		{"too large", "invoice.docx", bytes.Repeat([]byte("x"), 65<<10), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, original, nil)

			w := ts.upload(t, tt.filename, tt.data)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			snap, err := ts.store.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), snap.Revision)
			assert.Equal(t, original, snap.Content)
		})
	}
}

func TestUploadTemplateMissingField(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.do(t, http.MethodPost, "/upload_template", []byte("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecovery(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := ts.do(t, http.MethodGet, "/boom", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, msgInternal, decodeJSON(t, w)["error"])
}
