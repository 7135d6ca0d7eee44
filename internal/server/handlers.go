package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/internal/totals"
)

const (
	headerRevision   = "X-Template-Revision"
	headerUnresolved = "X-Unresolved-Placeholders"

	// multipartOverhead is allowed on top of MaxUploadBytes for the
	// multipart framing around the file.
	multipartOverhead = 64 << 10
)

// totalsResponse renders every amount with two decimals.
type totalsResponse struct {
	Subtotal      string `json:"subtotal"`
	SGST          string `json:"sgst"`
	CGST          string `json:"cgst"`
	TotalTax      string `json:"total_tax"`
	GrandTotal    string `json:"grand_total"`
	RoundOff      string `json:"round_off"`
	AmountInWords string `json:"amount_in_words"`
}

type uploadResponse struct {
	Message string `json:"message"`
	template.Info
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Invoice API running"})
}

// bindPayload decodes the request body. It writes the error response itself
// and reports whether the handler should continue.
func (s *Server) bindPayload(c *gin.Context) (*invoice.Payload, bool) {
	var p invoice.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		s.sendError(c, http.StatusBadRequest, msgInvalidBody, err.Error(), err)
		return nil, false
	}
	return &p, true
}

func (s *Server) generateInvoice(c *gin.Context) {
	p, ok := s.bindPayload(c)
	if !ok {
		return
	}
	req, err := p.Request()
	if err != nil {
		s.handleError(c, err)
		return
	}

	artifact, err := s.svc.Generate(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer artifact.Close()

	f, err := os.Open(artifact.Path)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.handleError(c, err)
		return
	}

	extra := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, artifact.FileName),
		headerRevision:        strconv.FormatUint(artifact.Revision, 10),
	}
	if len(artifact.Unresolved) > 0 {
		extra[headerUnresolved] = strings.Join(artifact.Unresolved, ",")
	}

	c.DataFromReader(http.StatusOK, info.Size(), artifact.ContentType, f, extra)
}

func (s *Server) computeTotals(c *gin.Context) {
	p, ok := s.bindPayload(c)
	if !ok {
		return
	}
	req, err := p.Request()
	if err != nil {
		s.handleError(c, err)
		return
	}

	t, err := s.svc.Preview(req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, totalsResponse{
		Subtotal:      totals.Money(t.Subtotal),
		SGST:          totals.Money(t.SGST),
		CGST:          totals.Money(t.CGST),
		TotalTax:      totals.Money(t.TotalTax),
		GrandTotal:    totals.Money(t.GrandTotal),
		RoundOff:      totals.Money(t.RoundedTotal),
		AmountInWords: t.AmountInWords,
	})
}

func (s *Server) viewTemplate(c *gin.Context) {
	snap, err := s.store.Snapshot()
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(snap.Path)))
	c.Header(headerRevision, strconv.FormatUint(snap.Revision, 10))
	c.Data(http.StatusOK, snap.Format.ContentType(), snap.Content)
}

func (s *Server) templateInfo(c *gin.Context) {
	info, err := s.store.Info()
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) uploadTemplate(c *gin.Context) {
	limit := s.cfg.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.handleError(c, err)
			return
		}
		s.sendError(c, http.StatusBadRequest, `multipart form field "file" is required`, nil, err)
		return
	}
	if fh.Size > limit {
		s.handleError(c, &http.MaxBytesError{Limit: limit})
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.handleError(c, err)
		return
	}

	snap, err := s.store.Replace(fh.Filename, data)
	if err != nil {
		s.handleError(c, err)
		return
	}

	info, err := template.Describe(snap)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.Header(headerRevision, strconv.FormatUint(snap.Revision, 10))
	c.JSON(http.StatusOK, uploadResponse{Message: "Template uploaded", Info: info})
}
