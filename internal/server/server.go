// =============================================================================
// Invoice Generator - HTTP Server
// =============================================================================
//
// This module exposes the generator over HTTP with gin.
//
// ROUTES:
//   GET  /                  liveness message
//   POST /generate_invoice  render an invoice and stream the artifact
//   POST /compute_totals    totals only, no rendering
//   GET  /view_template     download the stored template
//   GET  /template_info     structure and placeholders of the template
//   POST /upload_template   replace the template (multipart field "file")
//
// MIDDLEWARE:
//   Recovery, correlation ID, request logging. Errors are mapped to status
//   codes in one place (errors.go) and internal details are only logged.
//
// =============================================================================

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
)

// shutdownTimeout bounds the wait for in-flight requests on shutdown.
const shutdownTimeout = 15 * time.Second

// Server is the HTTP front-end of an invoice.Service.
type Server struct {
	svc    *invoice.Service
	store  *template.Store
	cfg    config.ServerConfig
	logger *zap.Logger
	router *gin.Engine
}

// New builds the router. The gin mode must be set by the caller.
func New(svc *invoice.Service, cfg config.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}

	s := &Server{
		svc:    svc,
		store:  svc.Store(),
		cfg:    cfg,
		logger: log,
		router: gin.New(),
	}

	s.router.Use(
		RecoveryMiddleware(log),
		CorrelationIDMiddleware(),
		LoggingMiddleware(log),
	)
	s.router.MaxMultipartMemory = cfg.MaxUploadBytes

	s.router.GET("/", s.root)
	s.router.POST("/generate_invoice", s.generateInvoice)
	s.router.POST("/compute_totals", s.computeTotals)
	s.router.GET("/view_template", s.viewTemplate)
	s.router.GET("/template_info", s.templateInfo)
	s.router.POST("/upload_template", s.uploadTemplate)

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server for the router with the configured
// timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := s.HTTPServer()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
