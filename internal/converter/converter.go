// =============================================================================
// Invoice Generator - Artifact Converter Module
// =============================================================================
//
// This module turns a filled working document (DOCX or XLSX) into the file
// that is delivered to the client.
//
// ENGINES:
//   1. libreoffice: headless office suite, converts to PDF with full layout
//   2. builtin:     pure Go PDF rendering of the document's text and tables
//   3. none:        delivers the filled document unchanged
//
// CONCURRENCY:
//   Converters hold no per-call state. Each call writes only into the
//   output directory it is given, which is private to one request.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversionTimeout is returned when a conversion exceeds its time limit.
	ErrConversionTimeout = errors.New("conversion timed out")

	// ErrConverterUnavailable is returned when the external converter cannot
	// be started.
	ErrConverterUnavailable = errors.New("converter unavailable")

	// ErrConversionFailed is returned when the converter ran but produced no
	// usable output.
	ErrConversionFailed = errors.New("conversion failed")
)

// =============================================================================
// CONVERTER INTERFACE
// =============================================================================

// Converter produces a deliverable artifact from a filled document.
type Converter interface {
	// Name identifies the engine in logs.
	Name() string

	// Convert reads src and returns the path of the artifact, which is
	// either src itself or a new file inside outDir.
	Convert(ctx context.Context, src, outDir string) (string, error)
}

// New selects the converter named by cfg.Engine.
func New(cfg config.ConverterConfig, logger *zap.Logger) (Converter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Engine {
	case "libreoffice":
		return &LibreOffice{Binary: cfg.Binary, Timeout: cfg.Timeout, Logger: logger}, nil
	case "builtin":
		return &PDFRenderer{}, nil
	case "none":
		return Passthrough{}, nil
	}
	return nil, fmt.Errorf("unknown converter engine %q", cfg.Engine)
}

// =============================================================================
// PASSTHROUGH
// =============================================================================

// Passthrough delivers the filled document itself.
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Convert(ctx context.Context, src, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return src, nil
}
