// =============================================================================
// Invoice Generator - Render Pipeline
// =============================================================================
//
// This module orchestrates the generation of a single invoice, from the
// request to the delivered artifact.
//
// RENDER PIPELINE:
//   1. Normalize and validate the request
//   2. Take a snapshot of the current template
//   3. Compute the totals and the placeholder mapping
//   4. Open a private workspace and decode a copy of the template
//   5. Substitute placeholders, then expand the line-item table
//   6. Save the filled document and convert it
//   7. Hand the artifact to the caller, who closes it after delivery
//
// CONCURRENCY:
//   A Service is shared by all requests. Every request works on its own
//   template copy inside its own workspace, which is removed on every exit
//   path.
//
// =============================================================================

package invoice

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/converter"
	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/filler"
	"github.com/stormdotcom/invo-gen-fastapi/internal/logger"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/internal/totals"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/internal/validation"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

// =============================================================================
// ARTIFACT
// =============================================================================

// Artifact is a generated invoice waiting to be delivered. The file lives in
// a workspace that Close removes.
type Artifact struct {
	// Path is the artifact file on disk.
	Path string

	// FileName is the name offered to the client: invoice_<no>.<ext>.
	FileName string

	// Format is the delivered format.
	Format types.Format

	// ContentType is the MIME type of the artifact.
	ContentType string

	// Totals are the computed invoice totals.
	Totals types.InvoiceTotals

	// Unresolved lists template placeholders that had no value, sorted.
	Unresolved []string

	// Revision is the template revision the invoice was rendered from.
	Revision uint64

	// Stats contains processing statistics.
	Stats Stats

	once    sync.Once
	cleanup func() error
	err     error
}

// Stats contains statistics about one generation.
type Stats struct {
	// LineItems is the number of rows written to the items table.
	LineItems int

	// Converter is the name of the engine that produced the artifact.
	Converter string

	// FillTime is the time spent filling the template.
	FillTime time.Duration

	// ConvertTime is the time spent in the converter.
	ConvertTime time.Duration

	// ProcessingTime is the total time taken.
	ProcessingTime time.Duration
}

// Close removes the artifact's workspace. It is safe to call more than once.
func (a *Artifact) Close() error {
	a.once.Do(func() {
		if a.cleanup != nil {
			a.err = a.cleanup()
		}
	})
	return a.err
}

// =============================================================================
// SERVICE
// =============================================================================

// Service renders invoices from the stored template.
type Service struct {
	store      *template.Store
	workspaces *utils.Workspaces
	converter  converter.Converter
	opts       totals.Options
	itemsTable int
	logger     *zap.Logger
}

// New creates a Service.
func New(store *template.Store, workspaces *utils.Workspaces, conv converter.Converter, cfg config.InvoiceConfig, log *zap.Logger) (*Service, error) {
	system, err := totals.ParseNumberSystem(cfg.NumberSystem)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if conv == nil {
		conv = converter.Passthrough{}
	}

	return &Service{
		store:      store,
		workspaces: workspaces,
		converter:  conv,
		opts:       totals.Options{WordsSuffix: cfg.AmountWordsSuffix, NumberSystem: system},
		itemsTable: cfg.ItemsTable,
		logger:     log,
	}, nil
}

// Store returns the template store the service renders from.
func (s *Service) Store() *template.Store {
	return s.store
}

// Preview validates req and computes its totals without rendering.
func (s *Service) Preview(req *types.InvoiceRequest) (types.InvoiceTotals, error) {
	validation.Normalize(req)
	if err := validation.Validate(req); err != nil {
		return types.InvoiceTotals{}, err
	}
	return totals.Calculate(req.Items, s.opts)
}

// Generate renders req. On success the caller owns the artifact and must
// Close it; on error nothing is left on disk.
func (s *Service) Generate(ctx context.Context, req *types.InvoiceRequest) (_ *Artifact, err error) {
	startTime := time.Now()
	log := logger.FromContext(ctx, s.logger).With(zap.String("invoice_no", req.InvoiceNumber))

	// =========================================================================
	// STEP 1: VALIDATE REQUEST
	// =========================================================================

	validation.Normalize(req)
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	// =========================================================================
	// STEP 2: SNAPSHOT TEMPLATE
	// =========================================================================
	// The snapshot pins one revision; a concurrent upload does not affect
	// this request.

	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	// =========================================================================
	// STEP 3: COMPUTE TOTALS
	// =========================================================================

	invoiceTotals, err := totals.Calculate(req.Items, s.opts)
	if err != nil {
		return nil, err
	}
	mapping := totals.Mapping(req, invoiceTotals)

	// =========================================================================
	// STEP 4: OPEN WORKSPACE
	// =========================================================================

	dir, err := s.workspaces.New()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if cerr := s.workspaces.Cleanup(dir); cerr != nil {
				log.Warn("failed to remove workspace", zap.Error(cerr))
			}
		}
	}()

	doc, err := snap.Open()
	if err != nil {
		return nil, err
	}

	// =========================================================================
	// STEP 5: FILL TEMPLATE
	// =========================================================================
	// The example rows of the items table are dropped before substitution so
	// their tokens are not reported. Substitution runs before expansion so
	// that item text is never read as a placeholder.

	fillStart := time.Now()
	expand := !req.Legacy || len(doc.Tables()) > 0
	if expand {
		if err := filler.ClearItems(doc, s.itemsTable); err != nil {
			return nil, fmt.Errorf("failed to expand line items: %w", err)
		}
	}
	unresolved := filler.Substitute(doc, mapping)

	lineItems := 0
	if !expand {
		log.Debug("legacy request on a template without tables; skipping item expansion")
	} else {
		if err := filler.ExpandItems(doc, req.Items, s.itemsTable); err != nil {
			return nil, fmt.Errorf("failed to expand line items: %w", err)
		}
		lineItems = len(req.Items)
	}
	fillTime := time.Since(fillStart)

	if len(unresolved) > 0 {
		log.Warn("template placeholders without a value", zap.Strings("placeholders", unresolved))
	}

	// =========================================================================
	// STEP 6: SAVE AND CONVERT
	// =========================================================================

	base := "invoice_" + req.InvoiceNumber
	working := filepath.Join(dir, base+snap.Format.Ext())
	if err := document.Save(doc, working); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	convertStart := time.Now()
	out, err := s.converter.Convert(ctx, working, dir)
	if err != nil {
		return nil, fmt.Errorf("%s conversion: %w", s.converter.Name(), err)
	}
	convertTime := time.Since(convertStart)

	format, ok := types.FormatFromExt(out)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output %s", converter.ErrConversionFailed, filepath.Base(out))
	}

	// =========================================================================
	// COMPLETE
	// =========================================================================

	artifact := &Artifact{
		Path:        out,
		FileName:    base + format.Ext(),
		Format:      format,
		ContentType: format.ContentType(),
		Totals:      invoiceTotals,
		Unresolved:  unresolved,
		Revision:    snap.Revision,
		Stats: Stats{
			LineItems:      lineItems,
			Converter:      s.converter.Name(),
			FillTime:       fillTime,
			ConvertTime:    convertTime,
			ProcessingTime: time.Since(startTime),
		},
		cleanup: func() error { return s.workspaces.Cleanup(dir) },
	}

	log.Info("invoice generated",
		zap.String("file", artifact.FileName),
		zap.Uint64("template_revision", snap.Revision),
		zap.Int("line_items", lineItems),
		zap.String("round_off", totals.Money(invoiceTotals.RoundedTotal)),
		zap.Duration("took", artifact.Stats.ProcessingTime))

	return artifact, nil
}
