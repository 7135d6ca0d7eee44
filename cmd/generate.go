// =============================================================================
// Invoice Generator - Generate Command
// =============================================================================
//
// This file defines the 'generate' command, which renders invoices offline
// with the same pipeline the HTTP API uses.
//
// COMMAND USAGE:
//   invogen generate --request req.json|req.yaml
//   invogen generate --input-dir ./requests
//   invogen generate --items items.csv --customer NAME --invoice-no NO --date DATE
//
// FLAGS:
//   --request     : A single request file (JSON or YAML)
//   --input-dir   : Render every .json/.yaml/.yml request in a directory
//   --items       : A CSV list of line items (description,hsn,qty,rate,unit)
//   --customer    : Customer name for --items
//   --invoice-no  : Invoice number for --items
//   --date        : Invoice date for --items
//   --delimiter   : CSV delimiter for --items: a character, tab, pipe or semicolon
//   --output-dir  : Where artifacts are written (default generate.output_dir)
//
// PROCESSING PIPELINE:
//   1. Load configuration and the stored template
//   2. Collect the requests to render
//   3. Render them concurrently, at most generate.max_concurrency at once
//   4. Write each artifact to the output directory
//   5. Print and write the generation summary
//
// A failed request does not stop the others. The command exits non-zero
// when any request failed.
//
// =============================================================================

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/stormdotcom/invo-gen-fastapi/internal/csvparser"
	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/totals"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	requestFile  string
	inputDir     string
	itemsFile    string
	customer     string
	invoiceNo    string
	invoiceDate  string
	csvDelimiter string
	outputDir    string
)

// requestExts are the request file extensions picked up by --input-dir.
var requestExts = []string{".json", ".yaml", ".yml"}

// =============================================================================
// GENERATE COMMAND DEFINITION
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render invoices from request files or a CSV item list",
	Long: `The generate command renders invoices without starting the HTTP API.

Exactly one input mode must be given:
  --request     one JSON or YAML request file
  --input-dir   every request file in a directory, rendered concurrently
  --items       a CSV list of line items plus --customer, --invoice-no, --date

Request files use the same shape as the HTTP API body, including the legacy
single-item shape. Artifacts are named invoice_<invoice_no>.<ext> and written
to the output directory together with a generation summary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&requestFile, "request", "", "Path to a JSON or YAML request file")
	generateCmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory of request files to render")
	generateCmd.Flags().StringVar(&itemsFile, "items", "", "CSV file of line items")
	generateCmd.Flags().StringVar(&customer, "customer", "", "Customer name (with --items)")
	generateCmd.Flags().StringVar(&invoiceNo, "invoice-no", "", "Invoice number (with --items)")
	generateCmd.Flags().StringVar(&invoiceDate, "date", "", "Invoice date (with --items)")
	generateCmd.Flags().StringVar(&csvDelimiter, "delimiter", ",", "CSV delimiter (with --items)")
	generateCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides generate.output_dir)")

	generateCmd.MarkFlagsMutuallyExclusive("request", "input-dir", "items")
	generateCmd.MarkFlagsOneRequired("request", "input-dir", "items")
}

// =============================================================================
// MAIN GENERATION FUNCTION
// =============================================================================

func runGenerate(parent context.Context) error {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION AND TEMPLATE
	// =========================================================================

	fmt.Println("=== Invoice Generator ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.log.Sync()

	outDir := outputDir
	if outDir == "" {
		outDir = a.cfg.Generate.OutputDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// =========================================================================
	// STEP 2: COLLECT REQUESTS
	// =========================================================================

	jobs, err := collectJobs()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No request files found.")
		return nil
	}
	fmt.Printf("Found %d request(s) to render\n", len(jobs))

	// =========================================================================
	// STEP 3: RENDER CONCURRENTLY
	// =========================================================================

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &batch{
		svc:         a.svc,
		outDir:      outDir,
		concurrency: a.cfg.Generate.MaxConcurrency,
		log:         a.log,
	}
	summary := b.run(ctx, jobs)
	summary.StartTime = startTime

	// =========================================================================
	// STEP 4: PRINT AND WRITE SUMMARY
	// =========================================================================

	for _, g := range summary.Generated {
		fmt.Printf("  ✓ %s -> %s (%s)\n", g.InputFile, filepath.Base(g.OutputFile), g.GrandTotal)
		if len(g.Unresolved) > 0 {
			fmt.Printf("      unresolved placeholders: %s\n", strings.Join(g.Unresolved, ", "))
		}
	}
	for _, f := range summary.FailedList {
		fmt.Printf("  ✗ %s: %s\n", f.InputFile, f.ErrorMessage)
	}

	fmt.Println("\n=== Generation Complete ===")
	fmt.Printf("Total requests:  %d\n", summary.TotalRequests)
	fmt.Printf("Successful:      %d\n", summary.Successful)
	fmt.Printf("Failed:          %d\n", summary.Failed)
	fmt.Printf("Line items:      %d\n", summary.TotalLineItems)
	fmt.Printf("Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))

	if path, err := utils.WriteSummaryLog(summary, outDir); err != nil {
		a.log.Warn("Failed to write generation summary", zap.Error(err))
	} else {
		fmt.Printf("Summary written to %s\n", path)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d invoice(s) failed", summary.Failed, summary.TotalRequests)
	}
	return nil
}

// =============================================================================
// REQUEST COLLECTION
// =============================================================================

// job is one invoice to render. load is deferred so that a broken input
// file is reported as a failed request rather than aborting the run.
type job struct {
	source string
	load   func() (*types.InvoiceRequest, error)
}

func collectJobs() ([]job, error) {
	switch {
	case requestFile != "":
		return []job{requestJob(requestFile)}, nil

	case inputDir != "":
		files, err := utils.DiscoverFiles(inputDir, requestExts...)
		if err != nil {
			return nil, fmt.Errorf("failed to discover request files: %w", err)
		}
		jobs := make([]job, 0, len(files))
		for _, f := range files {
			jobs = append(jobs, requestJob(f))
		}
		return jobs, nil

	default:
		return []job{itemsJob(itemsFile, customer, invoiceNo, invoiceDate, csvDelimiter)}, nil
	}
}

func requestJob(path string) job {
	return job{
		source: filepath.Base(path),
		load: func() (*types.InvoiceRequest, error) {
			p, err := readPayload(path)
			if err != nil {
				return nil, err
			}
			return p.Request()
		},
	}
}

func itemsJob(path, customer, invoiceNo, date, delimiter string) job {
	return job{
		source: filepath.Base(path),
		load: func() (*types.InvoiceRequest, error) {
			items, err := csvparser.ReadItems(path, csvparser.Options{Delimiter: delimiter})
			if err != nil {
				return nil, err
			}
			return &types.InvoiceRequest{
				CustomerName:  customer,
				InvoiceNumber: invoiceNo,
				InvoiceDate:   date,
				Items:         items,
			}, nil
		},
	}
}

// readPayload decodes a request file. The extension selects YAML or JSON.
func readPayload(path string) (*invoice.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	var p invoice.Payload
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse request file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse request file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported request file extension %q", filepath.Ext(path))
	}
	return &p, nil
}

// =============================================================================
// BATCH RENDERING
// =============================================================================

// batch renders jobs with bounded concurrency and copies the artifacts to
// outDir.
type batch struct {
	svc         *invoice.Service
	outDir      string
	concurrency int
	log         *zap.Logger
}

type result struct {
	source    string
	generated utils.GeneratedFileInfo
	err       error
}

// run renders every job and returns the summary. Results are reported in
// job order.
func (b *batch) run(ctx context.Context, jobs []job) utils.GenerationSummary {
	summary := utils.GenerationSummary{
		StartTime:     time.Now(),
		TotalRequests: len(jobs),
	}

	concurrency := b.concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	results := make([]result, len(jobs))

	for i, j := range jobs {
		wg.Add(1)

		go func(i int, j job) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = result{source: j.source, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			generated, err := b.render(ctx, j)
			results[i] = result{source: j.source, generated: generated, err: err}
		}(i, j)
	}

	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			summary.Failed++
			summary.FailedList = append(summary.FailedList, utils.FailedFileInfo{
				InputFile:    r.source,
				ErrorMessage: r.err.Error(),
			})
			continue
		}
		summary.Successful++
		summary.TotalLineItems += r.generated.LineItems
		summary.Generated = append(summary.Generated, r.generated)
	}

	summary.EndTime = time.Now()
	return summary
}

// render produces one invoice and copies it out of its workspace.
func (b *batch) render(ctx context.Context, j job) (utils.GeneratedFileInfo, error) {
	start := time.Now()

	req, err := j.load()
	if err != nil {
		return utils.GeneratedFileInfo{}, err
	}

	artifact, err := b.svc.Generate(ctx, req)
	if err != nil {
		return utils.GeneratedFileInfo{}, err
	}
	defer artifact.Close()

	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return utils.GeneratedFileInfo{}, err
	}
	// Requests sharing an invoice number write the same file; the rename
	// keeps whichever finishes last intact.
	dst := filepath.Join(b.outDir, artifact.FileName)
	if err := utils.AtomicWriteFile(dst, data, 0o644); err != nil {
		return utils.GeneratedFileInfo{}, fmt.Errorf("failed to write %s: %w", artifact.FileName, err)
	}

	b.log.Debug("Invoice written",
		zap.String("source", j.source),
		zap.String("output", dst),
		zap.Uint64("template_revision", artifact.Revision))

	return utils.GeneratedFileInfo{
		InputFile:   j.source,
		OutputFile:  dst,
		LineItems:   artifact.Stats.LineItems,
		GrandTotal:  totals.Money(artifact.Totals.RoundedTotal),
		Unresolved:  artifact.Unresolved,
		ProcessTime: time.Since(start),
	}, nil
}
