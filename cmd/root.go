// =============================================================================
// Invoice Generator - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (invogen)
//   ├── serveCmd    (invogen serve)
//   ├── generateCmd (invogen generate)
//   ├── templateCmd (invogen template info|install)
//   └── versionCmd  (invogen version)
//
// The root command owns the global flags (--config, --verbose). Commands
// that render invoices build their dependencies through newApp.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/config"
	"github.com/stormdotcom/invo-gen-fastapi/internal/converter"
	"github.com/stormdotcom/invo-gen-fastapi/internal/invoice"
	"github.com/stormdotcom/invo-gen-fastapi/internal/logger"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "invogen",
	Short: "Invoice Generator - Fill invoice templates and compute GST totals",
	Long: `Invoice Generator fills a stored DOCX or XLSX invoice template with the
customer details, line items and tax totals of a request, and delivers the
result as a PDF (or as the filled document itself).

Key Features:
  - HTTP API for generation, totals preview and template management
  - Line-item table expansion with one row per item
  - SGST/CGST computation with round-up and amount in words
  - Offline batch generation from JSON, YAML or CSV inputs

Example Usage:
  invogen serve                              # Start the HTTP API
  invogen generate --request req.yaml        # Render one invoice
  invogen generate --input-dir ./requests    # Render every request in a directory
  invogen template info                      # Show the stored template's placeholders`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app bundles the dependencies shared by the commands.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *template.Store
	workspaces *utils.Workspaces
	svc        *invoice.Service
}

// loadConfig reads the configuration and initializes the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Log.Format); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)

	return cfg, nil
}

// newApp loads the configuration and the stored template and builds the
// invoice service.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Log

	workspaces := utils.NewWorkspaces(cfg.Workspace.Dir, cfg.Workspace.StaleAfter)
	if err := workspaces.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("failed to prepare workspace directory: %w", err)
	}
	if n, err := workspaces.Sweep(time.Now()); err != nil {
		log.Warn("Stale workspace sweep failed", zap.Error(err))
	} else if n > 0 {
		log.Info("Removed stale workspaces", zap.Int("count", n))
	}

	store := template.NewStore(cfg.Template.Path, log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	conv, err := converter.New(cfg.Converter, log)
	if err != nil {
		return nil, err
	}

	svc, err := invoice.New(store, workspaces, conv, cfg.Invoice, log)
	if err != nil {
		return nil, err
	}

	log.Debug("Application ready",
		zap.String("template", store.Path()),
		zap.String("converter", conv.Name()),
		zap.String("workspace_dir", cfg.Workspace.Dir))

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		workspaces: workspaces,
		svc:        svc,
	}, nil
}
