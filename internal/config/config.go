// =============================================================================
// Invoice Generator - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the application
// configuration.
//
// CONFIGURATION SOURCES (later sources win):
//   1. Built-in defaults
//   2. Main config file (config.yaml), optional
//   3. A .env file in the working directory, optional
//   4. Process environment (INVOGEN_* variables and GIN_MODE)
//
// A missing config file is not an error: the service runs on defaults.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the global application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Template  TemplateConfig  `yaml:"template"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Converter ConverterConfig `yaml:"converter"`
	Invoice   InvoiceConfig   `yaml:"invoice"`
	Generate  GenerateConfig  `yaml:"generate"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8000"
	Addr string `yaml:"addr"`

	// ReadTimeout bounds reading a whole request, including uploads.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. It must exceed the
	// conversion timeout or slow conversions are cut off mid-stream.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxUploadBytes caps template uploads.
	// Default: 10485760 (10 MiB)
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Mode is the gin mode: debug, release or test.
	// Default: release
	Mode string `yaml:"mode"`
}

// TemplateConfig locates the stored template.
type TemplateConfig struct {
	// Path is the stored template file. Its extension (.docx or .xlsx)
	// selects the working document format.
	// Default: "./templates/template.docx"
	Path string `yaml:"path"`
}

// WorkspaceConfig controls per-request scratch directories.
type WorkspaceConfig struct {
	// Dir is the parent of all request workspaces.
	// Default: <os.TempDir()>/invogen
	Dir string `yaml:"dir"`

	// StaleAfter is the age after which leftover workspaces are swept
	// at startup.
	// Default: 1h
	StaleAfter time.Duration `yaml:"stale_after"`
}

// ConverterConfig selects the artifact converter.
type ConverterConfig struct {
	// Engine is one of:
	//   - "libreoffice": convert to PDF with a headless office suite
	//   - "builtin":     render a PDF from the document outline
	//   - "none":        deliver the filled document itself
	// Default: "libreoffice"
	Engine string `yaml:"engine"`

	// Binary is the office suite executable.
	// Default: "soffice"
	Binary string `yaml:"binary"`

	// Timeout bounds a single conversion.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// InvoiceConfig tunes totals and table filling.
type InvoiceConfig struct {
	// AmountWordsSuffix follows the spelled out amount.
	// Default: "Only"
	AmountWordsSuffix string `yaml:"amount_words_suffix"`

	// NumberSystem is "international" or "indian".
	// Default: "international"
	NumberSystem string `yaml:"number_system"`

	// ItemsTable is the 0-based index of the line-item table.
	// Default: 0
	ItemsTable int `yaml:"items_table"`
}

// GenerateConfig controls the offline generate command.
type GenerateConfig struct {
	// OutputDir receives generated artifacts.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// MaxConcurrency is the maximum number of requests rendered at once.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "console" or "json".
	// Default: "console"
	Format string `yaml:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultAddr           = ":8000"
	DefaultTemplatePath   = "./templates/template.docx"
	DefaultMaxUploadBytes = 10 << 20
	DefaultConverter      = "libreoffice"
	DefaultSofficeBinary  = "soffice"
	DefaultOutputDir      = "./output"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Template.Path == "" {
		cfg.Template.Path = DefaultTemplatePath
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = filepath.Join(os.TempDir(), "invogen")
	}
	if cfg.Workspace.StaleAfter == 0 {
		cfg.Workspace.StaleAfter = time.Hour
	}
	if cfg.Converter.Engine == "" {
		cfg.Converter.Engine = DefaultConverter
	}
	if cfg.Converter.Binary == "" {
		cfg.Converter.Binary = DefaultSofficeBinary
	}
	if cfg.Converter.Timeout == 0 {
		cfg.Converter.Timeout = 60 * time.Second
	}
	if cfg.Invoice.AmountWordsSuffix == "" {
		cfg.Invoice.AmountWordsSuffix = "Only"
	}
	if cfg.Invoice.NumberSystem == "" {
		cfg.Invoice.NumberSystem = "international"
	}
	if cfg.Generate.OutputDir == "" {
		cfg.Generate.OutputDir = DefaultOutputDir
	}
	if cfg.Generate.MaxConcurrency == 0 {
		cfg.Generate.MaxConcurrency = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file, applies the .env file and environment
// overrides, fills defaults and validates the result.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file. May be empty or
//     point to a missing file, in which case defaults are used.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be parsed or the result is invalid.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// A missing .env file is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays environment variables on top of the file values.
func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	setString("INVOGEN_ADDR", &cfg.Server.Addr)
	setString("INVOGEN_TEMPLATE_PATH", &cfg.Template.Path)
	setString("INVOGEN_WORK_DIR", &cfg.Workspace.Dir)
	setString("INVOGEN_CONVERTER", &cfg.Converter.Engine)
	setString("INVOGEN_SOFFICE", &cfg.Converter.Binary)
	setString("INVOGEN_LOG_LEVEL", &cfg.Log.Level)
	setString("INVOGEN_LOG_FORMAT", &cfg.Log.Format)
	setString("GIN_MODE", &cfg.Server.Mode)

	if v, ok := os.LookupEnv("INVOGEN_CONVERT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INVOGEN_CONVERT_TIMEOUT: %w", err)
		}
		cfg.Converter.Timeout = d
	}
	if v, ok := os.LookupEnv("INVOGEN_MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("INVOGEN_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Server.MaxUploadBytes = n
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// validate checks value ranges and enumerations.
func validate(cfg *Config) error {
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch cfg.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", cfg.Server.Mode)
	}

	switch ext := strings.ToLower(filepath.Ext(cfg.Template.Path)); ext {
	case ".docx", ".xlsx":
	default:
		return fmt.Errorf("template.path must end in .docx or .xlsx, got %q", cfg.Template.Path)
	}

	switch cfg.Converter.Engine {
	case "libreoffice", "builtin", "none":
	default:
		return fmt.Errorf("converter.engine must be libreoffice, builtin or none, got %q", cfg.Converter.Engine)
	}
	if cfg.Converter.Timeout < 0 {
		return fmt.Errorf("converter.timeout must be positive, got %s", cfg.Converter.Timeout)
	}

	switch strings.ToLower(cfg.Invoice.NumberSystem) {
	case "international", "indian":
	default:
		return fmt.Errorf("invoice.number_system must be international or indian, got %q", cfg.Invoice.NumberSystem)
	}
	if cfg.Invoice.ItemsTable < 0 {
		return fmt.Errorf("invoice.items_table must not be negative, got %d", cfg.Invoice.ItemsTable)
	}

	if cfg.Generate.MaxConcurrency < 1 {
		return fmt.Errorf("generate.max_concurrency must be at least 1, got %d", cfg.Generate.MaxConcurrency)
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}

	return nil
}
