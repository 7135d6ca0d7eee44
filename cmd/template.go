package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/logger"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
)

// infoJSON prints template info as JSON instead of text.
var infoJSON bool

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect or replace the stored invoice template",
}

var templateInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the structure and placeholders of the stored template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		info, err := store.Info()
		if err != nil {
			return err
		}
		return printInfo(cmd, info)
	},
}

var templateInstallCmd = &cobra.Command{
	Use:   "install <file>",
	Short: "Validate a .docx or .xlsx file and install it as the stored template",
	Long: `Install validates the file the same way POST /upload_template does and
atomically replaces the stored template. A running server picks the new
template up on its next restart.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}

		snap, err := store.Replace(filepath.Base(args[0]), data)
		if err != nil {
			return err
		}
		logger.Info("Template installed",
			zap.String("path", snap.Path),
			zap.String("format", string(snap.Format)))

		info, err := template.Describe(snap)
		if err != nil {
			return err
		}
		return printInfo(cmd, info)
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateInfoCmd, templateInstallCmd)

	templateCmd.PersistentFlags().BoolVar(&infoJSON, "json", false, "Print template info as JSON")
}

// openStore loads the configured template store without building the
// rest of the application.
func openStore() (*template.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := template.NewStore(cfg.Template.Path, logger.Log)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return store, nil
}

func printInfo(cmd *cobra.Command, info template.Info) error {
	out := cmd.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Template:     %s\n", info.TemplatePath)
	fmt.Fprintf(out, "Format:       %s\n", info.Format)
	fmt.Fprintf(out, "Revision:     %d\n", info.Revision)
	fmt.Fprintf(out, "Paragraphs:   %d\n", info.ParagraphCount)
	fmt.Fprintf(out, "Tables:       %d\n", info.TableCount)
	fmt.Fprintf(out, "Sections:     %d\n", info.SectionCount)
	if len(info.Placeholders) == 0 {
		fmt.Fprintln(out, "Placeholders: none")
	} else {
		fmt.Fprintf(out, "Placeholders: %s\n", strings.Join(info.Placeholders, ", "))
	}
	return nil
}
