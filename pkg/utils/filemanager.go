// =============================================================================
// Invoice Generator - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the generator:
//   - Per-request workspaces (uuid-named scratch directories)
//   - Sweeping of stale workspaces left by a crash
//   - Atomic file replacement (temp file + fsync + rename)
//   - Request file discovery for batch generation
//   - Generation summary logs
//
// WORKSPACE STRATEGY:
//   - Every request gets its own directory under the workspace root
//   - The directory is removed when the request finishes, whatever the outcome
//   - Directories older than StaleAfter are swept at startup
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// workspacePrefix marks directories owned by Workspaces so a sweep never
// touches anything else under the root.
const workspacePrefix = "ws-"

// =============================================================================
// WORKSPACES
// =============================================================================

// Workspaces hands out private scratch directories.
type Workspaces struct {
	// Root is the parent directory of all workspaces.
	Root string

	// StaleAfter is the age after which Sweep removes a workspace.
	StaleAfter time.Duration
}

// NewWorkspaces creates a Workspaces rooted at root.
func NewWorkspaces(root string, staleAfter time.Duration) *Workspaces {
	return &Workspaces{Root: root, StaleAfter: staleAfter}
}

// EnsureRoot creates the workspace root if it doesn't exist.
func (w *Workspaces) EnsureRoot() error {
	if err := os.MkdirAll(w.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace root %s: %w", w.Root, err)
	}
	return nil
}

// New creates a fresh workspace and returns its path.
func (w *Workspaces) New() (string, error) {
	if err := w.EnsureRoot(); err != nil {
		return "", err
	}

	dir := filepath.Join(w.Root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	return dir, nil
}

// Cleanup removes a workspace created by New. Paths outside the root are
// refused.
func (w *Workspaces) Cleanup(dir string) error {
	if !w.owns(dir) {
		return fmt.Errorf("refusing to remove %s: not a workspace under %s", dir, w.Root)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", dir, err)
	}
	return nil
}

// Sweep removes workspaces last modified before now-StaleAfter and returns
// how many were removed. A missing root is not an error.
func (w *Workspaces) Sweep(now time.Time) (int, error) {
	if w.StaleAfter <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(w.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read workspace root: %w", err)
	}

	cutoff := now.Add(-w.StaleAfter)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.Root, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to sweep workspace %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (w *Workspaces) owns(dir string) bool {
	rel, err := filepath.Rel(w.Root, dir)
	if err != nil {
		return false
	}
	return !strings.ContainsRune(rel, filepath.Separator) && strings.HasPrefix(rel, workspacePrefix)
}

// =============================================================================
// ATOMIC WRITES
// =============================================================================

// AtomicWriteFile writes data to path so that readers see either the old
// content or the new content, never a partial file. The temporary file is
// created in the target directory because rename is only atomic within one
// filesystem.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure below; after a successful rename
	// the name no longer exists and Remove is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverFiles lists regular files in dir whose extension (case-insensitive)
// is one of exts, sorted by name.
func DiscoverFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				result = append(result, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}

	sort.Strings(result)
	return result, nil
}

// =============================================================================
// GENERATION SUMMARY
// =============================================================================

// GenerationSummary contains summary information about a batch run.
type GenerationSummary struct {
	StartTime      time.Time
	EndTime        time.Time
	TotalRequests  int
	Successful     int
	Failed         int
	TotalLineItems int
	Generated      []GeneratedFileInfo
	FailedList     []FailedFileInfo
}

// GeneratedFileInfo describes one produced artifact.
type GeneratedFileInfo struct {
	InputFile   string
	OutputFile  string
	LineItems   int
	GrandTotal  string
	Unresolved  []string
	ProcessTime time.Duration
}

// FailedFileInfo describes one request that could not be rendered.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a generation summary to outputDir and returns the
// path of the log file.
func WriteSummaryLog(summary GenerationSummary, outputDir string) (string, error) {
	timestamp := summary.EndTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("generation_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := writeSummary(file, summary); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return summaryPath, nil
}

func writeSummary(w io.Writer, summary GenerationSummary) error {
	writer := bufio.NewWriter(w)
	rule := strings.Repeat("=", 80) + "\n"
	thin := strings.Repeat("-", 80) + "\n"

	fmt.Fprintf(writer, "Invoice Generator - Generation Summary\n%s\n", rule)
	fmt.Fprintf(writer, "Run Information:\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime))
	fmt.Fprintf(writer, "Statistics:\n"+
		"  Total Requests:   %d\n"+
		"  Successful:       %d\n"+
		"  Failed:           %d\n"+
		"  Total Line Items: %d\n\n",
		summary.TotalRequests, summary.Successful, summary.Failed, summary.TotalLineItems)

	if len(summary.Generated) > 0 {
		writer.WriteString("Generated Invoices:\n" + thin)
		for _, g := range summary.Generated {
			fmt.Fprintf(writer, "  Input:        %s\n", g.InputFile)
			fmt.Fprintf(writer, "  Output:       %s\n", g.OutputFile)
			fmt.Fprintf(writer, "  Line Items:   %d\n", g.LineItems)
			fmt.Fprintf(writer, "  Grand Total:  %s\n", g.GrandTotal)
			if len(g.Unresolved) > 0 {
				fmt.Fprintf(writer, "  Unresolved:   %s\n", strings.Join(g.Unresolved, ", "))
			}
			fmt.Fprintf(writer, "  Process Time: %s\n\n", g.ProcessTime)
		}
	}

	if len(summary.FailedList) > 0 {
		writer.WriteString("Failed Requests:\n" + thin)
		for _, f := range summary.FailedList {
			fmt.Fprintf(writer, "  File:  %s\n", f.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", f.ErrorMessage)
		}
	}

	writer.WriteString(rule + "End of Summary\n")
	return writer.Flush()
}
