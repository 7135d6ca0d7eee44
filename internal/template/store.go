// =============================================================================
// Invoice Generator - Template Store
// =============================================================================
//
// The store owns the single invoice template. It keeps the template bytes in
// memory so that every request can decode its own private copy, and it
// replaces the template atomically on upload:
//   - the new file is validated before anything is written
//   - the file on disk is swapped by rename, never rewritten in place
//   - the in-memory copy is swapped under a write lock with revision+1
//
// A request that took a Snapshot keeps rendering with that revision even if
// an upload lands while it runs.
//
// =============================================================================

package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
	"github.com/stormdotcom/invo-gen-fastapi/internal/filler"
	"github.com/stormdotcom/invo-gen-fastapi/internal/types"
	"github.com/stormdotcom/invo-gen-fastapi/pkg/utils"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTemplateNotFound is returned when no template has been installed.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrBadExtension is returned for uploads not named .docx or .xlsx.
	ErrBadExtension = errors.New("template must be a .docx or .xlsx file")

	// ErrFormatMismatch is returned when the content does not match the
	// extension of the uploaded file.
	ErrFormatMismatch = errors.New("template content does not match its extension")

	// ErrInvalidTemplate is returned when the content cannot be decoded.
	ErrInvalidTemplate = errors.New("template cannot be decoded")
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is one immutable revision of the template. Content must not be
// modified.
type Snapshot struct {
	Path      string
	Format    types.Format
	Content   []byte
	Revision  uint64
	UpdatedAt time.Time
}

// Open decodes a private copy of the template.
func (s Snapshot) Open() (document.Document, error) {
	doc, err := document.Open(s.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return doc, nil
}

// Info describes the stored template.
type Info struct {
	ParagraphCount int          `json:"paragraph_count"`
	TableCount     int          `json:"table_count"`
	SectionCount   int          `json:"section_count"`
	TemplatePath   string       `json:"template_path"`
	Format         types.Format `json:"format"`
	Revision       uint64       `json:"revision"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Placeholders   []string     `json:"placeholders"`
}

// =============================================================================
// STORE
// =============================================================================

// Store holds the current template. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	current *Snapshot
	logger  *zap.Logger
}

// NewStore creates an empty store backed by path. Call Load to read an
// existing template.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns where the template is stored.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Load reads the template from disk. A missing file leaves the store empty
// and is not an error. When the configured file is missing but a sibling
// with the other template extension exists (left by an upload that changed
// the format), that file is used.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range candidates(s.path) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}

		format, err := check(path, data)
		if err != nil {
			return fmt.Errorf("template %s: %w", path, err)
		}

		info, _ := os.Stat(path)
		updated := time.Now()
		if info != nil {
			updated = info.ModTime()
		}

		s.path = path
		s.current = &Snapshot{Path: path, Format: format, Content: data, Revision: 1, UpdatedAt: updated}
		s.logger.Info("template loaded",
			zap.String("path", path),
			zap.String("format", string(format)),
			zap.Int("bytes", len(data)))
		return nil
	}

	s.logger.Warn("no template installed", zap.String("path", s.path))
	return nil
}

// Snapshot returns the current revision.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Snapshot{}, ErrTemplateNotFound
	}
	return *s.current, nil
}

// Info describes the current revision.
func (s *Store) Info() (Info, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return Info{}, err
	}
	return Describe(snap)
}

// Describe decodes snap and reports its structure.
func Describe(snap Snapshot) (Info, error) {
	doc, err := snap.Open()
	if err != nil {
		return Info{}, err
	}
	return Info{
		ParagraphCount: len(doc.Blocks()),
		TableCount:     len(doc.Tables()),
		SectionCount:   doc.Sections(),
		TemplatePath:   snap.Path,
		Format:         snap.Format,
		Revision:       snap.Revision,
		UpdatedAt:      snap.UpdatedAt,
		Placeholders:   filler.Placeholders(doc),
	}, nil
}

// Replace validates data and installs it as the new template. On any error
// the previous template stays in place, on disk and in memory.
func (s *Store) Replace(filename string, data []byte) (Snapshot, error) {
	format, err := check(filename, data)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path
	if filepath.Ext(path) != format.Ext() {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + format.Ext()
	}

	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("failed to store template: %w", err)
	}

	// The superseded file would shadow the new one on the next Load.
	if path != s.path {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove superseded template", zap.String("path", s.path), zap.Error(err))
		}
	}

	var revision uint64 = 1
	if s.current != nil {
		revision = s.current.Revision + 1
	}

	content := make([]byte, len(data))
	copy(content, data)

	s.path = path
	s.current = &Snapshot{Path: path, Format: format, Content: content, Revision: revision, UpdatedAt: time.Now()}
	s.logger.Info("template replaced",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Uint64("revision", revision))
	return *s.current, nil
}

// check validates a template's name, signature and content.
func check(filename string, data []byte) (types.Format, error) {
	format, ok := types.FormatFromExt(filename)
	if !ok || (format != types.FormatDOCX && format != types.FormatXLSX) {
		return "", ErrBadExtension
	}

	sniffed, err := document.Sniff(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormatMismatch, err)
	}
	if sniffed != format {
		return "", fmt.Errorf("%w: %s content in a %s file", ErrFormatMismatch, sniffed, format)
	}

	if _, err := document.Open(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return format, nil
}

// candidates lists path followed by its siblings with the other template
// extensions.
func candidates(path string) []string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	out := []string{path}
	for _, f := range []types.Format{types.FormatDOCX, types.FormatXLSX} {
		if alt := base + f.Ext(); alt != path {
			out = append(out, alt)
		}
	}
	return out
}
