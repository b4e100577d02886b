package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"voicescribe/internal/domain"
)

// document is the on-disk shape. completed_files is derived from files on
// every save and kept only for wire compatibility with older readers; it is
// never authoritative on load.
type document struct {
	Files          []domain.FileRecord `json:"files"`
	CompletedFiles []domain.FileID     `json:"completed_files"`
}

// Store persists the completed-file subset as a single JSON document.
// Saves are atomic (write-to-temp, rename), so a crash mid-save leaves the
// previous document intact.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

// Load reads the history document. A missing file yields an empty result;
// malformed content is logged and treated as empty, never as a fatal error.
func (s *Store) Load() ([]domain.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("history file is malformed, starting empty",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return nil, nil
	}
	return doc.Files, nil
}

// Save atomically replaces the document with the given records.
func (s *Store) Save(records []domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(records)
}

// Clear truncates the document to its empty form.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(nil)
}

func (s *Store) writeLocked(records []domain.FileRecord) error {
	doc := document{
		Files:          records,
		CompletedFiles: make([]domain.FileID, 0, len(records)),
	}
	if doc.Files == nil {
		doc.Files = []domain.FileRecord{}
	}
	for _, rec := range records {
		if rec.Status == domain.FileCompleted {
			doc.CompletedFiles = append(doc.CompletedFiles, rec.ID)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
