package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nickalie/ddc/internal/core/deploy"
)

const (
	// DefaultHistoryDir is the default directory for the deployment history
	DefaultHistoryDir = ".ddc"

	historyFile = "history.json"
)

// FileHistoryStorage implements deploy.HistoryStorage as a JSON file
type FileHistoryStorage struct {
	baseDir    string
	fileSystem FileSystem
	mu         sync.RWMutex
	entries    []deploy.HistoryEntry
	loaded     bool
}

// NewFileHistoryStorage creates a FileHistoryStorage in the default directory
func NewFileHistoryStorage() *FileHistoryStorage {
	return NewFileHistoryStorageWithPath(DefaultHistoryDir)
}

// NewFileHistoryStorageWithPath creates a FileHistoryStorage in baseDir
func NewFileHistoryStorageWithPath(baseDir string) *FileHistoryStorage {
	return NewFileHistoryStorageWithFS(baseDir, NewFileSystem())
}

// NewFileHistoryStorageWithFS creates a FileHistoryStorage on a custom file system
func NewFileHistoryStorageWithFS(baseDir string, fileSystem FileSystem) *FileHistoryStorage {
	return &FileHistoryStorage{
		baseDir:    baseDir,
		fileSystem: fileSystem,
	}
}

// Record appends an entry and persists the history
func (s *FileHistoryStorage) Record(entry deploy.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.entries = append(s.entries, entry)
	return s.persist()
}

// Last returns the newest entry recorded for targetName
func (s *FileHistoryStorage) Last(targetName string) (*deploy.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Target == targetName {
			entry := s.entries[i]
			return &entry, nil
		}
	}

	return nil, nil
}

// List returns a copy of all entries, oldest first
func (s *FileHistoryStorage) List() ([]deploy.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	return append([]deploy.HistoryEntry(nil), s.entries...), nil
}

// Clear removes all entries and the history file
func (s *FileHistoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.loaded = true

	err := s.fileSystem.RemoveAll(s.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}

	return nil
}

// Path returns the location of the history file
func (s *FileHistoryStorage) Path() string {
	return s.path()
}

func (s *FileHistoryStorage) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	data, err := s.fileSystem.ReadFile(s.path())
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var entries []deploy.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}

	s.entries = entries
	s.loaded = true
	return nil
}

func (s *FileHistoryStorage) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := s.fileSystem.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	if err := s.fileSystem.WriteFile(s.path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

func (s *FileHistoryStorage) path() string {
	return filepath.Join(s.baseDir, historyFile)
}

var _ deploy.HistoryStorage = (*FileHistoryStorage)(nil)
