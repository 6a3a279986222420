package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// FileStore persists the table as an indented JSON document.
type FileStore struct {
	path   string
	logger *log.Logger
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string, logger *log.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load reads the document. Missing, empty and malformed files yield an empty table;
// any other read error is returned.
func (s *FileStore) Load(ctx context.Context) (Table, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Printf("no state file at %s, starting empty", s.path)
		return Table{}, nil
	}
	if err != nil {
		s.logger.Printf("warning: read state file %s: %v", s.path, err)
		return Table{}, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		s.logger.Printf("no users in state file %s", s.path)
		return Table{}, nil
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		s.logger.Printf("warning: malformed state file %s, starting empty: %v", s.path, err)
		return Table{}, nil
	}
	return t, nil
}

// Save overwrites the document with t. The write goes through a temp file and a
// rename so readers never see a partial document.
func (s *FileStore) Save(ctx context.Context, t Table) error {
	if t.Users == nil {
		t.Users = []Entry{}
	}
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per call.
func (s *FileStore) Close() error {
	return nil
}
