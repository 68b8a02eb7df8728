package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements Store on the filesystem.
// Records are stored as <baseDir>/runs/<id>/record.json.
//
// Writes go through a temp file and rename, so no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) runsDir() string {
	return filepath.Join(fs.baseDir, "runs")
}

func (fs *FSStore) runDir(id string) string {
	return filepath.Join(fs.runsDir(), id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.runDir(id), "record.json")
}

// SaveRecord atomically saves rec.
func (fs *FSStore) SaveRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.runDir(rec.ID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	finalPath := fs.recordPath(rec.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Record saved", "id", rec.ID, "path", finalPath)
	return nil
}

// LoadRecord retrieves the record with the given ID.
func (fs *FSStore) LoadRecord(id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}

	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns every readable record, oldest first.
func (fs *FSStore) ListRecords() ([]Record, error) {
	entries, err := os.ReadDir(fs.runsDir())
	if os.IsNotExist(err) {
		return []Record{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	records := []Record{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rec, err := fs.LoadRecord(entry.Name())
		if err != nil {
			if _, ok := err.(*NotFoundError); !ok {
				slog.Warn("Failed to load record for listing", "id", entry.Name(), "error", err)
			}
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	slog.Debug("Listed records", "count", len(records))
	return records, nil
}

// DeleteRecord removes the record directory.
func (fs *FSStore) DeleteRecord(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	dir := fs.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Record deleted", "id", id)
	return nil
}

var _ Store = (*FSStore)(nil)
