package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FileArchive implements Archive using one JSON file per match
type FileArchive struct {
	dir string
}

// NewFileArchive creates a file-based archive rooted at dir
func NewFileArchive(dir string) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

// Record writes rec to <dir>/<session id>.json
func (fa *FileArchive) Record(rec *MatchRecord) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.SessionID == 0 {
		return fmt.Errorf("record has no session id")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}

	// Write through a temp file so readers never see a partial record
	path := fa.getFilePath(rec.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write match record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit match record: %w", err)
	}
	return nil
}

// Load reads the record of session id
func (fa *FileArchive) Load(id uint64) (*MatchRecord, error) {
	data, err := os.ReadFile(fa.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read match record: %w", err)
	}

	var rec MatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
	}
	return &rec, nil
}

// ListAll returns archived session IDs in ascending order
func (fa *FileArchive) ListAll() ([]uint64, error) {
	entries, err := os.ReadDir(fa.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(entry.Name(), ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Exists checks if a record file exists
func (fa *FileArchive) Exists(id uint64) bool {
	_, err := os.Stat(fa.getFilePath(id))
	return err == nil
}

func (fa *FileArchive) getFilePath(id uint64) string {
	return filepath.Join(fa.dir, fmt.Sprintf("%d.json", id))
}
