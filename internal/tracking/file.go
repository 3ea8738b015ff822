package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// DefaultFileName is the tracking file written into the output directory.
const DefaultFileName = "submitted_jobs.json"

// FileTracker keeps records as a JSON array in one local file.
type FileTracker struct {
	path string
}

var _ Tracker = (*FileTracker)(nil)

// NewFileTracker returns a tracker for dir/DefaultFileName.
func NewFileTracker(dir string) *FileTracker {
	return &FileTracker{path: filepath.Join(dir, DefaultFileName)}
}

// Path returns the tracking file location.
func (t *FileTracker) Path() string { return t.path }

// Save writes records through a temporary file and rename so a crash never
// leaves a truncated tracking file.
func (t *FileTracker) Save(ctx context.Context, records []JobRecord) error {
	if records == nil {
		records = []JobRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job records: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("create temp tracking file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("replace %s: %w", t.path, err)
	}

	log.Debug().Str("path", t.path).Int("jobs", len(records)).Msg("Tracking file written")
	return nil
}

// Load reads the tracking file. A missing file is returned as an error
// wrapping fs.ErrNotExist.
func (t *FileTracker) Load(ctx context.Context) ([]JobRecord, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("read tracking file: %w", err)
	}
	var records []JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", t.path, err)
	}
	return records, nil
}
