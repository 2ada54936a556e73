// Package snapshot persists the normalized table as a flat CSV file so a
// pipeline run can resume without re-fetching raw records.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/normalize"
)

// Store reads and writes one snapshot file. The format is a header row
// followed by one CSV record per normalized row, columns in the fixed order
// probe_id, round_time, hop_index, packet_index, reply_address, rtt; empty
// reply_address and rtt fields are the null markers. load(save(rows)) is
// row-for-row identical to rows.
type Store struct {
	path string
	log  *zap.SugaredLogger
}

func New(path string, log *zap.SugaredLogger) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Exists reports whether a snapshot file is present. Absence is not an
// error; the pipeline then builds the table from raw records.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) Save(rows []normalize.Row) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", s.path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", s.path, err)
	}

	s.log.Infow("snapshot saved", "path", s.path, "rows", len(rows))
	return nil
}

// Load reconstructs the rows from the snapshot file. A missing file
// surfaces as os.ErrNotExist; any structural violation (wrong column
// count, unparseable numeric field) aborts the load with the offending
// row named in the underlying CSV error.
func (s *Store) Load() ([]normalize.Row, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", s.path, err)
	}
	defer file.Close()

	var rows []normalize.Row
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("snapshot %s is corrupt: %w", s.path, err)
	}

	s.log.Infow("snapshot loaded", "path", s.path, "rows", len(rows))
	return rows, nil
}
