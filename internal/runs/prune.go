package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/database"
)

// Prune deletes terminal run records older than the retention window. When
// archiveDir is non-empty the pruned records are first written to a gzip
// archive there; the delete only happens after the archive is on disk.
// Returns the number of records removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration, archiveDir string) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention)

	old, err := s.listBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(old) == 0 {
		return 0, nil
	}

	if archiveDir != "" {
		if err := writeArchive(archiveDir, old); err != nil {
			return 0, fmt.Errorf("archiving pruned runs: %w", err)
		}
	}

	err = s.db.Transaction(ctx, func(tx *database.Tx) error {
		for _, rec := range old {
			query, args := database.NewDelete("runs").Where("id", rec.ID).Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("deleting run %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Int("pruned", len(old)).
		Time("cutoff", cutoff).
		Msg("Pruned old run records")
	return len(old), nil
}

// listBefore returns terminal records that started before the cutoff.
func (s *Store) listBefore(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	q := database.NewQuery("runs").
		Select(runColumns...).
		Filter("started_at", database.OpLt, cutoff.Format(time.RFC3339)).
		Filter("status", database.OpNe, string(StatusRunning)).
		OrderBy("started_at")

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying prunable runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prunable run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// writeArchive stores records as a timestamped gzip JSON file.
func writeArchive(dir string, records []*Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	name := fmt.Sprintf("runs-%s.json.gz", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			gz.Close()
			return fmt.Errorf("encoding archived run: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing archive: %w", err)
	}

	log.Info().Str("path", path).Int("records", len(records)).Msg("Wrote run archive")
	return nil
}
