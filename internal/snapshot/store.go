// Package snapshot persiste el estado entre polls: snapshot de filas,
// baselines y reconciliación contra el bet log.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/sharpline/internal/adapters/filestore"
	"github.com/alejandrodnm/sharpline/internal/domain"
)

// document es el formato en disco del snapshot.
type document struct {
	WrittenAt time.Time            `json:"written_at"`
	Rows      []domain.SnapshotRow `json:"rows"`
}

// Store lee y escribe el snapshot compartido.
type Store struct {
	path string
	opts filestore.Options
}

// NewStore crea un Store sobre path.
func NewStore(path string, opts filestore.Options) *Store {
	return &Store{path: path, opts: opts}
}

// Path devuelve la ruta del snapshot.
func (s *Store) Path() string { return s.path }

// Load devuelve las filas del último snapshot. Un snapshot inexistente es
// un snapshot vacío; uno corrupto es error (ErrCorrupt).
func (s *Store) Load(ctx context.Context) ([]domain.SnapshotRow, error) {
	var doc document
	err := filestore.ReadJSON(ctx, s.path, &doc, s.opts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot.Load: %w", err)
	}
	return doc.Rows, nil
}

// Write reemplaza el snapshot de forma atómica bajo lock.
func (s *Store) Write(ctx context.Context, rows []domain.SnapshotRow, now time.Time) error {
	sorted := make([]domain.SnapshotRow, len(rows))
	copy(sorted, rows)
	sortRows(sorted)

	err := filestore.WithLock(ctx, s.path, s.opts.LockTimeout, func() error {
		return filestore.WriteJSON(s.path, document{WrittenAt: now.UTC(), Rows: sorted})
	})
	if err != nil {
		return fmt.Errorf("snapshot.Write: %w", err)
	}
	return nil
}

// Update hace read-modify-write del snapshot bajo lock. Un snapshot corrupto
// se mueve a *.bad.json y fn recibe un snapshot vacío.
func (s *Store) Update(ctx context.Context, now time.Time, fn func([]domain.SnapshotRow) ([]domain.SnapshotRow, error)) error {
	err := filestore.WithLock(ctx, s.path, s.opts.LockTimeout, func() error {
		var doc document
		opts := s.opts
		opts.ReadRetries = -1
		err := filestore.ReadJSON(ctx, s.path, &doc, opts)
		switch {
		case errors.Is(err, filestore.ErrCorrupt):
			bad, qerr := filestore.Quarantine(s.path)
			if qerr != nil {
				return errors.Join(err, qerr)
			}
			slog.Warn("prior snapshot unreadable, starting fresh", "path", s.path, "quarantine", bad, "err", err)
			doc = document{}
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return err
		}
		rows, err := fn(doc.Rows)
		if err != nil {
			return err
		}
		sortRows(rows)
		return filestore.WriteJSON(s.path, document{WrittenAt: now.UTC(), Rows: rows})
	})
	if err != nil {
		return fmt.Errorf("snapshot.Update: %w", err)
	}
	return nil
}

// sortRows ordena por partido, mercado y lado para diffs estables.
func sortRows(rows []domain.SnapshotRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Key().Key() < rows[j].Key().Key()
	})
}
