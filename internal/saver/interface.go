package saver

import (
	"errors"
	"fmt"
	"strings"

	"trend-data/internal/barstore"
	"trend-data/internal/model"
)

// SnapshotStore persists one table per (instrument, granularity).
// High-level code (crawl) depends on this interface only; main injects the implementation.
type SnapshotStore interface {
	// Load returns the bars of the snapshot, oldest first. A missing, empty or
	// malformed snapshot yields a *StaleSnapshotError.
	Load(code string, g model.Granularity) ([]model.Bar, error)
	// Save replaces the snapshot wholesale.
	Save(code string, g model.Granularity, bars []model.Bar) error
	Extension() string
}

// StaleSnapshotError reports a snapshot that cannot seed a store. Callers start fresh.
type StaleSnapshotError struct {
	Code        string
	Granularity model.Granularity
	Err         error
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("stale snapshot %s %s: %v", e.Code, e.Granularity, e.Err)
}

func (e *StaleSnapshotError) Unwrap() error { return e.Err }

var errEmptySnapshot = errors.New("empty snapshot")

// NewSnapshotStore creates implementation by format (csv, parquet, json, sqlite).
// dir is the snapshot folder; sqlite keeps a single database file inside it.
func NewSnapshotStore(format, dir string) (SnapshotStore, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return NewFileStore(dir, CSVCodec{}), nil
	case "parquet":
		return NewFileStore(dir, ParquetCodec{}), nil
	case "json":
		return NewFileStore(dir, JSONCodec{}), nil
	case "sqlite":
		return OpenSQLite(dir)
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q (use: csv, parquet, json, sqlite)", format)
	}
}

// LoadStore seeds a Bar Store from the snapshots of gs. Stale snapshots become the
// empty marker; an unordered snapshot is an error.
func LoadStore(ss SnapshotStore, code string, gs []model.Granularity) (*barstore.Store, error) {
	st := barstore.New()
	for _, g := range gs {
		bars, err := ss.Load(code, g)
		var stale *StaleSnapshotError
		if errors.As(err, &stale) {
			st.MarkEmpty(g)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := st.Replace(g, bars); err != nil {
			return nil, fmt.Errorf("snapshot %s %s: %w", code, g, err)
		}
	}
	return st, nil
}

// SaveStore writes every loaded granularity of st among gs.
func SaveStore(ss SnapshotStore, code string, st *barstore.Store, gs []model.Granularity) error {
	for _, g := range gs {
		if !st.Loaded(g) {
			continue
		}
		if err := ss.Save(code, g, st.Get(g)); err != nil {
			return fmt.Errorf("save %s %s: %w", code, g, err)
		}
	}
	return nil
}
