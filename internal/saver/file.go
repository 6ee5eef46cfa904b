package saver

import (
	"fmt"
	"os"
	"path/filepath"

	"trend-data/internal/model"
)

// Codec reads and writes rows in one file format.
type Codec interface {
	Save(rows []Row, path string) error
	Load(path string) ([]Row, error)
	Extension() string
}

// FileStore keeps each snapshot in {dir}/{code}_{granularity}.{ext}.
type FileStore struct {
	Dir   string
	Codec Codec
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(dir string, c Codec) *FileStore {
	return &FileStore{Dir: dir, Codec: c}
}

func (s *FileStore) Extension() string { return s.Codec.Extension() }

// Path returns the snapshot path of (code, g).
func (s *FileStore) Path(code string, g model.Granularity) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.%s", code, g, s.Codec.Extension()))
}

func (s *FileStore) Load(code string, g model.Granularity) ([]model.Bar, error) {
	rows, err := s.Codec.Load(s.Path(code, g))
	if err == nil && len(rows) == 0 {
		err = errEmptySnapshot
	}
	if err != nil {
		return nil, &StaleSnapshotError{Code: code, Granularity: g, Err: err}
	}
	bars, err := fromRows(rows)
	if err != nil {
		return nil, &StaleSnapshotError{Code: code, Granularity: g, Err: err}
	}
	return bars, nil
}

// Save writes to a temporary file first and renames it over the snapshot.
func (s *FileStore) Save(code string, g model.Granularity, bars []model.Bar) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	p := s.Path(code, g)
	tmp := p + ".tmp"
	if err := s.Codec.Save(toRows(bars), tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}
