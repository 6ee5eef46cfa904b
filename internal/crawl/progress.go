package crawl

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// JournalFile is the realignment journal kept in the data directory.
const JournalFile = ".realigned.json"

// ProgressUpdate is sent when an instrument was rebuilt after a corporate action.
type ProgressUpdate struct {
	Code string
	Date string
}

// LoadJournal returns the last realignment date per instrument code.
func LoadJournal(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return make(map[string]string)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return make(map[string]string)
	}
	return m
}

// RunJournalWriter receives updates and persists them to path (run as goroutine).
// It returns when updates is closed.
func RunJournalWriter(path string, updates <-chan ProgressUpdate) {
	m := LoadJournal(path)
	for u := range updates {
		m[u.Code] = u.Date
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			slog.Warn("journal marshal error", "error", err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			slog.Warn("journal dir error", "error", err)
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			slog.Warn("journal write error", "error", err)
		}
	}
}
