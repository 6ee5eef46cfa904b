package crawl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	successReportFile = ".lastrun.success.json"
	failedReportFile  = ".lastrun.failed.json"
)

type failedEntry struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type successReport struct {
	RunID string   `json:"run_id,omitempty"`
	Codes []string `json:"codes"`
}

type failedReport struct {
	RunID   string        `json:"run_id,omitempty"`
	Entries []failedEntry `json:"failed"`
}

// writeRunReport replaces both report files; a list that is empty removes its file so a
// report never describes an older run.
func writeRunReport(dir, runID string, successList []string, failedList []failedEntry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	p := filepath.Join(dir, successReportFile)
	if len(successList) > 0 {
		if err := writeJSON(p, successReport{RunID: runID, Codes: successList}); err != nil {
			return err
		}
		slog.Info("report wrote success", "path", p, "codes", len(successList))
	} else if err := removeIfExists(p); err != nil {
		return err
	}

	p = filepath.Join(dir, failedReportFile)
	if len(failedList) > 0 {
		if err := writeJSON(p, failedReport{RunID: runID, Entries: failedList}); err != nil {
			return err
		}
		slog.Info("report wrote failed", "path", p, "count", len(failedList))
	} else if err := removeIfExists(p); err != nil {
		return err
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func joinFailedReasons(failedList []failedEntry) string {
	if len(failedList) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range failedList {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Code)
		b.WriteString(": ")
		b.WriteString(f.Reason)
		if i >= 4 && len(failedList) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failedList)-5))
			break
		}
	}
	return b.String()
}
