package instrument

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a list of instruments from a file.
// Supported formats:
//   - .txt  : one code per line, optional name after whitespace, '#' lines are comments
//   - .json : JSON array of codes, or of {"code": ..., "name": ...} objects
//   - .csv  : first column code, optional second column name, header row skipped
func LoadFile(path string) ([]Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	var entries [][2]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		entries, err = parseJSON(f)
	case ".csv":
		entries, err = parseCSV(f)
	case ".txt":
		entries, err = parseText(f)
	default:
		return nil, fmt.Errorf("unsupported instrument file extension %q (use .txt, .json or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	// Drop invalid codes and duplicates
	seen := make(map[string]bool)
	var out []Identity
	for _, e := range entries {
		id, err := New(e[0])
		if err != nil {
			slog.Warn("skip instrument", "code", e[0], "error", err)
			continue
		}
		if seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		id.Name = strings.TrimSpace(e[1])
		out = append(out, id)
	}
	slog.Info("loaded instruments from file", "count", len(out), "path", path)
	return out, nil
}

// ParseCodes builds identities from a comma separated list.
func ParseCodes(s string) ([]Identity, error) {
	var out []Identity
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		id, err := New(c)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseText(r io.Reader) ([][2]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		name := ""
		if len(fields) > 1 {
			name = strings.Join(fields[1:], " ")
		}
		out = append(out, [2]string{fields[0], name})
	}
	return out, nil
}

func parseJSON(r io.Reader) ([][2]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var codes []string
	if err := json.Unmarshal(b, &codes); err == nil {
		out := make([][2]string, len(codes))
		for i, c := range codes {
			out[i] = [2]string{c, ""}
		}
		return out, nil
	}
	var objs []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &objs); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	out := make([][2]string, len(objs))
	for i, o := range objs {
		out[i] = [2]string{o.Code, o.Name}
	}
	return out, nil
}

func parseCSV(r io.Reader) ([][2]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	var out [][2]string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		name := ""
		if len(row) > 1 {
			name = row[1]
		}
		out = append(out, [2]string{strings.TrimPrefix(row[0], "\ufeff"), name})
	}
	return out, nil
}
