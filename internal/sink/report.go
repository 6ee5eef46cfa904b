package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cell is one published signal code. Valid is false when no history existed as of that day.
type Cell struct {
	Code  int
	Valid bool
}

// NewCell returns a valid cell.
func NewCell(code int) Cell { return Cell{Code: code, Valid: true} }

func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.Itoa(c.Code)
}

func (c Cell) sortKey() int {
	if !c.Valid {
		return math.MinInt
	}
	return c.Code
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(c.Code)), nil
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*c = Cell{}
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("signal code %s: %w", s, err)
	}
	*c = NewCell(n)
	return nil
}

func parseCell(s string) (Cell, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cell{}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Cell{}, err
	}
	return NewCell(n), nil
}

// Entry is one instrument row of a signal report.
type Entry struct {
	Date         time.Time `json:"date"`
	Code         string    `json:"code"`
	Name         string    `json:"name,omitempty"`
	URL          string    `json:"url"`
	Signal       Cell      `json:"signal"`
	Previous     Cell      `json:"previous"`
	Previous2    Cell      `json:"previous_2"`
	Rule         string    `json:"rule,omitempty"`
	Note         string    `json:"note,omitempty"`
	PreviousNote string    `json:"previous_note,omitempty"`
}

var reportHeader = []string{"code", "name", "url", "signal", "previous", "previous_2", "rule", "note", "previous_note"}

const (
	reportPrefix     = "signals_"
	reportExt        = ".csv"
	reportDateLayout = "20060102"
)

// SortEntries orders by signal, then previous signal, then code, all descending.
func SortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Signal.sortKey() != b.Signal.sortKey() {
			return a.Signal.sortKey() > b.Signal.sortKey()
		}
		if a.Previous.sortKey() != b.Previous.sortKey() {
			return a.Previous.sortKey() > b.Previous.sortKey()
		}
		return a.Code > b.Code
	})
}

// CarryNotes copies each instrument's note from the previous report into PreviousNote.
func CarryNotes(es []Entry, prev []Entry) {
	notes := make(map[string]string, len(prev))
	for _, p := range prev {
		notes[p.Code] = p.Note
	}
	for i := range es {
		es[i].PreviousNote = notes[es[i].Code]
	}
}

// ReportPath returns {dir}/signals_YYYYMMDD.csv.
func ReportPath(dir string, date time.Time) string {
	return filepath.Join(dir, reportPrefix+date.Format(reportDateLayout)+reportExt)
}

// WriteReport sorts es and writes the report for date. It returns the file path.
func WriteReport(dir string, date time.Time, es []Entry) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	SortEntries(es)
	path := ReportPath(dir, date)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	_ = w.Write(reportHeader)
	for _, e := range es {
		_ = w.Write([]string{
			e.Code, e.Name, e.URL,
			e.Signal.String(), e.Previous.String(), e.Previous2.String(),
			e.Rule, e.Note, e.PreviousNote,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}

// ReadReport reads a report written by WriteReport. The date comes from the file name.
func ReadReport(path string) ([]Entry, error) {
	date, err := reportDate(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(reportHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	if len(records) == 0 || strings.Join(records[0], ",") != strings.Join(reportHeader, ",") {
		return nil, fmt.Errorf("read report %s: unexpected header", path)
	}
	out := make([]Entry, 0, len(records)-1)
	for _, rec := range records[1:] {
		e := Entry{Date: date, Code: rec[0], Name: rec[1], URL: rec[2], Rule: rec[6], Note: rec[7], PreviousNote: rec[8]}
		for i, dst := range []*Cell{&e.Signal, &e.Previous, &e.Previous2} {
			if *dst, err = parseCell(rec[3+i]); err != nil {
				return nil, fmt.Errorf("read report %s: code %s column %s: %w", path, e.Code, reportHeader[3+i], err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadPreviousReport reads the report of date. A missing report yields nil entries and no error.
func ReadPreviousReport(dir string, date time.Time) ([]Entry, error) {
	es, err := ReadReport(ReportPath(dir, date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return es, err
}

// LatestReport returns the path of the most recent report in dir.
func LatestReport(dir string) (string, time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(dir, reportPrefix+"*"+reportExt))
	if err != nil {
		return "", time.Time{}, err
	}
	var best string
	var bestDate time.Time
	for _, m := range matches {
		d, err := reportDate(filepath.Base(m))
		if err != nil {
			continue
		}
		if best == "" || d.After(bestDate) {
			best, bestDate = m, d
		}
	}
	if best == "" {
		return "", time.Time{}, ErrNotFound
	}
	return best, bestDate, nil
}

func reportDate(name string) (time.Time, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(name, reportPrefix), reportExt)
	d, err := time.Parse(reportDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a signal report name: %s", name)
	}
	return d, nil
}
