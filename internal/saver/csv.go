package saver

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CSVCodec stores snapshots as CSV with the fixed column header.
type CSVCodec struct{}

func (CSVCodec) Extension() string { return "csv" }

func (CSVCodec) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Date,
			floatStr(r.Open),
			floatStr(r.Close),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Volume),
			floatStr(r.Turnover),
			floatStr(r.Amplitude),
			floatStr(r.PctChange),
			floatStr(r.ChangeAmount),
			floatStr(r.TurnoverRate),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (CSVCodec) Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	if len(header) != len(columns) || strings.TrimPrefix(header[0], "\ufeff") != columns[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		var v [10]float64
		for j := range v {
			s := strings.TrimSpace(rec[j+1])
			if s == "" {
				continue
			}
			x, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", i+2, columns[j+1], err)
			}
			v[j] = x
		}
		rows = append(rows, Row{
			Date: rec[0], Open: v[0], Close: v[1], High: v[2], Low: v[3], Volume: v[4],
			Turnover: v[5], Amplitude: v[6], PctChange: v[7], ChangeAmount: v[8], TurnoverRate: v[9],
		})
	}
	return rows, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
