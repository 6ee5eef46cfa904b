package eastmoney

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trend-data/internal/model"
)

// klineResponse is the subset of the kline/get payload we use.
// Data is null when the secid is unknown to the vendor, and is decoded separately.
type klineResponse struct {
	RC   int             `json:"rc"`
	Data json.RawMessage `json:"data"`
}

type klineData struct {
	Code   string   `json:"code"`
	Market int      `json:"market"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

// Column order of one kline row (fields2 f51..f61).
const (
	colDate = iota
	colOpen
	colClose
	colHigh
	colLow
	colVolume
	colTurnover
	colAmplitude
	colPctChange
	colChangeAmount
	colTurnoverRate
	numCols
)

// parseKline converts "2024-01-02,10.0,10.5,10.8,9.9,12345,1.2e7,9.0,5.0,0.5,1.23" to a Bar.
// Hour rows carry a time: "2024-01-02 10:30".
func parseKline(row string) (model.Bar, error) {
	f := strings.Split(row, ",")
	if len(f) < numCols {
		return model.Bar{}, fmt.Errorf("kline row has %d fields, want %d: %q", len(f), numCols, row)
	}
	date, err := parseDate(f[colDate])
	if err != nil {
		return model.Bar{}, err
	}
	vals := make([]float64, numCols)
	for i := colOpen; i < numCols; i++ {
		s := strings.TrimSpace(f[i])
		if s == "" || s == "-" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Date:         date,
		Open:         vals[colOpen],
		Close:        vals[colClose],
		High:         vals[colHigh],
		Low:          vals[colLow],
		Volume:       vals[colVolume],
		Turnover:     vals[colTurnover],
		Amplitude:    vals[colAmplitude],
		PctChange:    vals[colPctChange],
		ChangeAmount: vals[colChangeAmount],
		TurnoverRate: vals[colTurnoverRate],
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := "2006-01-02"
	if len(s) > len(layout) {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("kline date %q: %w", s, err)
	}
	return t, nil
}
