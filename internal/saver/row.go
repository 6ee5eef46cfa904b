package saver

import (
	"fmt"
	"time"

	"trend-data/internal/model"
)

const (
	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02 15:04"
)

// columns is the fixed snapshot column order.
var columns = []string{
	"date", "open", "close", "high", "low", "volume",
	"turnover", "amplitude", "pct_change", "change_amount", "turnover_rate",
}

// Row is the persisted form of a bar (CSV/Parquet/JSON).
type Row struct {
	Date         string  `json:"date" parquet:"date"`
	Open         float64 `json:"open" parquet:"open"`
	Close        float64 `json:"close" parquet:"close"`
	High         float64 `json:"high" parquet:"high"`
	Low          float64 `json:"low" parquet:"low"`
	Volume       float64 `json:"volume" parquet:"volume"`
	Turnover     float64 `json:"turnover" parquet:"turnover"`
	Amplitude    float64 `json:"amplitude" parquet:"amplitude"`
	PctChange    float64 `json:"pct_change" parquet:"pct_change"`
	ChangeAmount float64 `json:"change_amount" parquet:"change_amount"`
	TurnoverRate float64 `json:"turnover_rate" parquet:"turnover_rate"`
}

func formatDate(t time.Time) string {
	if t.Hour() != 0 || t.Minute() != 0 {
		return t.Format(hourLayout)
	}
	return t.Format(dayLayout)
}

func parseDate(s string) (time.Time, error) {
	layout := dayLayout
	if len(s) > len(dayLayout) {
		layout = hourLayout
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot date %q: %w", s, err)
	}
	return t, nil
}

func toRows(bars []model.Bar) []Row {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Date: formatDate(b.Date), Open: b.Open, Close: b.Close, High: b.High, Low: b.Low,
			Volume: b.Volume, Turnover: b.Turnover, Amplitude: b.Amplitude,
			PctChange: b.PctChange, ChangeAmount: b.ChangeAmount, TurnoverRate: b.TurnoverRate,
		}
	}
	return rows
}

func fromRows(rows []Row) ([]model.Bar, error) {
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		t, err := parseDate(r.Date)
		if err != nil {
			return nil, err
		}
		bars[i] = model.Bar{
			Date: t, Open: r.Open, Close: r.Close, High: r.High, Low: r.Low,
			Volume: r.Volume, Turnover: r.Turnover, Amplitude: r.Amplitude,
			PctChange: r.PctChange, ChangeAmount: r.ChangeAmount, TurnoverRate: r.TurnoverRate,
		}
	}
	return bars, nil
}
