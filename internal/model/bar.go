package model

import (
	"fmt"
	"strings"
	"time"
)

// Bar represents one kline period (day/week/month/hour).
// Shared by provider, barstore, saver and the classifier.
type Bar struct {
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	Close        float64   `json:"close"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Volume       float64   `json:"volume"`
	Turnover     float64   `json:"turnover"`
	Amplitude    float64   `json:"amplitude"`
	PctChange    float64   `json:"pct_change"`
	ChangeAmount float64   `json:"change_amount"`
	TurnoverRate float64   `json:"turnover_rate"`
}

// Day returns the bar date truncated to the calendar day.
func (b Bar) Day() time.Time {
	return DayOf(b.Date)
}

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Granularity is the bar period size.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Hour  Granularity = "hour"
)

// Granularities lists every granularity in refresh order. Day goes first because only
// day carries the realignment check.
var Granularities = []Granularity{Day, Week, Month, Hour}

// KLineType returns the vendor period code (klt).
func (g Granularity) KLineType() int {
	switch g {
	case Week:
		return 102
	case Month:
		return 103
	case Hour:
		return 60
	default:
		return 101
	}
}

// ParseGranularity accepts d/w/m/h and the full names.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "day":
		return Day, nil
	case "w", "week":
		return Week, nil
	case "m", "month":
		return Month, nil
	case "h", "hour":
		return Hour, nil
	default:
		return "", fmt.Errorf("unknown granularity %q (use: day, week, month, hour)", s)
	}
}

// Closes extracts the closing prices.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
