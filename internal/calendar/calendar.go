package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CST is the exchange wall clock (UTC+8).
var CST = time.FixedZone("CST", 8*3600)

// Session close in CST.
const (
	CloseHour   = 15
	CloseMinute = 0
)

// Oracle answers whether a calendar date is a trading day.
type Oracle interface {
	IsTradingDay(t time.Time) bool
}

// Exchange is a weekday + holiday-table calendar. Dates are compared by their
// year/month/day fields, whatever location they carry.
type Exchange struct {
	holidays map[string]bool
}

// NewXSHG returns the Shanghai exchange calendar with the built-in holiday table
// plus any extra dates given.
func NewXSHG(extra ...string) *Exchange {
	e := &Exchange{holidays: make(map[string]bool, len(xshgHolidays)+len(extra))}
	for _, d := range xshgHolidays {
		e.holidays[d] = true
	}
	for _, d := range extra {
		e.holidays[d] = true
	}
	return e
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsHoliday reports whether t is a listed exchange holiday.
func (e *Exchange) IsHoliday(t time.Time) bool {
	return e.holidays[dateKey(t)]
}

// IsTradingDay returns true if t is Mon–Fri and not a holiday.
func (e *Exchange) IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !e.IsHoliday(t)
}

// PreviousTradingDay returns the closest trading day strictly before t.
func PreviousTradingDay(o Oracle, t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for i := 0; i < 30; i++ {
		if o.IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDay returns t when it is a trading day, else the closest one before it.
func LastTradingDay(o Oracle, t time.Time) time.Time {
	if o.IsTradingDay(t) {
		return t
	}
	return PreviousTradingDay(o, t)
}

// NextClose returns the next session close at or after now (in CST), skipping
// non-trading days.
func NextClose(o Oracle, now time.Time) time.Time {
	cst := now.In(CST)
	d := time.Date(cst.Year(), cst.Month(), cst.Day(), CloseHour, CloseMinute, 0, 0, CST)
	for i := 0; i < 30; i++ {
		if !d.Before(cst) && o.IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return d
}

type holidaysFile struct {
	Holidays []string `yaml:"holidays"`
}

// LoadHolidays reads extra closure dates (YYYY-MM-DD) from a YAML file:
//
//	holidays:
//	  - 2027-01-01
func LoadHolidays(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holidays: %w", err)
	}
	var f holidaysFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}
	for _, d := range f.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
	}
	return f.Holidays, nil
}
