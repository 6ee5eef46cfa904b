package barstore

import (
	"fmt"
	"time"

	"trend-data/internal/model"
)

// OutOfOrderError reports a bar whose date is not strictly after the previous one.
// It is never corrected silently: the store for that granularity is left untouched.
type OutOfOrderError struct {
	Granularity model.Granularity
	Last        time.Time
	Got         time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out of order %s bar: %s is not after %s",
		e.Granularity, e.Got.Format("2006-01-02 15:04"), e.Last.Format("2006-01-02 15:04"))
}

// Series is an ordered run of bars of one granularity.
type Series []model.Bar

// Clone returns an independent copy.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// DropLast returns s without its last bar. The last cached bar may be an unfinished
// period, so it is always refetched.
func (s Series) DropLast() Series {
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}

// Before returns the prefix of s dated before the calendar day of day. Intraday bars of
// that day are dropped with it.
func (s Series) Before(day time.Time) Series {
	day = model.DayOf(day)
	n := len(s)
	for n > 0 && !s[n-1].Day().Before(day) {
		n--
	}
	return s[:n]
}

// Concat returns s followed by bars, or an OutOfOrderError when the result would not be
// strictly increasing. s is not modified.
func (s Series) Concat(g model.Granularity, bars ...model.Bar) (Series, error) {
	next := make(Series, 0, len(s)+len(bars))
	next = append(next, s...)
	next = append(next, bars...)
	if err := next[max(len(s)-1, 0):].Validate(g); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate checks that dates are strictly increasing.
func (s Series) Validate(g model.Granularity) error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return &OutOfOrderError{Granularity: g, Last: s[i-1].Date, Got: s[i].Date}
		}
	}
	return nil
}

// Store holds the series of one instrument. A granularity missing from the map was never
// loaded; a present one with zero bars is the explicit empty marker.
//
// A Store is owned by a single updater for a run and is not safe for concurrent use.
type Store struct {
	series map[model.Granularity]Series
}

// New creates a store with nothing loaded.
func New() *Store {
	return &Store{series: make(map[model.Granularity]Series)}
}

// Loaded reports whether g was loaded or written, empty or not.
func (s *Store) Loaded(g model.Granularity) bool {
	_, ok := s.series[g]
	return ok
}

// IsEmpty reports whether g holds no bars (never loaded or empty marker).
func (s *Store) IsEmpty(g model.Granularity) bool {
	return len(s.series[g]) == 0
}

// Len returns the number of bars of g.
func (s *Store) Len(g model.Granularity) int {
	return len(s.series[g])
}

// Get returns a copy of the series of g.
func (s *Store) Get(g model.Granularity) Series {
	return s.series[g].Clone()
}

// Last returns the most recent bar of g; ok is false for the empty marker.
func (s *Store) Last(g model.Granularity) (model.Bar, bool) {
	ser := s.series[g]
	if len(ser) == 0 {
		return model.Bar{}, false
	}
	return ser[len(ser)-1], true
}

// Append extends g with bars dated strictly after the current last bar.
// Nothing is written when any bar is out of order.
func (s *Store) Append(g model.Granularity, bars ...model.Bar) error {
	next, err := s.series[g].Concat(g, bars...)
	if err != nil {
		return err
	}
	s.series[g] = next
	return nil
}

// Replace swaps the whole series of g. Used on load and on realignment.
func (s *Store) Replace(g model.Granularity, bars Series) error {
	if err := bars.Validate(g); err != nil {
		return err
	}
	s.series[g] = append(Series{}, bars...)
	return nil
}

// MarkEmpty installs the empty marker for g.
func (s *Store) MarkEmpty(g model.Granularity) {
	s.series[g] = Series{}
}

// Slice returns the bars of g dated within [from, to], both inclusive.
func (s *Store) Slice(g model.Granularity, from, to time.Time) Series {
	var out Series
	for _, b := range s.series[g] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Truncate returns a new store with only the bars whose calendar day is on or before asOf.
// Granularities that were not loaded stay unloaded.
func (s *Store) Truncate(asOf time.Time) *Store {
	day := model.DayOf(asOf)
	out := New()
	for g, ser := range s.series {
		n := len(ser)
		for n > 0 && ser[n-1].Day().After(day) {
			n--
		}
		out.series[g] = ser[:n].Clone()
		if out.series[g] == nil {
			out.series[g] = Series{}
		}
	}
	return out
}
