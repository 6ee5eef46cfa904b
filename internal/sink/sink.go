package sink

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no signal exists for the request.
var ErrNotFound = errors.New("signal not found")

// Publisher receives the signals of one report date.
type Publisher interface {
	Publish(ctx context.Context, date time.Time, es []Entry) error
}

// Source serves published signals.
type Source interface {
	Latest(ctx context.Context) (time.Time, []Entry, error)
	Lookup(ctx context.Context, code string) (Entry, error)
}

// ReportSource serves signals from the most recent CSV report in Dir.
type ReportSource struct {
	Dir string
}

func (s ReportSource) Latest(_ context.Context) (time.Time, []Entry, error) {
	path, date, err := LatestReport(s.Dir)
	if err != nil {
		return time.Time{}, nil, err
	}
	es, err := ReadReport(path)
	return date, es, err
}

func (s ReportSource) Lookup(ctx context.Context, code string) (Entry, error) {
	_, es, err := s.Latest(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range es {
		if e.Code == code {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}
