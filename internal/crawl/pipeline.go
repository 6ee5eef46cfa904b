package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trend-data/internal/calendar"
	"trend-data/internal/instrument"
	"trend-data/internal/refresh"
	"trend-data/internal/saver"
	"trend-data/internal/signal"
	"trend-data/internal/sink"
)

// Pipeline is the per-instrument unit of work: load the snapshots, refresh them, save
// them back and classify the result as of the report day and the two trading days before.
type Pipeline struct {
	Snapshots  saver.SnapshotStore
	Updater    *refresh.Updater
	Classifier *signal.Classifier
	Calendar   calendar.Oracle
}

// Outcome is what Process reports for one instrument.
type Outcome struct {
	Identity  instrument.Identity
	Entry     sink.Entry
	Signal    signal.Signal
	Bars      int
	Realigned bool
}

// Process runs the pipeline for id. With offline set the vendor is not contacted and
// snapshots are classified as stored. asOf is the report day.
func (p *Pipeline) Process(ctx context.Context, id instrument.Identity, req refresh.Request, asOf time.Time, offline bool, logger *slog.Logger) (Outcome, error) {
	gs := p.Updater.Granularities()
	st, err := saver.LoadStore(p.Snapshots, id.Code, gs)
	if err != nil {
		return Outcome{Identity: id}, fmt.Errorf("load %s: %w", id.Code, err)
	}

	out := Outcome{Identity: id}
	if !offline {
		res, err := p.Updater.Refresh(ctx, id, st, req)
		out.Identity = res.Identity
		out.Realigned = res.Realigned
		for _, n := range res.Fetched {
			out.Bars += n
		}
		if err != nil {
			return out, err
		}
		if err := saver.SaveStore(p.Snapshots, id.Code, st, gs); err != nil {
			return out, fmt.Errorf("save %s: %w", id.Code, err)
		}
		logger.Debug("snapshots saved", "code", id.Code, "bars", out.Bars, "realigned", out.Realigned)
	}

	prev := calendar.PreviousTradingDay(p.Calendar, asOf)
	prev2 := calendar.PreviousTradingDay(p.Calendar, prev)
	cells := make([]sink.Cell, 3)
	for i, day := range []time.Time{asOf, prev, prev2} {
		sig, err := p.Classifier.Classify(st, day)
		if errors.Is(err, signal.ErrNoHistory) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("classify %s as of %s: %w", id.Code, day.Format("2006-01-02"), err)
		}
		if i == 0 {
			out.Signal = sig
		}
		cells[i] = sink.NewCell(sig.Code)
	}
	if !cells[0].Valid {
		return out, fmt.Errorf("classify %s as of %s: %w", id.Code, asOf.Format("2006-01-02"), signal.ErrNoHistory)
	}

	out.Entry = sink.Entry{
		Date:      asOf,
		Code:      out.Identity.Code,
		Name:      out.Identity.Name,
		URL:       out.Identity.QuotationURL(),
		Signal:    cells[0],
		Previous:  cells[1],
		Previous2: cells[2],
		Rule:      out.Signal.Rule,
	}
	return out, nil
}
