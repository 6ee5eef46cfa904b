package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trend-data/internal/barstore"
	"trend-data/internal/calendar"
	"trend-data/internal/instrument"
	"trend-data/internal/model"
	"trend-data/internal/provider"
)

// Observer receives refresh events (metrics).
type Observer interface {
	Fetched(g model.Granularity, bars int)
	Skipped(g model.Granularity, reason string)
	Swapped()
	Realigned()
	NoData(g model.Granularity)
}

type nopObserver struct{}

func (nopObserver) Fetched(model.Granularity, int) {}
func (nopObserver) Skipped(model.Granularity, string) {}
func (nopObserver) Swapped() {}
func (nopObserver) Realigned() {}
func (nopObserver) NoData(model.Granularity) {}

// Result summarises one instrument refresh.
type Result struct {
	// Identity is the identity that produced data; it differs from the input after a
	// successful market-guess swap.
	Identity  instrument.Identity
	Realigned bool
	Fetched   map[model.Granularity]int
	Skipped   map[model.Granularity]string
}

// Updater runs the incremental refresh protocol over a Bar Store.
// It holds no per-instrument state, so one Updater serves every worker.
type Updater struct {
	fetcher       provider.Fetcher
	cal           calendar.Oracle
	detector      Detector
	granularities []model.Granularity
	obs           Observer
	log           *slog.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithGranularities sets which granularities are refreshed. Order is always day, week,
// month, hour whatever the order given.
func WithGranularities(gs ...model.Granularity) UpdaterOption {
	return func(u *Updater) {
		want := make(map[model.Granularity]bool, len(gs))
		for _, g := range gs {
			want[g] = true
		}
		u.granularities = u.granularities[:0]
		for _, g := range model.Granularities {
			if want[g] {
				u.granularities = append(u.granularities, g)
			}
		}
	}
}

// WithObserver installs an event observer.
func WithObserver(o Observer) UpdaterOption {
	return func(u *Updater) {
		if o != nil {
			u.obs = o
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		if l != nil {
			u.log = l
		}
	}
}

// WithDetector overrides the corporate action detector.
func WithDetector(d Detector) UpdaterOption {
	return func(u *Updater) { u.detector = d }
}

// NewUpdater creates an Updater refreshing day, week and month by default.
func NewUpdater(f provider.Fetcher, cal calendar.Oracle, opts ...UpdaterOption) *Updater {
	u := &Updater{
		fetcher:       f,
		cal:           cal,
		detector:      NewDetector(DefaultPricePrecision),
		granularities: []model.Granularity{model.Day, model.Week, model.Month},
		obs:           nopObserver{},
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Granularities returns the refreshed granularities in refresh order.
func (u *Updater) Granularities() []model.Granularity {
	return append([]model.Granularity(nil), u.granularities...)
}

// run is the state of one instrument refresh. The realignment flag lives here and
// dies with the run.
type run struct {
	id         instrument.Identity
	realigning bool
	noData     []model.Granularity
	res        Result
}

// Refresh brings every configured granularity of st up to req.End.
//
// Day goes first with realignment detection. When the detector fires, the day series is
// replaced by the empty marker and rebuilt from the full requested range, and the
// remaining granularities are rebuilt from the full range as well.
//
// Network and parse failures are returned as is and leave the remaining granularities
// untouched. Granularities without data under either market guess get the empty marker
// and are reported together as a *NoDataError after every granularity was attempted.
// An out-of-order vendor response yields a *barstore.OutOfOrderError.
func (u *Updater) Refresh(ctx context.Context, id instrument.Identity, st *barstore.Store, req Request) (Result, error) {
	r := &run{
		id: id,
		res: Result{
			Fetched: make(map[model.Granularity]int),
			Skipped: make(map[model.Granularity]string),
		},
	}
	for _, g := range u.granularities {
		if err := ctx.Err(); err != nil {
			r.res.Identity = r.id
			return r.res, err
		}
		realign, err := u.refreshOne(ctx, r, st, g, req, g == model.Day)
		if err == nil && realign {
			r.realigning = true
			r.res.Realigned = true
			u.obs.Realigned()
			st.MarkEmpty(model.Day)
			u.log.Info("realignment detected, rebuilding", "code", id.Code, "from", req.Begin.Format("2006-01-02"))
			_, err = u.refreshOne(ctx, r, st, g, req, false)
		}
		if err != nil {
			r.res.Identity = r.id
			return r.res, err
		}
	}
	r.res.Identity = r.id
	if len(r.noData) > 0 {
		return r.res, &NoDataError{Code: id.Code, Granularities: r.noData}
	}
	return r.res, nil
}

// refreshOne updates one granularity. It reports true when detection is on and the
// detector fired; st is left untouched in that case.
func (u *Updater) refreshOne(ctx context.Context, r *run, st *barstore.Store, g model.Granularity, req Request, detect bool) (bool, error) {
	last, hasLast := st.Last(g)
	plan := PlanWindow(req, last.Date, hasLast, r.realigning, u.cal)
	if plan.Skip {
		r.res.Skipped[g] = plan.Reason
		u.obs.Skipped(g, plan.Reason)
		u.log.Debug("skip fetch", "code", r.id.Code, "granularity", g, "reason", plan.Reason)
		return false, nil
	}

	bars, err := u.fetch(ctx, r, plan, g)
	if errors.Is(err, provider.ErrNoData) {
		st.MarkEmpty(g)
		r.noData = append(r.noData, g)
		u.obs.NoData(g)
		u.log.Warn("no data under either market guess", "code", r.id.Code, "granularity", g,
			"window", plan.Begin.Format("2006-01-02")+".."+plan.End.Format("2006-01-02"))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch %s %s: %w", r.id, g, err)
	}

	if detect && u.detector.Detect(last.Close, hasLast, bars[0].Close) {
		u.log.Info("close mismatch", "code", r.id.Code, "cached", last.Close, "fetched", bars[0].Close,
			"cached_date", last.Date.Format("2006-01-02"), "fetched_date", bars[0].Date.Format("2006-01-02"))
		return true, nil
	}

	var next barstore.Series
	if r.realigning {
		next = bars
	} else {
		// the window restarts on the last cached day; hour bars of that day come back whole
		next, err = st.Get(g).DropLast().Before(plan.Begin).Concat(g, bars...)
		if err != nil {
			return false, fmt.Errorf("merge %s %s: %w", r.id, g, err)
		}
	}
	if err := st.Replace(g, next); err != nil {
		return false, fmt.Errorf("merge %s %s: %w", r.id, g, err)
	}
	r.res.Fetched[g] = len(bars)
	u.obs.Fetched(g, len(bars))
	return false, nil
}

// fetch calls the fetcher, swapping the market guess once when the first guess has no data.
func (u *Updater) fetch(ctx context.Context, r *run, plan Plan, g model.Granularity) ([]model.Bar, error) {
	bars, err := u.fetcher.FetchBars(ctx, r.id, plan.Begin, plan.End, g)
	if err == nil && len(bars) == 0 {
		err = provider.ErrNoData
	}
	if !errors.Is(err, provider.ErrNoData) {
		return bars, err
	}

	alt, ok := r.id.Swap()
	if !ok {
		return nil, provider.ErrNoData
	}
	u.obs.Swapped()
	bars, err = u.fetcher.FetchBars(ctx, alt, plan.Begin, plan.End, g)
	if err == nil && len(bars) == 0 {
		err = provider.ErrNoData
	}
	if err != nil {
		return nil, err
	}
	u.log.Info("market guess swapped", "code", r.id.Code, "from", r.id.Market, "to", alt.Market)
	r.id = alt
	return bars, nil
}
