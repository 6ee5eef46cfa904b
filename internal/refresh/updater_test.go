package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-data/internal/barstore"
	"trend-data/internal/instrument"
	"trend-data/internal/model"
	"trend-data/internal/provider"
)

type call struct {
	secID string
	g     model.Granularity
	begin time.Time
	end   time.Time
}

// fakeFetcher serves a fixed upstream per secid and granularity, filtered by window.
type fakeFetcher struct {
	upstream map[string]map[model.Granularity][]model.Bar
	fail     map[model.Granularity]error
	raw      bool // ignore the window
	calls    []call
}

func (f *fakeFetcher) FetchBars(_ context.Context, id instrument.Identity, begin, end time.Time, g model.Granularity) ([]model.Bar, error) {
	f.calls = append(f.calls, call{id.SecID(), g, begin, end})
	if err := f.fail[g]; err != nil {
		return nil, err
	}
	var out []model.Bar
	for _, b := range f.upstream[id.SecID()][g] {
		if f.raw || (!b.Day().Before(begin) && !b.Day().After(end)) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, provider.ErrNoData
	}
	return out, nil
}

func bars(kv ...any) []model.Bar {
	var out []model.Bar
	for i := 0; i < len(kv); i += 2 {
		out = append(out, model.Bar{Date: d(kv[i].(string)), Close: kv[i+1].(float64)})
	}
	return out
}

func closes(s barstore.Series) map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, b := range s {
		m[b.Date.Format("2006-01-02")] = b.Close
	}
	return m
}

func mustID(t *testing.T, code string) instrument.Identity {
	t.Helper()
	id, err := instrument.New(code)
	require.NoError(t, err)
	return id
}

func TestRefreshMergesTail(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Week: bars("2024-01-02", 11.5, "2024-01-03", 12.0)},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Week, bars("2024-01-01", 10.0, "2024-01-02", 11.0)))

	u := NewUpdater(f, always, WithGranularities(model.Week))
	req := Request{Begin: d("2023-01-01"), End: d("2024-01-03")}
	res, err := u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)
	assert.False(t, res.Realigned)

	require.Len(t, f.calls, 1)
	assert.Equal(t, d("2024-01-02"), f.calls[0].begin)

	got := st.Get(model.Week)
	require.Len(t, got, 3)
	assert.Equal(t, map[string]float64{"2024-01-01": 10, "2024-01-02": 11.5, "2024-01-03": 12}, closes(got))
	assert.NoError(t, got.Validate(model.Week))
}

func TestRefreshIsIdempotent(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Week: bars("2024-01-02", 11.5, "2024-01-03", 12.0)},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Week, bars("2024-01-01", 10.0, "2024-01-02", 11.0)))
	u := NewUpdater(f, always, WithGranularities(model.Week))
	req := Request{Begin: d("2023-01-01"), End: d("2024-01-04")}

	_, err := u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)
	first := st.Get(model.Week)

	_, err = u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)
	assert.Equal(t, first, st.Get(model.Week))
}

func TestRefreshRealignment(t *testing.T) {
	id := mustID(t, "600519")
	adjusted := bars("2024-01-01", 7.6, "2024-01-02", 8.0, "2024-01-03", 8.4)
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {
			model.Day:  adjusted,
			model.Week: bars("2024-01-01", 8.4),
		},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Day, bars("2024-01-01", 9.5, "2024-01-02", 10.0)))
	require.NoError(t, st.Replace(model.Week, bars("2023-12-25", 9.0, "2024-01-01", 10.0)))

	u := NewUpdater(f, always, WithGranularities(model.Day, model.Week))
	req := Request{Begin: d("2024-01-01"), End: d("2024-01-03")}
	res, err := u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)
	assert.True(t, res.Realigned)

	require.Len(t, f.calls, 3)
	assert.Equal(t, d("2024-01-02"), f.calls[0].begin, "first pass fetches the tail")
	assert.Equal(t, d("2024-01-01"), f.calls[1].begin, "rerun uses the full range")
	assert.Equal(t, model.Week, f.calls[2].g)
	assert.Equal(t, d("2024-01-01"), f.calls[2].begin, "later granularities rebuild too")

	assert.Equal(t, barstore.Series(adjusted), st.Get(model.Day))
	assert.Equal(t, map[string]float64{"2024-01-01": 8.4}, closes(st.Get(model.Week)))
}

func TestRefreshNoRealignmentOnEmptyStore(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Day: bars("2024-01-02", 8.0, "2024-01-03", 8.4)},
	}}
	st := barstore.New()
	st.MarkEmpty(model.Day)

	u := NewUpdater(f, always, WithGranularities(model.Day))
	res, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2024-01-01"), End: d("2024-01-03")})
	require.NoError(t, err)
	assert.False(t, res.Realigned)
	assert.Len(t, f.calls, 1)
	assert.Equal(t, 2, st.Len(model.Day))
}

func TestRefreshHolidayWindowLeavesStore(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{}
	st := barstore.New()
	orig := bars("2024-01-01", 10.0, "2024-01-02", 11.0)
	require.NoError(t, st.Replace(model.Day, orig))

	u := NewUpdater(f, never, WithGranularities(model.Day))
	res, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2024-01-01"), End: d("2024-01-06")})
	require.NoError(t, err)
	assert.Empty(t, f.calls)
	assert.Equal(t, reasonHolidays, res.Skipped[model.Day])
	assert.Equal(t, barstore.Series(orig), st.Get(model.Day))
}

func TestRefreshSwapsMarketGuess(t *testing.T) {
	id := mustID(t, "000001") // guessed SZ
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		"1.000001": {
			model.Day:  bars("2024-01-02", 3000.0),
			model.Week: bars("2024-01-01", 3000.0),
		},
	}}
	st := barstore.New()
	u := NewUpdater(f, always, WithGranularities(model.Day, model.Week))
	res, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2024-01-01"), End: d("2024-01-03")})
	require.NoError(t, err)
	assert.Equal(t, instrument.SH, res.Identity.Market)

	require.Len(t, f.calls, 3)
	assert.Equal(t, "0.000001", f.calls[0].secID)
	assert.Equal(t, "1.000001", f.calls[1].secID)
	assert.Equal(t, "1.000001", f.calls[2].secID, "the working guess sticks for the run")
}

func TestRefreshNoDataUnderBothGuesses(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Day: bars("2024-01-02", 10.0)},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Week, bars("2023-12-25", 9.0)))

	u := NewUpdater(f, always, WithGranularities(model.Day, model.Week, model.Month))
	_, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2024-01-01"), End: d("2024-01-03")})

	var nd *NoDataError
	require.True(t, errors.As(err, &nd))
	assert.Equal(t, []model.Granularity{model.Week, model.Month}, nd.Granularities)
	assert.Equal(t, 1, st.Len(model.Day))
	assert.True(t, st.Loaded(model.Week))
	assert.True(t, st.IsEmpty(model.Week), "week holds the empty marker")
}

func TestRefreshFetchErrorPropagates(t *testing.T) {
	id := mustID(t, "600519")
	boom := errors.New("connection reset")
	f := &fakeFetcher{fail: map[model.Granularity]error{model.Day: boom}}
	st := barstore.New()
	u := NewUpdater(f, always)
	_, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2024-01-01"), End: d("2024-01-03")})
	require.ErrorIs(t, err, boom)
	var nd *NoDataError
	assert.False(t, errors.As(err, &nd))
	assert.Len(t, f.calls, 1, "no swap on transport errors")
}

func TestRefreshOverlappingVendorDataIsOutOfOrder(t *testing.T) {
	id := mustID(t, "600519")
	f := &fakeFetcher{raw: true, upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Week: bars("2023-12-18", 8.0, "2024-01-08", 9.0)},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Week, bars("2023-12-25", 9.0, "2024-01-01", 10.0, "2024-01-08", 10.5)))

	u := NewUpdater(f, always, WithGranularities(model.Week))
	_, err := u.Refresh(context.Background(), id, st, Request{Begin: d("2023-01-01"), End: d("2024-01-09")})
	var ooo *barstore.OutOfOrderError
	require.True(t, errors.As(err, &ooo))
	assert.Equal(t, 3, st.Len(model.Week), "store untouched")
}

func hourBar(day string, hour, minute int, c float64) model.Bar {
	return model.Bar{Date: d(day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), Close: c}
}

func TestRefreshHourBarsAcrossDays(t *testing.T) {
	id := mustID(t, "600519")
	cached := []model.Bar{
		hourBar("2024-01-02", 10, 30, 10.0), hourBar("2024-01-02", 11, 30, 10.1),
		hourBar("2024-01-02", 14, 0, 10.2), hourBar("2024-01-02", 15, 0, 10.3),
	}
	upstream := append(append([]model.Bar{}, cached...),
		hourBar("2024-01-03", 10, 30, 10.4), hourBar("2024-01-03", 11, 30, 10.5))
	f := &fakeFetcher{upstream: map[string]map[model.Granularity][]model.Bar{
		id.SecID(): {model.Hour: upstream},
	}}
	st := barstore.New()
	require.NoError(t, st.Replace(model.Hour, cached))

	u := NewUpdater(f, always, WithGranularities(model.Hour))
	req := Request{Begin: d("2023-01-01"), End: d("2024-01-03")}
	res, err := u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Equal(t, d("2024-01-02"), f.calls[0].begin)
	assert.Equal(t, 6, res.Fetched[model.Hour])
	got := st.Get(model.Hour)
	assert.Equal(t, barstore.Series(upstream), got)
	assert.NoError(t, got.Validate(model.Hour))

	_, err = u.Refresh(context.Background(), id, st, req)
	require.NoError(t, err)
	assert.Equal(t, barstore.Series(upstream), st.Get(model.Hour), "a second run keeps the series")
}
