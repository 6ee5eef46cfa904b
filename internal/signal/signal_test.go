package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-data/internal/barstore"
	"trend-data/internal/model"
)

var origin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(step time.Duration, closes []float64) barstore.Series {
	out := make(barstore.Series, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Date: origin.Add(time.Duration(i) * step), Close: c}
	}
	return out
}

func linear(n int, start, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + slope*float64(i)
	}
	return out
}

// humped rises linearly with a triangular spike of the given height centred at c.
func humped(n int, start, slope float64, c int, height float64) []float64 {
	out := linear(n, start, slope)
	for i := range out {
		if d := math.Abs(float64(i - c)); d <= 5 {
			out[i] += height - d*height/5
		}
	}
	return out
}

const (
	day  = 24 * time.Hour
	week = 7 * day
)

func store(t *testing.T, s map[model.Granularity][]float64) *barstore.Store {
	t.Helper()
	st := barstore.New()
	steps := map[model.Granularity]time.Duration{
		model.Day:   day,
		model.Week:  week,
		model.Month: 30 * day,
		model.Hour:  time.Hour,
	}
	for g, closes := range s {
		require.NoError(t, st.Replace(g, series(steps[g], closes)))
	}
	return st
}

func classify(t *testing.T, r Rules, s map[model.Granularity][]float64) Signal {
	t.Helper()
	sig, err := New(r).Classify(store(t, s), time.Time{})
	require.NoError(t, err)
	return sig
}

func TestMovingAverageAlignment(t *testing.T) {
	ma, ok := movingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3, 4}, ma)

	ma, ok = movingAverage([]float64{1, 2, 2}, 3)
	require.True(t, ok)
	assert.Equal(t, []float64{1.67}, ma)

	_, ok = movingAverage([]float64{1, 2}, 3)
	assert.False(t, ok)
}

func TestDerivative(t *testing.T) {
	d, ok := derivative([]float64{1, 2, 4}, 2)
	require.True(t, ok)
	assert.Equal(t, 1.5, d)

	d, ok = derivative([]float64{3, 2}, 1)
	require.True(t, ok)
	assert.Equal(t, -1.0, d)

	_, ok = derivative([]float64{1, 2}, 2)
	assert.False(t, ok)
}

func TestPolyfitLeastSquares(t *testing.T) {
	// 2 - t + 0.5t² sampled at -2..2
	ys := []float64{6, 3.5, 2, 1.5, 2}
	c, ok := polyfit(ys, 2, 2)
	require.True(t, ok)
	require.Len(t, c, 3)
	assert.InDelta(t, 2, c[0], 1e-9)
	assert.InDelta(t, -1, c[1], 1e-9)
	assert.InDelta(t, 0.5, c[2], 1e-9)
	assert.InDelta(t, -1, polyderiv(c, 0), 1e-9)

	// a constant fit is the mean
	c, ok = polyfit([]float64{1, 2, 6}, 1, 0)
	require.True(t, ok)
	assert.InDelta(t, 3, c[0], 1e-9)
}

func TestSavgolReproducesCubic(t *testing.T) {
	p := func(x float64) float64 { return 0.01*x*x*x - 0.2*x*x + x + 3 }
	dp := func(x float64) float64 { return 0.03*x*x - 0.4*x + 1 }
	data := make([]float64, 20)
	for i := range data {
		data[i] = p(float64(i))
	}

	smoothed, ok := savgol(data, 11, 3, 0)
	require.True(t, ok)
	slope, ok := savgol(data, 11, 3, 1)
	require.True(t, ok)
	for i := range data {
		assert.InDelta(t, p(float64(i)), smoothed[i], 1e-6, "value at %d", i)
		assert.InDelta(t, dp(float64(i)), slope[i], 1e-6, "slope at %d", i)
	}

	_, ok = savgol(data[:10], 11, 3, 0)
	assert.False(t, ok, "shorter than the window")
	_, ok = savgol(data, 10, 3, 0)
	assert.False(t, ok, "even window")
}

func TestLastPeak(t *testing.T) {
	smoothed := []float64{1, 3, 5, 4, 2, 3, 6, 7}
	d := []float64{2, 2, 1, -1, -1, 1, 2, 1}
	p, ok := lastPeak(smoothed, d)
	require.True(t, ok)
	assert.Equal(t, 5.0, p)

	_, ok = lastPeak([]float64{1, 2, 3}, []float64{1, 1, 1})
	assert.False(t, ok)
}

func TestClassifyNoHistory(t *testing.T) {
	_, err := New(DefaultRules()).Classify(barstore.New(), time.Time{})
	assert.True(t, errors.Is(err, ErrNoHistory))
}

func TestClassifyPriceCeilingWins(t *testing.T) {
	closes := linear(80, 90, -0.3) // falling, ends above 60
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{model.Day: closes})
	assert.True(t, sig.CeilingExceeded)
	assert.Equal(t, -60, sig.Code)
	assert.Equal(t, RulePriceCeiling, sig.Rule)
}

func TestClassifyFallingRegimeEmpty(t *testing.T) {
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day: linear(80, 50, -0.3),
	})
	assert.Equal(t, Empty, sig.State)
	assert.Equal(t, -2, sig.Code)
	assert.Equal(t, RuleFallingRegime, sig.Rule)
	assert.InDelta(t, 26.3, sig.Close, 1e-9)
}

func TestClassifyFallingRegimeSellWhileLongRises(t *testing.T) {
	closes := linear(70, 10, 0.5)
	for i := 1; i <= 10; i++ {
		closes = append(closes, 44.5-2*float64(i))
	}
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{model.Day: closes})
	assert.Equal(t, Sell, sig.State)
	assert.Equal(t, RuleFallingRegime, sig.Rule)
}

func TestClassifyDeteriorating(t *testing.T) {
	// too short for the long window, so only the medium rule applies
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day: linear(40, 50, -0.5),
	})
	assert.Equal(t, Sell, sig.State)
	assert.Equal(t, RuleDeteriorating, sig.Rule)
}

func TestClassifyFlatIsWait(t *testing.T) {
	flat := linear(30, 20, 0)
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day:  flat,
		model.Week: flat,
	})
	assert.Equal(t, Wait, sig.State)
	assert.Equal(t, RuleFlat, sig.Rule)
}

func TestClassifyRisingShort(t *testing.T) {
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day:  linear(30, 10, 0.1),
		model.Week: linear(30, 10, 0.1),
	})
	assert.Equal(t, RisingShort, sig.State)
	assert.Equal(t, 1, sig.Code)
}

func TestClassifyRisingShortPeakGuard(t *testing.T) {
	s := map[model.Granularity][]float64{
		model.Day:  humped(50, 20, 0.2, 20, 30),
		model.Week: linear(30, 10, 0.1),
	}
	sig := classify(t, DefaultRules(), s)
	assert.Equal(t, Wait, sig.State)
	assert.Equal(t, RulePeakGuard, sig.Rule)

	r := DefaultRules()
	r.PeakGuard = false
	assert.Equal(t, RisingShort, classify(t, r, s).State)
}

func TestClassifyHourRefinement(t *testing.T) {
	r := DefaultRules()
	r.HourRefinement = true
	s := map[model.Granularity][]float64{
		model.Day:  linear(30, 10, 0.1),
		model.Week: linear(30, 10, 0.1),
		model.Hour: linear(60, 10, 0.01),
	}
	assert.Equal(t, RisingShort, classify(t, r, s).State)

	s[model.Hour] = linear(60, 100, 0)
	sig := classify(t, r, s)
	assert.Equal(t, Wait, sig.State)
	assert.Equal(t, RuleHourGuard, sig.Rule)
}

func TestClassifyRisingLong(t *testing.T) {
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day:   linear(30, 10, 0.1),
		model.Week:  linear(30, 10, 0.1),
		model.Month: linear(25, 10, 0.1),
	})
	assert.Equal(t, RisingLong, sig.State)
	assert.Equal(t, RuleRisingLong, sig.Rule)
}

func TestClassifyRisingLongPeakGuard(t *testing.T) {
	sig := classify(t, DefaultRules(), map[model.Granularity][]float64{
		model.Day:   linear(30, 10, 0.1),
		model.Week:  humped(50, 20, 0.2, 20, 30),
		model.Month: linear(25, 10, 0.1),
	})
	assert.Equal(t, Wait, sig.State)
	assert.Equal(t, RulePeakGuard, sig.Rule)
}

func TestClassifyAsOf(t *testing.T) {
	closes := append(linear(30, 10, 0.1), 70)
	st := store(t, map[model.Granularity][]float64{model.Day: closes})
	c := New(DefaultRules())

	now, err := c.Classify(st, time.Time{})
	require.NoError(t, err)
	assert.True(t, now.CeilingExceeded)

	asOf := origin.Add(29 * day)
	prev, err := c.Classify(st, asOf)
	require.NoError(t, err)
	assert.False(t, prev.CeilingExceeded)
	assert.Equal(t, asOf, prev.Date)
	assert.Equal(t, 31, st.Len(model.Day), "the store is not modified")
}

func TestRulesValidate(t *testing.T) {
	assert.NoError(t, DefaultRules().Validate())

	r := DefaultRules()
	r.SmoothWindow = 10
	assert.Error(t, r.Validate())

	r = DefaultRules()
	r.Windows[model.Day] = []int{10, 20, 60}
	assert.Error(t, r.Validate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "rising_long", RisingLong.String())
	assert.Equal(t, "state(7)", State(7).String())
}
