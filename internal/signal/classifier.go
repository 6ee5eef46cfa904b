package signal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"trend-data/internal/barstore"
	"trend-data/internal/model"
)

// State is a discrete trend state.
type State int

const (
	Empty       State = -2
	Sell        State = -1
	Wait        State = 0
	RisingShort State = 1
	RisingLong  State = 2
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Sell:
		return "sell"
	case Wait:
		return "wait"
	case RisingShort:
		return "rising_short"
	case RisingLong:
		return "rising_long"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Rule names reported with each signal.
const (
	RulePriceCeiling  = "price_ceiling"
	RuleFallingRegime = "falling_regime"
	RuleDeteriorating = "deteriorating"
	RuleFlat          = "flat"
	RuleRisingShort   = "rising_short"
	RuleRisingLong    = "rising_long"
	RulePeakGuard     = "peak_guard"
	RuleHourGuard     = "hour_guard"
	RuleDefault       = "default"
)

// ErrNoHistory is returned when the day series is empty as of the requested date.
var ErrNoHistory = errors.New("no day history")

// Signal is the classifier output.
type Signal struct {
	State State `json:"state"`
	// Code is the published value: the state, or -int(ceiling) when the price
	// ceiling was exceeded.
	Code            int       `json:"code"`
	CeilingExceeded bool      `json:"ceiling_exceeded"`
	Rule            string    `json:"rule"`
	Close           float64   `json:"close"`
	Date            time.Time `json:"date"`
}

// Classifier applies Rules to a Bar Store. It keeps no state between calls.
type Classifier struct {
	rules Rules
}

// New creates a classifier.
func New(r Rules) *Classifier {
	return &Classifier{rules: r}
}

// Rules returns the configured rules.
func (c *Classifier) Rules() Rules { return c.rules }

// frame holds the derived series of one granularity.
type frame struct {
	mas    map[int][]float64
	derivs map[int]float64
}

func (f frame) lastMA(w int) (float64, bool) {
	ma, ok := f.mas[w]
	if !ok {
		return 0, false
	}
	return ma[len(ma)-1], true
}

func (f frame) deriv(w int) (float64, bool) {
	d, ok := f.derivs[w]
	return d, ok
}

func (c *Classifier) frame(bars []model.Bar, g model.Granularity) frame {
	f := frame{mas: make(map[int][]float64), derivs: make(map[int]float64)}
	closes := model.Closes(bars)
	for _, w := range c.rules.Windows[g] {
		ma, ok := movingAverage(closes, w)
		if !ok {
			continue
		}
		f.mas[w] = ma
		if d, ok := derivative(ma, c.rules.stencil(g)); ok {
			f.derivs[w] = d
		}
	}
	return f
}

// peak returns the last local maximum of the smoothed short MA.
func (c *Classifier) peak(f frame) (float64, bool) {
	ma, ok := f.mas[c.rules.Short]
	if !ok {
		return 0, false
	}
	smoothed, ok := savgol(ma, c.rules.SmoothWindow, c.rules.SmoothOrder, 0)
	if !ok {
		return 0, false
	}
	d, _ := savgol(ma, c.rules.SmoothWindow, c.rules.SmoothOrder, 1)
	return lastPeak(smoothed, d)
}

// Classify evaluates the rule table on st as of the given day. A zero asOf uses every bar.
// The first matching rule wins:
//
//  1. close above the price ceiling;
//  2. short MA under long MA with falling short MA (day, then week): empty when the
//     long MA falls too, sell otherwise;
//  3. short MA under medium MA with falling medium MA: sell;
//  4. medium slopes of week and month, or of day and week, both non-positive: wait;
//  5. day and week rising but not month: rising short, subject to the peak and hour guards;
//  6. week and month rising: rising long, subject to the peak guard;
//  7. wait.
func (c *Classifier) Classify(st *barstore.Store, asOf time.Time) (Signal, error) {
	if !asOf.IsZero() {
		st = st.Truncate(asOf)
	}
	day := st.Get(model.Day)
	if len(day) == 0 {
		return Signal{}, ErrNoHistory
	}
	last := day[len(day)-1]
	sig := Signal{Close: last.Close, Date: last.Date}
	r := c.rules

	if r.PriceCeiling > 0 && last.Close > r.PriceCeiling {
		sig.CeilingExceeded = true
		sig.State = Wait
		sig.Code = -int(r.PriceCeiling)
		sig.Rule = RulePriceCeiling
		return sig, nil
	}

	frames := make(map[model.Granularity]frame, len(model.Granularities))
	for _, g := range model.Granularities {
		frames[g] = c.frame(st.Get(g), g)
	}

	for _, g := range r.RegimeGranularities {
		f := frames[g]
		s, okS := f.lastMA(r.Short)
		l, okL := f.lastMA(r.Long)
		ds, okDS := f.deriv(r.Short)
		if okS && okL && okDS && s < l && ds < 0 {
			if dl, ok := f.deriv(r.Long); ok && dl < 0 {
				return sig.with(Empty, RuleFallingRegime), nil
			}
			return sig.with(Sell, RuleFallingRegime), nil
		}
	}

	for _, g := range r.RegimeGranularities {
		f := frames[g]
		s, okS := f.lastMA(r.Short)
		m, okM := f.lastMA(r.Medium)
		dm, okDM := f.deriv(r.Medium)
		if okS && okM && okDM && s < m && dm < 0 {
			return sig.with(Sell, RuleDeteriorating), nil
		}
	}

	dD, okD := frames[model.Day].deriv(r.Medium)
	dW, okW := frames[model.Week].deriv(r.Medium)
	dM, okM := frames[model.Month].deriv(r.Medium)

	if (okW && okM && dW <= 0 && dM <= 0) || (okD && okW && dD <= 0 && dW <= 0) {
		return sig.with(Wait, RuleFlat), nil
	}

	if okD && okW && dD > 0 && dW > 0 && !(okM && dM > 0) {
		if r.PeakGuard {
			// without a detected day peak the guard does not apply
			if p, ok := c.peak(frames[model.Day]); ok && last.Close < r.ShortPeakRatio*p {
				return sig.with(Wait, RulePeakGuard), nil
			}
		}
		if r.HourRefinement && c.hourFalling(frames[model.Hour], last.Close) {
			return sig.with(Wait, RuleHourGuard), nil
		}
		return sig.with(RisingShort, RuleRisingShort), nil
	}

	if okW && okM && dW > 0 && dM > 0 {
		if r.PeakGuard {
			p := math.Inf(1)
			for _, g := range []model.Granularity{model.Week, model.Month} {
				if v, ok := c.peak(frames[g]); ok && v < p {
					p = v
				}
			}
			// p stays +Inf when neither week nor month has a peak; the guard then does not apply
			if !math.IsInf(p, 1) && last.Close < r.LongPeakRatio*p {
				return sig.with(Wait, RulePeakGuard), nil
			}
		}
		return sig.with(RisingLong, RuleRisingLong), nil
	}

	return sig.with(Wait, RuleDefault), nil
}

// hourFalling reports an intraday downturn: close under the hour long MA, or hour short
// MA under hour medium MA while the short one falls.
func (c *Classifier) hourFalling(f frame, close float64) bool {
	r := c.rules
	if l, ok := f.lastMA(r.Long); ok && close < l {
		return true
	}
	s, okS := f.lastMA(r.HourShort)
	m, okM := f.lastMA(r.Medium)
	ds, okDS := f.deriv(r.HourShort)
	return okS && okM && okDS && s < m && ds < 0
}

func (s Signal) with(st State, rule string) Signal {
	s.State = st
	s.Code = int(st)
	s.Rule = rule
	return s
}
