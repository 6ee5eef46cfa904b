package signal

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
)

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// movingAverage returns the simple moving average of closes, rounded to two decimals,
// where entry i covers closes[i : i+window]. ok is false when there are fewer closes
// than the window.
func movingAverage(closes []float64, window int) ([]float64, bool) {
	if window < 1 || len(closes) < window {
		return nil, false
	}
	sma := talib.Sma(closes, window)[window-1:]
	out := make([]float64, len(sma))
	for i, v := range sma {
		out[i] = round(v, 2)
	}
	return out, true
}

// derivative approximates the current slope of ma by the finite difference over the
// last stencil steps: (ma[-1] - ma[-1-stencil]) / stencil, rounded to two decimals.
func derivative(ma []float64, stencil int) (float64, bool) {
	if stencil < 1 || len(ma) <= stencil {
		return 0, false
	}
	n := len(ma)
	return round((ma[n-1]-ma[n-1-stencil])/float64(stencil), 2), true
}

// savgol applies a Savitzky–Golay filter of the given polynomial order over an odd
// window. Edge points are evaluated on the polynomial fitted to the first or last full
// window. deriv selects the value (0) or the first derivative (1). ok is false when
// data is shorter than the window or the window is not odd and larger than order.
func savgol(data []float64, window, order, deriv int) ([]float64, bool) {
	n := len(data)
	if window%2 == 0 || window <= order || n < window || deriv < 0 || deriv > 1 {
		return nil, false
	}
	half := window / 2
	out := make([]float64, n)

	for i := 0; i < n; i++ {
		start := i - half
		switch {
		case start < 0:
			start = 0
		case start > n-window:
			start = n - window
		}
		centre := start + half
		coef, ok := polyfit(data[start:start+window], half, order)
		if !ok {
			return nil, false
		}
		t := float64(i - centre)
		if deriv == 0 {
			out[i] = polyval(coef, t)
		} else {
			out[i] = polyderiv(coef, t)
		}
	}
	return out, true
}

// polyfit fits ys sampled at t = -half..half with a least-squares polynomial, lowest
// degree first.
func polyfit(ys []float64, half, order int) ([]float64, bool) {
	m := order + 1
	a := mat.NewDense(len(ys), m, nil)
	for i := range ys {
		t := float64(i - half)
		p := 1.0
		for k := 0; k < m; k++ {
			a.Set(i, k, p)
			p *= t
		}
	}
	var c mat.VecDense
	if err := c.SolveVec(a, mat.NewVecDense(len(ys), append([]float64(nil), ys...))); err != nil {
		return nil, false
	}
	return c.RawVector().Data, true
}

func polyval(c []float64, t float64) float64 {
	v := 0.0
	for k := len(c) - 1; k >= 0; k-- {
		v = v*t + c[k]
	}
	return v
}

func polyderiv(c []float64, t float64) float64 {
	v := 0.0
	for k := len(c) - 1; k >= 1; k-- {
		v = v*t + float64(k)*c[k]
	}
	return v
}

// lastPeak returns the smoothed value at the most recent local maximum, found scanning
// backwards for d[i] > 0 and d[i+1] < 0.
func lastPeak(smoothed, d []float64) (float64, bool) {
	for i := len(d) - 2; i >= 0; i-- {
		if d[i] > 0 && d[i+1] < 0 {
			return smoothed[i], true
		}
	}
	return 0, false
}
