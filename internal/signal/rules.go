package signal

import (
	"fmt"
	"slices"

	"trend-data/internal/model"
)

// Rules parameterises the classifier. Window sizes and thresholds are configuration;
// the order in which rules apply is fixed.
type Rules struct {
	// PriceCeiling above which the instrument is too expensive to act on. Zero disables it.
	PriceCeiling float64 `yaml:"price_ceiling"`

	Short  int `yaml:"short" validate:"gt=0"`
	Medium int `yaml:"medium" validate:"gtfield=Short"`
	Long   int `yaml:"long" validate:"gtfield=Medium"`
	// HourShort is the short window of the hour refinement.
	HourShort int `yaml:"hour_short" validate:"gt=0"`

	Windows  map[model.Granularity][]int `yaml:"windows"`
	Stencils map[model.Granularity]int   `yaml:"stencils"`

	// RegimeGranularities are checked, in order, for the falling regimes.
	RegimeGranularities []model.Granularity `yaml:"regime_granularities"`

	ShortPeakRatio float64 `yaml:"short_peak_ratio" validate:"gte=0,lte=1"`
	LongPeakRatio  float64 `yaml:"long_peak_ratio" validate:"gte=0,lte=1"`
	PeakGuard      bool    `yaml:"peak_guard"`
	SmoothWindow   int     `yaml:"smooth_window" validate:"gt=0"`
	SmoothOrder    int     `yaml:"smooth_order" validate:"gte=0"`
	HourRefinement bool    `yaml:"hour_refinement"`
}

// DefaultRules returns the canonical rule table.
func DefaultRules() Rules {
	return Rules{
		PriceCeiling: 60,
		Short:        5,
		Medium:       20,
		Long:         60,
		HourShort:    3,
		Windows: map[model.Granularity][]int{
			model.Day:   {5, 10, 20, 60},
			model.Week:  {5, 10, 20, 60},
			model.Month: {5, 10, 20},
			model.Hour:  {3, 5, 20, 60},
		},
		Stencils: map[model.Granularity]int{
			model.Day:   2,
			model.Week:  1,
			model.Month: 1,
			model.Hour:  2,
		},
		RegimeGranularities: []model.Granularity{model.Day, model.Week},
		ShortPeakRatio:      0.94,
		LongPeakRatio:       0.98,
		PeakGuard:           true,
		SmoothWindow:        11,
		SmoothOrder:         3,
	}
}

// Validate checks the relations the struct tags cannot express.
func (r Rules) Validate() error {
	if r.SmoothWindow%2 == 0 || r.SmoothWindow <= r.SmoothOrder {
		return fmt.Errorf("smooth_window must be odd and greater than smooth_order, got %d/%d", r.SmoothWindow, r.SmoothOrder)
	}
	if r.PeakGuard && !slices.Contains(r.Windows[model.Day], r.Short) {
		return fmt.Errorf("peak guard needs the day window %d", r.Short)
	}
	for g, s := range r.Stencils {
		if s < 1 {
			return fmt.Errorf("stencil for %s must be positive, got %d", g, s)
		}
	}
	return nil
}

func (r Rules) stencil(g model.Granularity) int {
	if s, ok := r.Stencils[g]; ok {
		return s
	}
	return 1
}
