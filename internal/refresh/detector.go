package refresh

import (
	"github.com/shopspring/decimal"
)

// DefaultPricePrecision is the number of decimals vendor prices are quoted with.
const DefaultPricePrecision = 2

// Detector flags a realignment when the vendor's adjusted series no longer agrees with
// the cached day close.
type Detector struct {
	Precision int32
}

// NewDetector returns a detector comparing prices at the given number of decimals.
func NewDetector(precision int32) Detector {
	return Detector{Precision: precision}
}

// Detect compares the last cached day close with the first freshly fetched close.
// hasOld is false for an empty store, in which case nothing can be detected.
func (d Detector) Detect(oldLastClose float64, hasOld bool, newFirstClose float64) bool {
	if !hasOld {
		return false
	}
	o := decimal.NewFromFloat(oldLastClose).Round(d.Precision)
	n := decimal.NewFromFloat(newFirstClose).Round(d.Precision)
	return !o.Equal(n)
}
