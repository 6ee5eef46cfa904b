package refresh

import (
	"fmt"
	"strings"

	"trend-data/internal/model"
)

// NoDataError reports granularities for which the vendor returned nothing under both
// market guesses. The instrument is skipped for this run; it is not fatal for the batch.
type NoDataError struct {
	Code          string
	Granularities []model.Granularity
}

func (e *NoDataError) Error() string {
	gs := make([]string, len(e.Granularities))
	for i, g := range e.Granularities {
		gs[i] = string(g)
	}
	return fmt.Sprintf("%s: no data under either market guess (%s)", e.Code, strings.Join(gs, ","))
}
