package provider

import (
	"context"
	"time"

	"trend-data/internal/instrument"
	"trend-data/internal/model"
	"trend-data/internal/provider/eastmoney"
)

// ErrNoData is returned when the vendor has no bars for the identity and window.
// A response without a usable data field is reported the same way.
var ErrNoData = eastmoney.ErrNoData

// DataProvider is the abstraction used by the application when accessing a data source.
// Implementations are responsible for their own resource cleanup.
type DataProvider interface {
	GetName() string
	Close() error
}

// Fetcher returns the bars of one instrument and granularity for the inclusive
// calendar window [begin, end], oldest first.
type Fetcher interface {
	FetchBars(ctx context.Context, id instrument.Identity, begin, end time.Time, g model.Granularity) ([]model.Bar, error)
}

// BarProvider is a DataProvider that can fetch bars.
type BarProvider interface {
	DataProvider
	Fetcher
}
