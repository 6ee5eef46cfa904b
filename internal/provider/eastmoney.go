package provider

import (
	"trend-data/internal/provider/eastmoney"
)

// EastmoneyProvider is a BarProvider backed by the Eastmoney kline API.
// It embeds *eastmoney.Client to expose FetchBars with minimal boilerplate.
type EastmoneyProvider struct {
	*eastmoney.Client
}

// NewEastmoneyProvider creates a new Eastmoney-backed provider.
func NewEastmoneyProvider(opts ...eastmoney.Option) *EastmoneyProvider {
	return &EastmoneyProvider{Client: eastmoney.NewClient(opts...)}
}

// GetName returns provider name
func (p *EastmoneyProvider) GetName() string {
	return "Eastmoney"
}

// SetLogFunc sets fan-in logger. When set, the client sends diagnostics here instead of slog.
func (p *EastmoneyProvider) SetLogFunc(fn eastmoney.LogFunc) {
	if p.Client != nil {
		p.Client.LogFunc = fn
	}
}
