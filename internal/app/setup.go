package app

import (
	"fmt"
	"log/slog"
	"strings"

	"trend-data/internal/instrument"
	"trend-data/internal/provider"
)

// CreateProvider creates DataProvider from config (currently Eastmoney only)
func CreateProvider(cfg *Config) (provider.DataProvider, error) {
	switch strings.ToLower(cfg.DataProvider) {
	case "eastmoney":
		return provider.NewEastmoneyProvider(eastmoneyOptions(cfg)...), nil
	default:
		return nil, fmt.Errorf("unsupported data provider: %s. Options: eastmoney", cfg.DataProvider)
	}
}

// LoadInstruments returns the configured instruments: CODES when set, else the
// instruments file.
func LoadInstruments(cfg *Config) ([]instrument.Identity, error) {
	if len(cfg.CodeList()) > 0 {
		slog.Info("reading instruments from CODES")
		return instrument.ParseCodes(cfg.Codes)
	}
	if cfg.InstrumentsFile == "" {
		return nil, fmt.Errorf("neither CODES nor INSTRUMENTS_FILE set")
	}
	slog.Info("reading instruments from file", "path", cfg.InstrumentsFile)
	return instrument.LoadFile(cfg.InstrumentsFile)
}
