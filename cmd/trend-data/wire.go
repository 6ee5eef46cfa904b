//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"trend-data/internal/app"
)

// InitializeApp builds App via Wire.
// Caller must call the returned cleanup when done.
func InitializeApp() (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	return nil, nil, nil
}
