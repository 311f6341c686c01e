// Package provider implements the upstream weather sources. Each provider
// turns a named coordinate pair into a Weather observation, fetching through
// the shared body cache and circuit breakers.
package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

// Request identifies a location to fetch weather for.
type Request struct {
	// Name is the display name used for the location label.
	Name        string
	Coordinates units.Coordinates
}

// Weather is a single observation from one provider for one location.
// RelativeHumidity and Distance are nil when the source does not report them.
type Weather struct {
	// Source is the provider's reverse-DNS identifier.
	Source           string
	Location         string
	City             string
	Coordinates      units.Coordinates
	Temperature      units.Celsius
	RelativeHumidity *units.Ratio
	Distance         *units.Meters
}

// Provider is a weather source.
type Provider interface {
	// ID returns the reverse-DNS source identifier (e.g. "org.openweathermap").
	ID() string

	// RefreshInterval is the provider's cache entry lifetime.
	RefreshInterval() time.Duration

	// CacheCardinality is the number of distinct URLs fetched per location.
	CacheCardinality() int

	// Fetch returns the current weather for the requested location.
	Fetch(ctx context.Context, req Request) (Weather, error)
}

// Settings is the per-provider configuration shared by all constructors.
type Settings struct {
	APIKey          string
	RefreshInterval time.Duration
}

// Deps bundles the shared infrastructure handed to every provider.
type Deps struct {
	Client *client.Client
	Store  cache.Store
	Logger *zap.Logger
}

func ratioPtr(r units.Ratio) *units.Ratio    { return &r }
func metersPtr(m units.Meters) *units.Meters { return &m }
