package config

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/provider"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

// Task is one unit of scrape work: one provider asked about one location.
type Task struct {
	Provider provider.Provider
	Request  provider.Request
}

// Tasks materializes the provider × location cross product. Locations
// iterate in sorted key order so task order is stable across runs. An empty
// provider set is a configuration error; so is a body cache that would need
// more entries than the per-provider capacity arithmetic can represent.
func Tasks(cfg *Config, deps provider.Deps, logger *zap.Logger) ([]Task, error) {
	providers := buildProviders(cfg, deps, logger)
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	keys := make([]string, 0, len(cfg.Location))
	for key := range cfg.Location {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	requests := make([]provider.Request, 0, len(keys))
	for _, key := range keys {
		loc := cfg.Location[key]
		name := loc.Name
		if name == "" {
			name = key
		}
		requests = append(requests, provider.Request{
			Name: name,
			Coordinates: units.Coordinates{
				Latitude:  units.Coordinate(loc.Latitude),
				Longitude: units.Coordinate(loc.Longitude),
			},
		})
	}

	var tasks []Task
	for _, p := range providers {
		if _, err := cacheCapacity(len(requests), p.CacheCardinality()); err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.ID(), err)
		}
		for _, req := range requests {
			tasks = append(tasks, Task{Provider: p, Request: req})
		}
	}
	return tasks, nil
}

// cacheCapacity computes locations × cardinality, rejecting overflow.
func cacheCapacity(locations, cardinality int) (uint64, error) {
	l, c := uint64(locations), uint64(cardinality)
	if c != 0 && l > math.MaxUint64/c {
		return 0, fmt.Errorf("cache capacity overflows: %d locations x cardinality %d", locations, cardinality)
	}
	return l * c, nil
}

func buildProviders(cfg *Config, deps provider.Deps, logger *zap.Logger) []provider.Provider {
	constructors := map[string]func(provider.Settings, provider.Deps) provider.Provider{
		"open_weather": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewOpenWeather(s, d)
		},
		"meteoblue": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewMeteoblue(s, d)
		},
		"tomorrow": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewTomorrow(s, d)
		},
		"deutscher_wetterdienst": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewDeutscherWetterdienst(s, d)
		},
		"open_meteo": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewOpenMeteo(s, d)
		},
		"nogoodnik": func(s provider.Settings, d provider.Deps) provider.Provider {
			return provider.NewNogoodnik(s, d)
		},
	}

	var out []provider.Provider
	for _, block := range cfg.Provider.all() {
		if block.settings == nil {
			continue
		}
		if block.settings.RefreshInterval < MinRefreshInterval {
			logger.Warn("refresh interval below recommended minimum",
				zap.String("provider", block.name),
				zap.Duration("refresh_interval", block.settings.RefreshInterval),
				zap.Duration("recommended_minimum", MinRefreshInterval),
			)
		}
		build := constructors[block.name]
		p := build(provider.Settings{
			APIKey:          block.settings.APIKey,
			RefreshInterval: block.settings.RefreshInterval,
		}, deps)
		out = append(out, p)
	}
	return out
}
