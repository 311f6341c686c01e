// Package config loads the exporter configuration: a TOML file overlaid with
// PROMW_-prefixed environment variables, decoded into typed structs, and
// materialized into the (provider, location) task list a scrape works
// through.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"

	"github.com/weathermen/prometheus-weathermen/internal/version"
)

const (
	// DefaultPath is the config file location used when -c is not given.
	DefaultPath = "/etc/" + version.Name + "/weathermen.toml"

	// EnvPrefix marks environment variables that override file values.
	// Nested keys are separated by double underscores:
	// PROMW_HTTP__PORT=1234 sets http.port.
	EnvPrefix = "PROMW_"

	defaultRefreshInterval = 10 * time.Minute
	defaultPort            = 36333
)

// MinRefreshInterval is the shortest refresh interval that does not draw a
// warning at load time. Providers meter by upstream call; anything faster
// burns quota for data that barely changes.
const MinRefreshInterval = 5 * time.Minute

// Location is one set of coordinates to fetch weather for. The map key in
// [location.<key>] is the display name unless Name overrides it.
type Location struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// ProviderSettings is the per-provider block under [provider.<name>].
type ProviderSettings struct {
	APIKey          string        `mapstructure:"api_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// Providers lists the recognized provider blocks. A nil entry means the
// provider is not configured.
type Providers struct {
	OpenWeather           *ProviderSettings `mapstructure:"open_weather"`
	Meteoblue             *ProviderSettings `mapstructure:"meteoblue"`
	Tomorrow              *ProviderSettings `mapstructure:"tomorrow"`
	DeutscherWetterdienst *ProviderSettings `mapstructure:"deutscher_wetterdienst"`
	OpenMeteo             *ProviderSettings `mapstructure:"open_meteo"`
	Nogoodnik             *ProviderSettings `mapstructure:"nogoodnik"`
}

// HTTP configures the listening socket and the scrape-side middleware.
type HTTP struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Ident string `mapstructure:"ident"`
	// RateLimitRPS caps scrape requests per second; zero disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Memcached configures the optional shared body cache backend.
type Memcached struct {
	Addrs        string        `mapstructure:"addrs"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

// Cache selects the body cache backend.
type Cache struct {
	Backend   string    `mapstructure:"backend"`
	Memcached Memcached `mapstructure:"memcached"`
}

// Config is the full exporter configuration.
type Config struct {
	Location map[string]Location `mapstructure:"location"`
	Provider Providers           `mapstructure:"provider"`
	HTTP     HTTP                `mapstructure:"http"`
	// Auth maps usernames to bcrypt hashes. Empty means no authentication.
	Auth  map[string]string `mapstructure:"auth"`
	Cache Cache             `mapstructure:"cache"`
}

// Load reads the TOML file at path, overlays PROMW_ environment variables
// and decodes the result. Defaults are applied afterwards; validation
// failures are fatal.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	raw := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	overlayEnv(raw, environ)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayEnv writes PROMW_ variables into the raw config tree. Key segments
// are separated by double underscores and lowercased, so single underscores
// survive inside segment names (PROMW_PROVIDER__OPEN_WEATHER__API_KEY).
func overlayEnv(raw map[string]interface{}, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		segments := strings.Split(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__")

		node := raw
		for _, segment := range segments[:len(segments)-1] {
			child, ok := node[segment].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[segment] = child
			}
			node = child
		}
		node[segments[len(segments)-1]] = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultPort
	}
	if cfg.HTTP.Ident == "" {
		cfg.HTTP.Ident = version.Name
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}

	for _, p := range cfg.Provider.all() {
		if p.settings != nil && p.settings.RefreshInterval == 0 {
			p.settings.RefreshInterval = defaultRefreshInterval
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Cache.Backend {
	case "memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be memory or memcached, got %q", cfg.Cache.Backend)
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", cfg.HTTP.Port)
	}
	for key, loc := range cfg.Location {
		if loc.Latitude < -90 || loc.Latitude > 90 {
			return fmt.Errorf("location.%s: latitude out of range: %v", key, loc.Latitude)
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("location.%s: longitude out of range: %v", key, loc.Longitude)
		}
	}
	return nil
}

// namedSettings pairs a provider block with its config name.
type namedSettings struct {
	name     string
	settings *ProviderSettings
}

// all returns the provider blocks in their fixed materialization order.
func (p *Providers) all() []namedSettings {
	return []namedSettings{
		{"open_weather", p.OpenWeather},
		{"meteoblue", p.Meteoblue},
		{"tomorrow", p.Tomorrow},
		{"deutscher_wetterdienst", p.DeutscherWetterdienst},
		{"open_meteo", p.OpenMeteo},
		{"nogoodnik", p.Nogoodnik},
	}
}
