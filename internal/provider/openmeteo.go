package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

const (
	openMeteoSource   = "com.open-meteo"
	openMeteoEndpoint = "https://api.open-meteo.com/v1/forecast"
)

// OpenMeteo reads from the Open-Meteo forecast API's current block. The API
// works without a key; a commercial key is passed through when configured.
// It reports neither a city nor its own coordinates.
type OpenMeteo struct {
	apiKey   string
	interval time.Duration
	endpoint string
	client   *client.Client
	cache    *cache.HTTPCache
	logger   *zap.Logger
}

func NewOpenMeteo(s Settings, d Deps) *OpenMeteo {
	return &OpenMeteo{
		apiKey:   s.APIKey,
		interval: s.RefreshInterval,
		endpoint: openMeteoEndpoint,
		client:   d.Client,
		cache:    cache.NewHTTPCache(d.Store, s.RefreshInterval),
		logger:   d.Logger.With(zap.String("provider", openMeteoSource)),
	}
}

func (p *OpenMeteo) ID() string                     { return openMeteoSource }
func (p *OpenMeteo) RefreshInterval() time.Duration { return p.interval }
func (p *OpenMeteo) CacheCardinality() int          { return 1 }

type openMeteoResponse struct {
	Current struct {
		Temperature2m      units.Celsius `json:"temperature_2m"`
		RelativeHumidity2m float64       `json:"relative_humidity_2m"`
	} `json:"current"`
}

func (p *OpenMeteo) Fetch(ctx context.Context, req Request) (Weather, error) {
	q := url.Values{}
	q.Set("current", "temperature_2m,relative_humidity_2m")
	q.Set("latitude", req.Coordinates.Latitude.String())
	q.Set("longitude", req.Coordinates.Longitude.String())
	if p.apiKey != "" {
		q.Set("apikey", p.apiKey)
	}

	body, err := p.client.FetchBody(ctx, p.cache, p.endpoint+"?"+q.Encode())
	if err != nil {
		return Weather{}, err
	}

	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Weather{}, fmt.Errorf("decode open-meteo response: %w", err)
	}

	return Weather{
		Source:           openMeteoSource,
		Location:         req.Name,
		Coordinates:      req.Coordinates,
		Temperature:      resp.Current.Temperature2m,
		RelativeHumidity: ratioPtr(units.RatioFromPercentage(resp.Current.RelativeHumidity2m)),
	}, nil
}
