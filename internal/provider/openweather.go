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
	openWeatherSource   = "org.openweathermap"
	openWeatherEndpoint = "https://api.openweathermap.org/data/2.5/weather"
)

// OpenWeather reads from the OpenWeatherMap current weather API. Temperatures
// arrive in kelvins; the reported station coordinates can differ from the
// requested ones, and the difference becomes the distance value.
type OpenWeather struct {
	apiKey   string
	interval time.Duration
	endpoint string
	client   *client.Client
	cache    *cache.HTTPCache
	logger   *zap.Logger
}

func NewOpenWeather(s Settings, d Deps) *OpenWeather {
	return &OpenWeather{
		apiKey:   s.APIKey,
		interval: s.RefreshInterval,
		endpoint: openWeatherEndpoint,
		client:   d.Client,
		cache:    cache.NewHTTPCache(d.Store, s.RefreshInterval),
		logger:   d.Logger.With(zap.String("provider", openWeatherSource)),
	}
}

func (p *OpenWeather) ID() string                     { return openWeatherSource }
func (p *OpenWeather) RefreshInterval() time.Duration { return p.interval }
func (p *OpenWeather) CacheCardinality() int          { return 1 }

type openWeatherResponse struct {
	Coord struct {
		Lat units.Coordinate `json:"lat"`
		Lon units.Coordinate `json:"lon"`
	} `json:"coord"`
	Name string `json:"name"`
	Main struct {
		Temp     units.Kelvin `json:"temp"`
		Humidity units.Ratio  `json:"humidity"`
	} `json:"main"`
}

func (p *OpenWeather) Fetch(ctx context.Context, req Request) (Weather, error) {
	q := url.Values{}
	q.Set("lat", req.Coordinates.Latitude.String())
	q.Set("lon", req.Coordinates.Longitude.String())
	q.Set("appid", p.apiKey)

	body, err := p.client.FetchBody(ctx, p.cache, p.endpoint+"?"+q.Encode())
	if err != nil {
		return Weather{}, err
	}

	var resp openWeatherResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Weather{}, fmt.Errorf("decode openweathermap response: %w", err)
	}

	reported := units.Coordinates{Latitude: resp.Coord.Lat, Longitude: resp.Coord.Lon}
	return Weather{
		Source:           openWeatherSource,
		Location:         req.Name,
		City:             resp.Name,
		Coordinates:      reported,
		Temperature:      resp.Main.Temp.ToCelsius(),
		RelativeHumidity: ratioPtr(resp.Main.Humidity),
		Distance:         metersPtr(units.Haversine(req.Coordinates, reported)),
	}, nil
}
