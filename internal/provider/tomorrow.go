package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

const (
	tomorrowSource   = "io.tomorrow"
	tomorrowEndpoint = "https://api.tomorrow.io/v4/weather/realtime"
)

// Tomorrow reads from the tomorrow.io realtime endpoint. The realtime shape
// (data.values) is canonical; replies in the older timelines shape are
// accepted by taking the first interval of the first timeline. The API does
// not report a city or its own coordinates, so both echo the request.
type Tomorrow struct {
	apiKey   string
	interval time.Duration
	endpoint string
	client   *client.Client
	cache    *cache.HTTPCache
	logger   *zap.Logger
}

func NewTomorrow(s Settings, d Deps) *Tomorrow {
	return &Tomorrow{
		apiKey:   s.APIKey,
		interval: s.RefreshInterval,
		endpoint: tomorrowEndpoint,
		client:   d.Client,
		cache:    cache.NewHTTPCache(d.Store, s.RefreshInterval),
		logger:   d.Logger.With(zap.String("provider", tomorrowSource)),
	}
}

func (p *Tomorrow) ID() string                     { return tomorrowSource }
func (p *Tomorrow) RefreshInterval() time.Duration { return p.interval }
func (p *Tomorrow) CacheCardinality() int          { return 1 }

type tomorrowValues struct {
	Temperature units.Celsius `json:"temperature"`
	Humidity    units.Ratio   `json:"humidity"`
}

type tomorrowResponse struct {
	Data struct {
		Values    *tomorrowValues `json:"values"`
		Timelines []struct {
			Intervals []struct {
				Values tomorrowValues `json:"values"`
			} `json:"intervals"`
		} `json:"timelines"`
	} `json:"data"`
}

func (r *tomorrowResponse) values() (*tomorrowValues, error) {
	if r.Data.Values != nil {
		return r.Data.Values, nil
	}
	if len(r.Data.Timelines) == 0 {
		return nil, errors.New("empty timelines in response")
	}
	if len(r.Data.Timelines[0].Intervals) == 0 {
		return nil, errors.New("empty intervals in response")
	}
	return &r.Data.Timelines[0].Intervals[0].Values, nil
}

func (p *Tomorrow) Fetch(ctx context.Context, req Request) (Weather, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%s,%s", req.Coordinates.Latitude, req.Coordinates.Longitude))
	q.Set("apikey", p.apiKey)
	q.Set("units", "metric")

	body, err := p.client.FetchBody(ctx, p.cache, p.endpoint+"?"+q.Encode())
	if err != nil {
		return Weather{}, err
	}

	var resp tomorrowResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Weather{}, fmt.Errorf("decode tomorrow.io response: %w", err)
	}
	values, err := resp.values()
	if err != nil {
		return Weather{}, err
	}

	return Weather{
		Source:           tomorrowSource,
		Location:         req.Name,
		City:             req.Name,
		Coordinates:      req.Coordinates,
		Temperature:      values.Temperature,
		RelativeHumidity: ratioPtr(values.Humidity),
	}, nil
}
