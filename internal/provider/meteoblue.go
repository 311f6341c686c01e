package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
	meteoblueSource   = "com.meteoblue"
	meteoblueEndpoint = "https://my.meteoblue.com/packages/current"
)

// Meteoblue reads from the meteoblue current conditions package. Requests are
// signed: the sig parameter is the hex HMAC-SHA256 of "{path}?{query}" keyed
// with the API key.
type Meteoblue struct {
	apiKey   string
	interval time.Duration
	endpoint string
	client   *client.Client
	cache    *cache.HTTPCache
	logger   *zap.Logger
}

func NewMeteoblue(s Settings, d Deps) *Meteoblue {
	return &Meteoblue{
		apiKey:   s.APIKey,
		interval: s.RefreshInterval,
		endpoint: meteoblueEndpoint,
		client:   d.Client,
		cache:    cache.NewHTTPCache(d.Store, s.RefreshInterval),
		logger:   d.Logger.With(zap.String("provider", meteoblueSource)),
	}
}

func (p *Meteoblue) ID() string                     { return meteoblueSource }
func (p *Meteoblue) RefreshInterval() time.Duration { return p.interval }
func (p *Meteoblue) CacheCardinality() int          { return 1 }

type meteoblueResponse struct {
	Metadata struct {
		Name      string           `json:"name"`
		Latitude  units.Coordinate `json:"latitude"`
		Longitude units.Coordinate `json:"longitude"`
	} `json:"metadata"`
	DataCurrent struct {
		Temperature units.Celsius `json:"temperature"`
	} `json:"data_current"`
}

func (p *Meteoblue) Fetch(ctx context.Context, req Request) (Weather, error) {
	signed, err := p.signedURL(req.Coordinates)
	if err != nil {
		return Weather{}, err
	}

	body, err := p.client.FetchBody(ctx, p.cache, signed)
	if err != nil {
		return Weather{}, err
	}

	var resp meteoblueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Weather{}, fmt.Errorf("decode meteoblue response: %w", err)
	}

	city := resp.Metadata.Name
	if city == "" {
		city = req.Name
	}
	return Weather{
		Source:   meteoblueSource,
		Location: req.Name,
		City:     city,
		Coordinates: units.Coordinates{
			Latitude:  resp.Metadata.Latitude,
			Longitude: resp.Metadata.Longitude,
		},
		Temperature: resp.DataCurrent.Temperature,
	}, nil
}

// signedURL appends the sig parameter computed over the path and the
// unsigned query string.
func (p *Meteoblue) signedURL(coords units.Coordinates) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	q := url.Values{}
	q.Set("lat", coords.Latitude.String())
	q.Set("lon", coords.Longitude.String())
	q.Set("format", "json")
	q.Set("apikey", p.apiKey)
	u.RawQuery = q.Encode()

	mac := hmac.New(sha256.New, []byte(p.apiKey))
	mac.Write([]byte(u.Path))
	mac.Write([]byte("?"))
	mac.Write([]byte(u.RawQuery))
	sig := hex.EncodeToString(mac.Sum(nil))

	u.RawQuery += "&sig=" + sig
	return u.String(), nil
}
