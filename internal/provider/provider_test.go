package provider

import (
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/circuitbreaker"
	"github.com/weathermen/prometheus-weathermen/internal/client"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

func coords(lat, lon float64) units.Coordinates {
	return units.Coordinates{Latitude: units.Coordinate(lat), Longitude: units.Coordinate(lon)}
}

func testDeps() Deps {
	return Deps{
		Client: client.New(nil, circuitbreaker.NewRegistry(circuitbreaker.Config{}, zap.NewNop()), zap.NewNop()),
		Store:  cache.NewMemoryStore(),
		Logger: zap.NewNop(),
	}
}

func testSettings() Settings {
	return Settings{APIKey: "test-key", RefreshInterval: time.Minute}
}

func jsonServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}
