package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/auth"
	"github.com/weathermen/prometheus-weathermen/internal/config"
	"github.com/weathermen/prometheus-weathermen/internal/provider"
	"github.com/weathermen/prometheus-weathermen/internal/units"
)

// joannaHash is bcrypt("secret") at cost 4.
const joannaHash = "$2y$04$RLR0zzNVe3K8eJg/NaRUxuWvIEXys0BwG0SnopFZ0K12Xei7HGq2i"

type stubProvider struct {
	id      string
	weather provider.Weather
	err     error
}

func (s *stubProvider) ID() string                     { return s.id }
func (s *stubProvider) RefreshInterval() time.Duration { return time.Minute }
func (s *stubProvider) CacheCardinality() int          { return 1 }

func (s *stubProvider) Fetch(ctx context.Context, req provider.Request) (provider.Weather, error) {
	if s.err != nil {
		return provider.Weather{}, s.err
	}
	return s.weather, nil
}

func newTestRouter(t *testing.T, tasks []config.Task, users map[string]string) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	authenticator, err := auth.New(users, logger)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(tasks, authenticator, "1.0.0-test", logger)
	return NewRouter(h, config.HTTP{Ident: "test-weathermen"}, logger)
}

func failingTasks() []config.Task {
	return []config.Task{
		{
			Provider: &stubProvider{id: "local.nogoodnik", err: errors.New("up to no good")},
			Request:  provider.Request{Name: "nowhere"},
		},
	}
}

func get(t *testing.T, handler http.Handler, path string, modify func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if modify != nil {
		modify(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMetricsAllProvidersFail(t *testing.T) {
	router := newTestRouter(t, failingTasks(), nil)

	rec := get(t, router, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# HELP weather_temperature_celsius") {
		t.Errorf("body missing temperature headers:\n%s", body)
	}
	if strings.Contains(body, "weather_temperature_celsius{") {
		t.Errorf("body has samples despite all providers failing:\n%s", body)
	}
	if strings.Contains(body, "# EOF") {
		t.Errorf("Prometheus format must not carry the EOF trailer:\n%s", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8; version=0.0.4" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestMetricsOpenMetricsTrailer(t *testing.T) {
	router := newTestRouter(t, failingTasks(), nil)

	rec := get(t, router, "/metrics", func(r *http.Request) {
		r.Header.Set("Accept", "application/openmetrics-text;version=1.0.0,text/plain;version=0.0.4;q=0.5")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasSuffix(rec.Body.String(), "# EOF\n") {
		t.Errorf("OpenMetrics body missing EOF trailer:\n%s", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/openmetrics-text; charset=utf-8; version=1.0.0" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestMetricsNoCredentials(t *testing.T) {
	router := newTestRouter(t, failingTasks(), map[string]string{"joanna": joannaHash})

	rec := get(t, router, "/metrics", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	challenge := rec.Header().Get("WWW-Authenticate")
	if !strings.Contains(challenge, `realm="prometheus-weathermen"`) {
		t.Errorf("WWW-Authenticate = %q", challenge)
	}
	if got := rec.Body.String(); got != "Authentication required. No credentials provided" {
		t.Errorf("body = %q", got)
	}
}

func TestMetricsValidCredentials(t *testing.T) {
	router := newTestRouter(t, failingTasks(), map[string]string{"joanna": joannaHash})

	rec := get(t, router, "/metrics", func(r *http.Request) {
		r.SetBasicAuth("joanna", "secret")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsSentinelPasswordRejected(t *testing.T) {
	router := newTestRouter(t, failingTasks(), map[string]string{"joanna": joannaHash})

	rec := get(t, router, "/metrics", func(r *http.Request) {
		r.SetBasicAuth("joanna", "fakepassword")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Body.String(); got != "Access denied. Invalid credentials" {
		t.Errorf("body = %q", got)
	}
}

func TestMetricsSingleRecord(t *testing.T) {
	tasks := []config.Task{{
		Provider: &stubProvider{
			id: "org.example",
			weather: provider.Weather{
				Source:   "org.example",
				Location: "My Name",
				City:     "Some City",
				Coordinates: units.Coordinates{
					Latitude:  units.Coordinate(20.1),
					Longitude: units.Coordinate(10.01234),
				},
				Temperature: units.Celsius(25.5),
			},
		},
		Request: provider.Request{Name: "My Name"},
	}}
	router := newTestRouter(t, tasks, nil)

	rec := get(t, router, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := `weather_temperature_celsius{version="1.0.0-test",source="org.example",location="My Name",city="Some City",latitude="20.1000000",longitude="10.0123400"} 25.5`
	if !strings.Contains(rec.Body.String(), want+"\n") {
		t.Errorf("body missing sample line %q:\n%s", want, rec.Body.String())
	}
}

func TestMetricsMixedHumidity(t *testing.T) {
	humidity := units.Ratio(0.71)
	tasks := []config.Task{
		{
			Provider: &stubProvider{
				id: "org.first",
				weather: provider.Weather{
					Source:           "org.first",
					Location:         "a",
					City:             "a",
					Temperature:      units.Celsius(1),
					RelativeHumidity: &humidity,
				},
			},
			Request: provider.Request{Name: "a"},
		},
		{
			Provider: &stubProvider{
				id: "org.second",
				weather: provider.Weather{
					Source:      "org.second",
					Location:    "b",
					City:        "b",
					Temperature: units.Celsius(2),
				},
			},
			Request: provider.Request{Name: "b"},
		},
	}
	router := newTestRouter(t, tasks, nil)

	body := get(t, router, "/metrics", nil).Body.String()
	if got := strings.Count(body, "# HELP weather_relative_humidity_ratio"); got != 1 {
		t.Errorf("humidity family headers appear %d times, want 1", got)
	}
	if got := strings.Count(body, "weather_relative_humidity_ratio{"); got != 1 {
		t.Errorf("humidity samples = %d, want 1", got)
	}
	if got := strings.Count(body, "weather_temperature_celsius{"); got != 2 {
		t.Errorf("temperature samples = %d, want 2", got)
	}
}

func TestRootNotFound(t *testing.T) {
	router := newTestRouter(t, failingTasks(), nil)

	rec := get(t, router, "/", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := rec.Body.String(); got != "Check /metrics" {
		t.Errorf("body = %q", got)
	}
}

func TestRootRequiresAuth(t *testing.T) {
	router := newTestRouter(t, failingTasks(), map[string]string{"joanna": joannaHash})

	if rec := get(t, router, "/", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
