package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/circuitbreaker"
)

func newTestClient() *Client {
	return New(nil, circuitbreaker.NewRegistry(circuitbreaker.Config{}, zap.NewNop()), zap.NewNop())
}

func TestFetchBodySuccess(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"temp": 21.5}`))
	}))
	defer srv.Close()

	c := newTestClient()
	hc := cache.NewHTTPCache(cache.NewMemoryStore(), time.Minute)

	body, err := c.FetchBody(context.Background(), hc, srv.URL+"/weather")
	if err != nil {
		t.Fatalf("FetchBody() error = %v", err)
	}
	if string(body) != `{"temp": 21.5}` {
		t.Errorf("FetchBody() = %q, want %q", body, `{"temp": 21.5}`)
	}

	// Second fetch comes from the cache.
	if _, err := c.FetchBody(context.Background(), hc, srv.URL+"/weather"); err != nil {
		t.Fatalf("second FetchBody() error = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestFetchBodyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient()
	hc := cache.NewHTTPCache(cache.NewMemoryStore(), time.Minute)

	_, err := c.FetchBody(context.Background(), hc, srv.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("FetchBody() error = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", statusErr.StatusCode)
	}
}

func TestFetchBodyFailuresNotCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient()
	hc := cache.NewHTTPCache(cache.NewMemoryStore(), time.Minute)

	if _, err := c.FetchBody(context.Background(), hc, srv.URL); err == nil {
		t.Fatal("first FetchBody() error = nil, want error")
	}
	body, err := c.FetchBody(context.Background(), hc, srv.URL)
	if err != nil {
		t.Fatalf("second FetchBody() error = %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("second FetchBody() = %q, want %q", body, "ok")
	}
}

func TestFetchBodyBreakerOpensPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient()
	hc := cache.NewHTTPCache(cache.NewMemoryStore(), time.Minute)

	// Distinct URLs on the same host share a breaker; three failures trip it.
	for i := 0; i < 3; i++ {
		url := srv.URL + "/p" + string(rune('a'+i))
		if _, err := c.FetchBody(context.Background(), hc, url); err == nil {
			t.Fatalf("fetch %d error = nil, want error", i)
		}
	}

	_, err := c.FetchBody(context.Background(), hc, srv.URL+"/probe")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("FetchBody() after trip error = %v, want ErrOpen", err)
	}
}

func TestFetchBodyBadURL(t *testing.T) {
	c := newTestClient()
	hc := cache.NewHTTPCache(cache.NewMemoryStore(), time.Minute)

	if _, err := c.FetchBody(context.Background(), hc, "://not-a-url"); err == nil {
		t.Error("FetchBody() error = nil, want parse error")
	}
}
