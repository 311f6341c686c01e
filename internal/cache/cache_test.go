package cache

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHTTPCacheServesFromStore(t *testing.T) {
	c := NewHTTPCache(NewMemoryStore(), time.Minute)
	callCount := 0

	fetch := func() ([]byte, error) {
		callCount++
		return []byte("body"), nil
	}

	for i := 0; i < 3; i++ {
		body, err := c.GetOrFetch("GET https://example.com/weather", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch() error = %v", err)
		}
		if !bytes.Equal(body, []byte("body")) {
			t.Fatalf("GetOrFetch() = %q, want %q", body, "body")
		}
	}

	if callCount != 1 {
		t.Errorf("fetch call count = %d, want 1", callCount)
	}
}

func TestHTTPCacheDoesNotCacheFailures(t *testing.T) {
	c := NewHTTPCache(NewMemoryStore(), time.Minute)
	callCount := 0
	wantErr := errors.New("upstream 502")

	fetch := func() ([]byte, error) {
		callCount++
		if callCount == 1 {
			return nil, wantErr
		}
		return []byte("recovered"), nil
	}

	if _, err := c.GetOrFetch("k", fetch); !errors.Is(err, wantErr) {
		t.Fatalf("first GetOrFetch() error = %v, want %v", err, wantErr)
	}
	body, err := c.GetOrFetch("k", fetch)
	if err != nil {
		t.Fatalf("second GetOrFetch() error = %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("second GetOrFetch() = %q, want %q", body, "recovered")
	}
	if callCount != 2 {
		t.Errorf("fetch call count = %d, want 2 (errors must not be cached)", callCount)
	}
}

func TestHTTPCacheExpiry(t *testing.T) {
	c := NewHTTPCache(NewMemoryStore(), 30*time.Millisecond)
	callCount := 0

	fetch := func() ([]byte, error) {
		callCount++
		return []byte("body"), nil
	}

	_, _ = c.GetOrFetch("k", fetch)
	time.Sleep(50 * time.Millisecond)
	_, _ = c.GetOrFetch("k", fetch)

	if callCount != 2 {
		t.Errorf("fetch call count = %d, want 2 (entry should have expired)", callCount)
	}
}

func TestHTTPCacheCollapsesConcurrentLoads(t *testing.T) {
	c := NewHTTPCache(NewMemoryStore(), time.Minute)
	var mu sync.Mutex
	callCount := 0

	fetch := func() ([]byte, error) {
		mu.Lock()
		callCount++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return []byte("shared"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.GetOrFetch("k", fetch)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v, want nil", i, errs[i])
		}
		if string(results[i]) != "shared" {
			t.Errorf("caller %d body = %q, want %q", i, results[i], "shared")
		}
	}

	mu.Lock()
	got := callCount
	mu.Unlock()
	if got != 1 {
		t.Errorf("fetch call count = %d, want 1 (concurrent loads must collapse)", got)
	}
}

func TestHTTPCacheDistinctKeys(t *testing.T) {
	c := NewHTTPCache(NewMemoryStore(), time.Minute)
	callCount := 0

	fetch := func() ([]byte, error) {
		callCount++
		return []byte("body"), nil
	}

	_, _ = c.GetOrFetch("GET https://example.com/a", fetch)
	_, _ = c.GetOrFetch("GET https://example.com/b", fetch)

	if callCount != 2 {
		t.Errorf("fetch call count = %d, want 2 (distinct keys must not share entries)", callCount)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}

	s.Set("k", []byte("v"), time.Minute)
	body, ok := s.Get("k")
	if !ok || string(body) != "v" {
		t.Errorf("Get(k) = %q, %v, want %q, true", body, ok, "v")
	}
}
