package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-placement/internal/config"
)

var errMiss = errors.New("miss")

// memStore is an in-memory cacheStore; TTLs are ignored.
type memStore struct {
	mu   sync.Mutex
	vals map[string][]byte
	gens map[string]int64
}

func newMemStore() *memStore {
	return &memStore{vals: map[string][]byte{}, gens: map[string]int64{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return nil, errMiss
	}
	return v, nil
}

func (m *memStore) SetEx(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = val
	return nil
}

func (m *memStore) Generation(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key], nil
}

func (m *memStore) Bump(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[key]++
	return m.gens[key], nil
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{"GET": true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "placement:cache",
	}
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestCacheServesHitsUntilWrite(t *testing.T) {
	var (
		mu    sync.Mutex
		state = "open"
	)
	e := echo.New()
	cache := newResponseCache(testCacheConfig(), newMemStore(), nil)
	e.GET("/placements/:id", func(c echo.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return c.String(http.StatusOK, state)
	}, cache)
	e.PATCH("/placements/:id", func(c echo.Context) error {
		mu.Lock()
		state = "closed"
		mu.Unlock()
		return c.NoContent(http.StatusNoContent)
	}, cache)

	if rec := get(e, "/placements/1"); rec.Header().Get("X-Cache") != "MISS" || rec.Body.String() != "open" {
		t.Fatalf("first read: %s %q", rec.Header().Get("X-Cache"), rec.Body)
	}
	if rec := get(e, "/placements/1"); rec.Header().Get("X-Cache") != "HIT" || rec.Body.String() != "open" {
		t.Fatalf("second read: %s %q", rec.Header().Get("X-Cache"), rec.Body)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/placements/1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("write status = %d", rec.Code)
	}

	if rec := get(e, "/placements/1"); rec.Header().Get("X-Cache") != "MISS" || rec.Body.String() != "closed" {
		t.Fatalf("read after write: %s %q", rec.Header().Get("X-Cache"), rec.Body)
	}
}

// A read that computed its body before a write, but finishes after it,
// must not be served to later readers.
func TestCacheReadOverlappingWriteIsNotServedAfterIt(t *testing.T) {
	e := echo.New()
	cache := newResponseCache(testCacheConfig(), newMemStore(), nil)

	state := "open"
	e.PATCH("/placements/:id", func(c echo.Context) error {
		state = "closed"
		return c.NoContent(http.StatusNoContent)
	}, cache)
	slow := true
	e.GET("/placements/:id", func(c echo.Context) error {
		body := state
		if slow {
			slow = false
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/placements/1", nil))
			if rec.Code != http.StatusNoContent {
				t.Errorf("write status = %d", rec.Code)
			}
		}
		return c.String(http.StatusOK, body)
	}, cache)

	if rec := get(e, "/placements/1"); rec.Body.String() != "open" {
		t.Fatalf("overlapping read = %q", rec.Body)
	}
	rec := get(e, "/placements/1")
	if rec.Body.String() != "closed" {
		t.Fatalf("read after write served stale %q (X-Cache %s)", rec.Body, rec.Header().Get("X-Cache"))
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("X-Cache = %s", rec.Header().Get("X-Cache"))
	}
}

func TestCacheFailedWriteKeepsEntries(t *testing.T) {
	e := echo.New()
	store := newMemStore()
	cache := newResponseCache(testCacheConfig(), store, nil)
	e.GET("/placements/:id", func(c echo.Context) error { return c.String(http.StatusOK, "open") }, cache)
	e.PATCH("/placements/:id", func(c echo.Context) error {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}, cache)

	get(e, "/placements/1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/placements/1", nil))
	if g, _ := store.Generation(context.Background(), "placement:cache:gen"); g != 0 {
		t.Fatalf("generation bumped by a rejected write: %d", g)
	}
	if rec := get(e, "/placements/1"); rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache = %s", rec.Header().Get("X-Cache"))
	}
}
