package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-placement/internal/config"
	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/utils"
)

const testSecret = "test-secret"

func newProtectedEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	chain := append([]echo.MiddlewareFunc{JWTAuth(testSecret)}, mw...)
	e.GET("/who", func(c echo.Context) error {
		a, ok := ActorFrom(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": a.ID, "kind": a.Kind.String()})
	}, chain...)
	return e
}

func do(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, role, 5)
	if err != nil {
		t.Fatal(err)
	}
	return tok.Token
}

func TestJWTAuthResolvesActor(t *testing.T) {
	e := newProtectedEcho()
	rec := do(e, token(t, 9, model.RoleSuperAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if want := `{"id":9,"kind":"superadmin"}`; rec.Body.String() != want+"\n" {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	e := newProtectedEcho()
	other, _ := utils.NewAccessToken("other-secret", 9, model.RoleAdmin, 5)

	for name, tok := range map[string]string{
		"missing":      "",
		"wrong secret": other.Token,
		"unknown role": token(t, 9, "OWNER"),
	} {
		if rec := do(e, tok); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	e := newProtectedEcho(RequireRole(model.ActorAdmin, model.ActorSuperAdmin))
	if rec := do(e, token(t, 3, model.RoleStudent)); rec.Code != http.StatusForbidden {
		t.Fatalf("student status = %d", rec.Code)
	}
	if rec := do(e, token(t, 4, model.RoleAdmin)); rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole(model.ActorStudent))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRedisBackedMiddlewarePassThroughWithoutClient(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("status=%d body=%q x-cache=%q", rec.Code, rec.Body, rec.Header().Get("X-Cache"))
	}
}

func TestCacheKeyIsPerUser(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	keyFor := func(uid string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/placements/1?x=1", nil), httptest.NewRecorder())
		c.SetPath("/v1/placements/:id")
		if uid != "" {
			c.Set(userIDKey, uid)
		}
		return cacheKeyFrom(cfg, c, 3)
	}
	if keyFor("1") == keyFor("2") {
		t.Fatal("different users share a cache key")
	}
	if keyFor("1") != keyFor("1") {
		t.Fatal("cache key not stable")
	}
	if got := keyFor(""); !strings.HasPrefix(got, "cache:g3:u:guest:") {
		t.Fatalf("guest key = %s", got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"a":1}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload([]byte{1, 2}); ok {
		t.Fatal("short payload decoded")
	}
}
