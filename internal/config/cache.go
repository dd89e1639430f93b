package config

import (
	"strings"
	"time"
)

// CacheConfig controls the per-user response cache in front of the
// placement read endpoints.  Caching is off when Enabled is false or Redis
// is not configured.
//
// Keys have the form <Prefix>:g<generation>:u:<user id>:<hash>, so one
// student never sees another's filtered updates.  The generation counter
// lives at <Prefix>:gen and every successful write through the cached
// group bumps it; older entries simply age out after TTL.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool // upper-cased, usually just GET
	TTL          time.Duration
	KeyStrategy  string // route | route_query | method_route | method_route_query
	Prefix       string
	MaxBodyBytes int // larger responses are passed through uncached
}

// LoadCacheConfig reads CACHE_* variables.  Export downloads can exceed
// MaxBodyBytes and are then never cached.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route_query")),
		Prefix:       strings.TrimSuffix(envStr("CACHE_PREFIX", "placement:cache"), ":"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = map[string]bool{"GET": true}
	}
	return cfg
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
