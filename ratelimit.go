package request

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// KeyFunc maps a request to a rate limiter key.
type KeyFunc func(*http.Request) string

// RateLimiterRegistry holds token bucket limiters per key with a fallback for
// keys that have no limiter of their own.
type RateLimiterRegistry struct {
	limiters map[string]*rate.Limiter
	keyFunc  KeyFunc
	fallback *rate.Limiter
	mutex    sync.RWMutex
}

// NewRateLimiterRegistry creates a new rate limiter registry with the given key function and fallback limiter.
func NewRateLimiterRegistry(keyFunc KeyFunc, fallback *rate.Limiter) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// RegisterLimiter adds a limiter for the given key.
func (r *RateLimiterRegistry) RegisterLimiter(key string, limiter *rate.Limiter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.limiters[key] = limiter
}

// GetLimiter returns the limiter for the given request, using the key function to determine the key.
// If no specific limiter is found, returns the fallback limiter.
func (r *RateLimiterRegistry) GetLimiter(req *http.Request) (*rate.Limiter, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}

	key := r.keyFunc(req)

	r.mutex.RLock()
	limiter, exists := r.limiters[key]
	r.mutex.RUnlock()

	if exists {
		return limiter, key
	}
	if r.fallback != nil {
		return r.fallback, "default"
	}
	return nil, key
}

// Wait blocks until the request's limiter grants a token or ctx ends. The
// returned bool reports whether the request had to wait.
func (r *RateLimiterRegistry) Wait(ctx context.Context, req *http.Request) (bool, string, error) {
	limiter, key := r.GetLimiter(req)
	if limiter == nil || limiter.Allow() {
		return false, key, nil
	}
	return true, key, limiter.Wait(ctx)
}

// DefaultHostKeyFunc generates a key based on the request host.
func DefaultHostKeyFunc(req *http.Request) string {
	if req.URL.Host != "" {
		return "host:" + req.URL.Host
	}
	if req.Host != "" {
		return "host:" + req.Host
	}
	return "host:unknown"
}

// DefaultRouteKeyFunc generates a key based on the request method and path.
func DefaultRouteKeyFunc(req *http.Request) string {
	return "route:" + req.Method + ":" + req.URL.Path
}
