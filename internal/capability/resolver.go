// Package capability maps workflow roles to the capabilities the HTTP layer
// checks, with a short-lived cache in front of the policy.
package capability

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/model"
)

type cached struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver. Entries are keyed by
// subject and role and live for ttl. Concurrent misses for the same key
// share one policy evaluation.
type Resolver struct {
	evaluator  model.PolicyEvaluator
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	now        func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cached
}

func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		now:       time.Now,
		entries:   make(map[string]cached),
	}
}

func (r *Resolver) WithMetrics(m *observability.Metrics) *Resolver {
	r.metrics = m
	return r
}

// WithMaxEntries caps the cache size. Zero means unbounded.
func (r *Resolver) WithMaxEntries(n int) *Resolver {
	r.maxEntries = n
	return r
}

// Resolve returns the caller's capabilities.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := rctx.Principal()
	if caps, ok := r.lookup(key); ok {
		r.metrics.RecordCapabilityCacheHit()
		return caps, nil
	}
	r.metrics.RecordCapabilityCacheMiss()

	v, err, _ := r.group.Do(key, func() (any, error) {
		caps, err := r.evaluator.ResolveCapabilities(rctx)
		if err != nil {
			return nil, err
		}
		r.store(key, caps)
		return caps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(model.CapabilitySet), nil
}

func (r *Resolver) lookup(key string) (model.CapabilitySet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || !r.now().Before(e.expires) {
		return nil, false
	}
	return e.caps, true
}

func (r *Resolver) store(key string, caps model.CapabilitySet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		r.evictLocked(now)
	}
	r.entries[key] = cached{caps: caps, expires: now.Add(r.ttl)}
}

// evictLocked drops expired entries, then the entries closest to expiry
// until there is room for one more.
func (r *Resolver) evictLocked(now time.Time) {
	for k, e := range r.entries {
		if !now.Before(e.expires) {
			delete(r.entries, k)
		}
	}
	for len(r.entries) >= r.maxEntries {
		var oldest string
		var at time.Time
		for k, e := range r.entries {
			if oldest == "" || e.expires.Before(at) {
				oldest, at = k, e.expires
			}
		}
		delete(r.entries, oldest)
	}
}

// Invalidate drops every cached role for subjectID.
func (r *Resolver) Invalidate(subjectID string) {
	prefix := subjectID + ":"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			delete(r.entries, key)
		}
	}
}

// Len reports the number of cached entries, expired ones included.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
