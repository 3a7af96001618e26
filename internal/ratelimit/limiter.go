// Package ratelimit implements sliding-window-log admission control keyed by
// composite caller identity. Window state lives behind the Store interface so
// the pipeline is decoupled from storage lifetime: the in-memory store serves
// single-process deployments, the redis store multi-process ones.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	Total     int // requests currently counted in the window
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d *Decision) RetryAfter(now time.Time) int64 {
	seconds := int64(d.ResetTime.Sub(now).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// Store holds per-key window state. Admit must be linearizable per key: two
// concurrent calls on the same key at remaining==1 must admit exactly one.
// A rejected attempt is never recorded, so a caller that backs off is not
// penalized twice.
type Store interface {
	Admit(ctx context.Context, key string, limit int, window time.Duration) (*Decision, error)
	Close() error
}

// Sweeper is implemented by stores that need periodic reclamation of
// abandoned keys. Sweeping only bounds memory; it never affects admission
// decisions.
type Sweeper interface {
	Sweep(retention time.Duration) int
}

// Limiter applies per-class limits on top of a Store.
type Limiter struct {
	store      Store
	classifier *Classifier
	enabled    bool
}

// NewLimiter creates a limiter. When enabled is false every check admits.
func NewLimiter(store Store, classifier *Classifier, enabled bool) *Limiter {
	return &Limiter{
		store:      store,
		classifier: classifier,
		enabled:    enabled,
	}
}

// Admit checks the key against the class limits.
func (l *Limiter) Admit(ctx context.Context, key string, class Class) (*Decision, error) {
	if !l.enabled {
		return &Decision{
			Allowed:   true,
			Limit:     class.Max,
			Remaining: class.Max,
			ResetTime: time.Now().Add(class.Window),
		}, nil
	}

	return l.store.Admit(ctx, key, class.Max, class.Window)
}

// Classifier returns the limiter's request classifier.
func (l *Limiter) Classifier() *Classifier {
	return l.classifier
}

// Store returns the underlying window store.
func (l *Limiter) Store() Store {
	return l.store
}
