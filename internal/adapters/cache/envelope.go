package cache

import "time"

// Envelope is a cached value together with its freshness horizons.
// ExpiresAt <= StaleUntil always holds for envelopes created by newEnvelope.
type Envelope[T any] struct {
	Value      T         `json:"value"`
	ExpiresAt  time.Time `json:"expiresAt"`
	StaleUntil time.Time `json:"staleUntil"`
}

func newEnvelope[T any](value T, now time.Time, opts Options) Envelope[T] {
	return Envelope[T]{
		Value:      value,
		ExpiresAt:  now.Add(opts.TTL),
		StaleUntil: now.Add(opts.TTL + opts.Stale),
	}
}

func (e Envelope[T]) isFresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// isUsable reports whether the value may still be served, fresh or stale
func (e Envelope[T]) isUsable(now time.Time) bool {
	return now.Before(e.StaleUntil)
}
