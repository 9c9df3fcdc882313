package cgisession

import (
	"context"
	"encoding/json"
	"maps"
	"math"
)

// VisitsKey is the counter incremented on every request that resolves a session.
const VisitsKey = "visits"

// Values holds the named counters and values of a session.
type Values map[string]any

// Int returns the named value as an integer. Numbers decoded from storage
// may arrive as int64, float64 or json.Number.
func (v Values) Int(key string) int64 {
	switch n := v[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Add increments the named counter and returns the new value.
func (v Values) Add(key string, delta int64) int64 {
	n := v.Int(key) + delta
	v[key] = n
	return n
}

func (v Values) clone() Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}

// Session represents a visitor session.
type Session struct {
	ID     string
	Values Values
}

// Visits returns the visit counter.
func (s *Session) Visits() int64 {
	return s.Values.Int(VisitsKey)
}

// Sessions is the full token to values mapping persisted by a Store.
type Sessions map[string]Values

// Clone returns a deep copy of the mapping (one level into the values).
func (s Sessions) Clone() Sessions {
	out := make(Sessions, len(s))
	for id, v := range s {
		out[id] = v.clone()
	}
	return out
}

// Store defines the interface for session persistence. The whole mapping is
// loaded and rewritten at once; there is no per-session update.
type Store interface {
	// Load returns the persisted mapping. A store that has never been saved
	// returns an empty mapping and no error.
	Load(ctx context.Context) (Sessions, error)
	// Save replaces the persisted mapping with sessions.
	Save(ctx context.Context, sessions Sessions) error
	// Close releases the store's resources.
	Close() error
}

// Locker serializes load/modify/save cycles across processes sharing a store.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done. The returned
	// function releases it.
	Lock(ctx context.Context) (unlock func() error, err error)
}

// normalizeNumber turns a decoded json.Number into int64 when integral.
func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	}
	return n.String()
}
