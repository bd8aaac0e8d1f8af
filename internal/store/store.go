// Package store reads and writes bin records kept under a single collection
// path of a remote key-value store.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an update targets a key that does not exist.
	ErrNotFound = errors.New("bin not found")
	// ErrUnavailable is returned while the store circuit breaker is open.
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidKey is returned for keys the backends cannot address.
	ErrInvalidKey = errors.New("invalid bin key")
)

// Entry is one raw record as held by the store.
type Entry struct {
	Key    string
	Fields map[string]any // nil when the stored value is not an object
}

// Store is the remote store client. Implementations must be safe for
// concurrent use.
type Store interface {
	// Snapshot reads every record under the collection, ordered by key.
	// A missing collection yields an empty slice.
	Snapshot(ctx context.Context) ([]Entry, error)
	// Update merges fields into an existing record, ErrNotFound otherwise.
	Update(ctx context.Context, key string, fields map[string]any) error
	// Put merges fields into a record, creating it when absent.
	Put(ctx context.Context, key string, fields map[string]any) error
	// Close releases the client.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFirebase = "firebase"
	BackendInflux   = "influx"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string
	Path     string // collection path, e.g. "dustbins"
	Firebase FirebaseConfig
	Influx   InfluxConfig
	Breaker  BreakerSettings
}

// Open constructs the configured backend wrapped in a circuit breaker.
// The caller owns the returned store and must Close it on shutdown.
func Open(ctx context.Context, cfg Config) (*Guarded, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		s = NewMemory(nil)
	case BackendFirebase:
		fc := cfg.Firebase
		if fc.Path == "" {
			fc.Path = cfg.Path
		}
		s, err = NewFirebase(ctx, fc)
	case BackendInflux:
		ic := cfg.Influx
		if ic.Measurement == "" {
			ic.Measurement = cfg.Path
		}
		s, err = NewInflux(ic)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return NewGuarded(s, cfg.Breaker), nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}

// ValidKey rejects keys that are empty or contain characters the Realtime
// Database forbids in a path segment.
func ValidKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, ".$#[]/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// defaultTimeout bounds backend calls made without a caller deadline.
const defaultTimeout = 5 * time.Second

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
