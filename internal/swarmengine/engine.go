// Package swarmengine abstracts the Docker Swarm secret operations the
// Secrets Lifecycle Engine needs, behind one contract implemented by a
// native API adapter, a CLI-shelling adapter and (in tests) a fake.
package swarmengine

import (
	"context"
	"time"
)

// SecretRecord is one secret or config as reported by the engine.
type SecretRecord struct {
	Name      string
	CreatedAt time.Time
	Labels    map[string]string
}

// Adapter is the Engine Adapter contract: list-names, list-detailed,
// ensure-created and remove, implemented identically whether backed by the
// native Docker API or a `docker secret` CLI shell-out.
type Adapter interface {
	// ListNames returns the set of secret names currently on the engine.
	ListNames(ctx context.Context) (map[string]bool, error)
	// ListDetailed returns every secret with its creation time and labels.
	ListDetailed(ctx context.Context) ([]SecretRecord, error)
	// EnsureCreated creates name if absent. Returns true if it created the
	// secret, false if it already existed (idempotent "already exists").
	EnsureCreated(ctx context.Context, name string, value []byte, labels map[string]string) (bool, error)
	// Remove deletes name. Returns true if removal happened, false if the
	// name was already absent.
	Remove(ctx context.Context, name string) (bool, error)
}

// EngineError wraps a failed engine operation other than "already exists".
type EngineError struct {
	Op    string
	Cause error
}

func (e *EngineError) Error() string { return "engine error during " + e.Op + ": " + e.Cause.Error() }
func (e *EngineError) Unwrap() error { return e.Cause }

// Timeout reports that an engine operation exceeded its per-operation
// deadline. The adapters in this package do not return it: a deadline hit
// inside an adapter call comes back as that call's EngineError.
type Timeout struct {
	Op string
}

func (t *Timeout) Error() string { return "timeout during engine op " + t.Op }
