// Package secretslifecycle implements the Secrets Lifecycle Engine:
// versioned, platform-safe secret naming, idempotent creation on the Swarm
// engine, and the doctor/prune/rotate diagnostics and retention operations
// that own the persisted secrets map.
package secretslifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"swarmbender/internal/swarmengine"
	"swarmbender/pkg/backoff"
	"swarmbender/pkg/namesafe"
)

const ownerLabel = "owner"
const ownerValue = "swarmbender"
const scopeLabel = "scope"
const envLabel = "env"

// Engine wraps a swarmengine.Adapter with the retry policy and labeling
// rules the lifecycle operations share.
type Engine struct {
	Adapter swarmengine.Adapter
}

// NewEngine builds a lifecycle Engine over adapter.
func NewEngine(adapter swarmengine.Adapter) *Engine {
	return &Engine{Adapter: adapter}
}

// BaseLabels returns the mandatory owner/scope/env labels, merged with
// policy-defined labels (policyLabels wins on every key except "owner",
// which policy can only override if it explicitly sets one).
func BaseLabels(scope, env string, policyLabels map[string]string) map[string]string {
	out := map[string]string{
		ownerLabel: ownerValue,
		scopeLabel: scope,
		envLabel:   env,
	}
	for k, v := range policyLabels {
		out[k] = v
	}
	return out
}

// retryListOrInspect retries a list/inspect call up to 2 additional times,
// waiting 100ms before the first retry and 400ms before the second (the
// doubling backoff delay multiplied by the retry number); create and remove are
// deliberately not wrapped by this helper, since the spec forbids retrying
// them (their effects may be partial).
func retryListOrInspect[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.New(100*time.Millisecond, 400*time.Millisecond)
	var zero T
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(b.Next() * time.Duration(attempt)):
			}
		}
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// EnsureCreated synthesizes no name itself — callers pass the already
// synthesized name. It fetches the current engine name set (with retry),
// skips if already present (content-addressed names mean an existing name
// implies an identical value), and otherwise submits a create. "Already
// exists" on create is treated as skipped, matching the CLI/API adapters'
// shared idempotency contract.
func (e *Engine) EnsureCreated(ctx context.Context, name string, value []byte, labels map[string]string) (created bool, err error) {
	names, err := retryListOrInspect(ctx, func() (map[string]bool, error) {
		return e.Adapter.ListNames(ctx)
	})
	if err != nil {
		return false, &swarmengine.EngineError{Op: "list-names", Cause: err}
	}
	if names[name] {
		return false, nil
	}
	created, err = e.Adapter.EnsureCreated(ctx, name, value, labels)
	if err != nil {
		return false, err
	}
	return created, nil
}

// versionedKey groups secret names that share a stripped name (the name
// with its trailing "_<version>" suffix removed).
type versionedKey struct {
	stripped string
	records  []swarmengine.SecretRecord
}

// StripVersion removes the final underscore-delimited segment of name,
// treated as its version suffix.
func StripVersion(name string) string {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return name
	}
	return name[:idx]
}

func groupByStrippedName(records []swarmengine.SecretRecord) []versionedKey {
	groups := make(map[string][]swarmengine.SecretRecord)
	var order []string
	for _, r := range records {
		stripped := StripVersion(r.Name)
		if _, seen := groups[stripped]; !seen {
			order = append(order, stripped)
		}
		groups[stripped] = append(groups[stripped], r)
	}
	out := make([]versionedKey, 0, len(order))
	for _, k := range order {
		out = append(out, versionedKey{stripped: k, records: groups[k]})
	}
	return out
}

// DoctorReport is the result of a consistency check between the secrets map
// and the engine's current state.
type DoctorReport struct {
	MissingOnEngine  []string
	OrphanedOnEngine []string
	MultiVersions    [][]swarmengine.SecretRecord
}

// Doctor compares the secrets map against the engine's owned secrets.
func (e *Engine) Doctor(ctx context.Context, secretsMap *SecretsMap) (*DoctorReport, error) {
	detailed, err := retryListOrInspect(ctx, func() ([]swarmengine.SecretRecord, error) {
		return e.Adapter.ListDetailed(ctx)
	})
	if err != nil {
		return nil, &swarmengine.EngineError{Op: "list-detailed", Cause: err}
	}

	engineNames := make(map[string]bool, len(detailed))
	owned := make([]swarmengine.SecretRecord, 0, len(detailed))
	for _, r := range detailed {
		engineNames[r.Name] = true
		if r.Labels[ownerLabel] == ownerValue {
			owned = append(owned, r)
		}
	}

	mapNames := make(map[string]bool)
	for _, k := range secretsMap.Keys() {
		name, _ := secretsMap.Get(k)
		mapNames[name] = true
	}

	report := &DoctorReport{}
	for _, k := range secretsMap.Keys() {
		name, _ := secretsMap.Get(k)
		if !engineNames[name] {
			report.MissingOnEngine = append(report.MissingOnEngine, name)
		}
	}
	for _, r := range owned {
		if !mapNames[r.Name] {
			report.OrphanedOnEngine = append(report.OrphanedOnEngine, r.Name)
		}
	}
	for _, group := range groupByStrippedName(owned) {
		if len(group.records) > 1 {
			report.MultiVersions = append(report.MultiVersions, group.records)
		}
	}
	return report, nil
}

// PruneResult reports what prune kept and removed for one stripped-key
// group.
type PruneResult struct {
	Stripped string
	Kept     []string
	Removed  []string
	Failures map[string]error
}

// Prune keeps the `keep` most-recently-created secrets per stripped-name
// group (default 2) among engine secrets labeled owner=swarmbender (and
// optionally a matching scope/env), removing the rest. In dry-run mode no
// engine mutation happens. A single name's removal failure is reported and
// does not abort the rest of the batch.
func (e *Engine) Prune(ctx context.Context, env, scope string, keep int, dryRun bool) ([]PruneResult, error) {
	if keep <= 0 {
		keep = 2
	}
	detailed, err := retryListOrInspect(ctx, func() ([]swarmengine.SecretRecord, error) {
		return e.Adapter.ListDetailed(ctx)
	})
	if err != nil {
		return nil, &swarmengine.EngineError{Op: "list-detailed", Cause: err}
	}

	filtered := make([]swarmengine.SecretRecord, 0, len(detailed))
	for _, r := range detailed {
		if r.Labels[ownerLabel] != ownerValue {
			continue
		}
		if env != "" && r.Labels[envLabel] != env {
			continue
		}
		if scope != "" && r.Labels[scopeLabel] != scope {
			continue
		}
		filtered = append(filtered, r)
	}

	var results []PruneResult
	for _, group := range groupByStrippedName(filtered) {
		sort.Slice(group.records, func(i, j int) bool {
			return group.records[i].CreatedAt.After(group.records[j].CreatedAt)
		})
		result := PruneResult{Stripped: group.stripped, Failures: map[string]error{}}
		for i, r := range group.records {
			if i < keep {
				result.Kept = append(result.Kept, r.Name)
				continue
			}
			if dryRun {
				result.Removed = append(result.Removed, r.Name)
				continue
			}
			if _, err := e.Adapter.Remove(ctx, r.Name); err != nil {
				result.Failures[r.Name] = err
				continue
			}
			result.Removed = append(result.Removed, r.Name)
		}
		results = append(results, result)
	}
	return results, nil
}

// RotateRequest is one key to rotate to a new value.
type RotateRequest struct {
	FlatKey      string
	Scope        string
	Env          string
	Key          string // the name-synthesis "key" component (post Hub processing)
	NewValue     []byte
	VersionMode  namesafe.VersionMode
	KVVersion    string
	HMACSalt     string
	SerialValue  string
	Labels       map[string]string
	Keep         int // if >= 0, prune older versions of this key down to Keep after rotation; 0 uses Prune's default of 2
}

// RotateResult reports the outcome of rotating a single key.
type RotateResult struct {
	FlatKey    string
	NewName    string
	Created    bool
	PruneStats *PruneResult
	PruneErr   error
}

// Rotate computes a new versioned name for every request and ensure-creates
// it on the engine; only after every request has succeeded does it write
// secretsMap to disk — the map write is the batch's atomicity boundary. Any
// per-key retention prune (req.Keep >= 0) runs strictly after that write
// succeeds, per §4.6: a prune failure is reported on the affected result but
// never rolls back the map or re-creates a removed secret.
//
// req.Scope is already the fully-resolved scope segment (a stack ID, or
// "global") as chosen by the caller; it is passed straight through to
// namesafe.Synthesize as the scope, not combined with anything else.
func (e *Engine) Rotate(ctx context.Context, secretsMap *SecretsMap, mapPath string, requests []RotateRequest) ([]RotateResult, error) {
	pending := secretsMap.Clone()
	results := make([]RotateResult, 0, len(requests))
	names := make([]string, len(requests))

	for i, req := range requests {
		version := namesafe.Suffix(req.VersionMode, string(req.NewValue), req.KVVersion, req.HMACSalt, req.SerialValue)
		name := namesafe.Synthesize(req.Scope, "", req.Env, req.Key, version)
		labels := BaseLabels(req.Scope, req.Env, req.Labels)

		created, err := e.EnsureCreated(ctx, name, req.NewValue, labels)
		if err != nil {
			return nil, fmt.Errorf("rotate %s: %w", req.FlatKey, err)
		}
		pending.Set(req.FlatKey, name)
		names[i] = name
		results = append(results, RotateResult{FlatKey: req.FlatKey, NewName: name, Created: created})
	}

	if err := pending.Save(mapPath); err != nil {
		return nil, err
	}
	*secretsMap = *pending

	for i, req := range requests {
		if req.Keep < 0 {
			continue
		}
		// Plan over the env/scope, then remove only this key's group.
		pruneResults, err := e.Prune(ctx, req.Env, req.Scope, req.Keep, true)
		if err != nil {
			// The map write already succeeded; a failed post-rotation prune
			// is surfaced on the result, not treated as a Rotate failure.
			results[i].PruneErr = err
			continue
		}
		for j := range pruneResults {
			if pruneResults[j].Stripped != StripVersion(names[i]) {
				continue
			}
			stats := pruneResults[j]
			planned := stats.Removed
			stats.Removed = nil
			for _, name := range planned {
				if _, err := e.Adapter.Remove(ctx, name); err != nil {
					stats.Failures[name] = err
					continue
				}
				stats.Removed = append(stats.Removed, name)
			}
			results[i].PruneStats = &stats
			break
		}
	}
	return results, nil
}
