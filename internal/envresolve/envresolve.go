// Package envresolve builds a service's final environment map from the four
// last-wins sources documented for the Render Pipeline's EnvironmentApply
// stage: env_file entries, the service's own environment block, the
// aggregated overlay environment, and an allow-listed slice of the process
// environment.
package envresolve

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"swarmbender/pkg/caseinsens"
	"swarmbender/pkg/dotenv"
	"swarmbender/pkg/flatten"
)

// ProcessEnvLookup abstracts os.LookupEnv so tests can inject a fake host
// environment.
type ProcessEnvLookup func(key string) (string, bool)

// Resolver builds final per-service environment maps.
type Resolver struct {
	Lookup ProcessEnvLookup
}

// New returns a Resolver backed by the real process environment.
func New() *Resolver {
	return &Resolver{Lookup: os.LookupEnv}
}

// Resolve folds the four sources in last-wins order and returns the final
// environment as an insertion-ordered case-insensitive map.
//
//   - envFilePaths are parsed left to right with pkg/dotenv.
//   - serviceEnv is the service's own (already variant-normalized) environment.
//   - overlayEnv is the aggregated overlay environment (e.g. flattened
//     appsettings merged at the overlay step, or a cross-service env block).
//   - allowlist names the process-env keys the render is permitted to read.
func (r *Resolver) Resolve(envFilePaths []string, serviceEnv map[string]string, overlayEnv map[string]string, allowlist []string) (*caseinsens.Map, error) {
	out := caseinsens.New()

	for _, path := range envFilePaths {
		kvs, err := dotenv.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("env_file %s: %w", path, err)
		}
		for _, kv := range kvs {
			out.Set(kv.Key, kv.Value)
		}
	}

	setSorted(out, serviceEnv)
	setSorted(out, overlayEnv)

	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range allowlist {
		if v, ok := lookup(name); ok {
			out.Set(name, v)
		}
	}

	return out, nil
}

// setSorted applies entries of m to out in a deterministic (sorted) key
// order; relative ordering among the map's own keys has no documented
// meaning, only that every key in this source wins over earlier sources.
func setSorted(out *caseinsens.Map, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Set(k, m[k])
	}
}

// LoadAllowlist parses use-envvars.json, which may be either a JSON array of
// key names or a JSON object whose keys are the allow-listed names.
func LoadAllowlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read allowlist %s: %w", path, err)
	}
	var asArray []string
	if err := json.Unmarshal(data, &asArray); err == nil {
		return asArray, nil
	}
	var asObject map[string]any
	if err := json.Unmarshal(data, &asObject); err == nil {
		keys := make([]string, 0, len(asObject))
		for k := range asObject {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	}
	return nil, fmt.Errorf("use-envvars.json %s is neither a JSON array nor object", path)
}

// LoadAppSettings reads an appsettings*.json file and flattens it to
// A__B__C-joined keys, per §4.3's scalar-flattening rules.
func LoadAppSettings(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app-settings file %s: %w", path, err)
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse app-settings file %s: %w", path, err)
	}
	return flatten.Flatten(parsed), nil
}
