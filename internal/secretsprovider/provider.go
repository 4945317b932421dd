// Package secretsprovider implements the Secret Provider Hub: pluggable
// key/value sources aggregated, filtered and key-mapped per a SecretsPolicy
// before the Secrets Lifecycle Engine versions and publishes them.
package secretsprovider

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"swarmbender/pkg/globmatch"
	"swarmbender/pkg/log"
	"swarmbender/pkg/ordered"
)

// Provider resolves a scope/env pair to a set of flat-key candidates.
type Provider interface {
	Name() string
	Get(root, scope, env string) (*ordered.TypedMap[string], error)
}

// EnvProvider sources candidates from the process environment. Since the OS
// environment has no canonical order, keys are sorted for determinism.
type EnvProvider struct {
	Environ func() []string // overridable for tests; defaults to os.Environ
}

func (EnvProvider) Name() string { return "env" }

func (p EnvProvider) Get(root, scope, env string) (*ordered.TypedMap[string], error) {
	environ := p.Environ
	if environ == nil {
		environ = os.Environ
	}
	return fromEnviron(environ()), nil
}

func fromEnviron(environ []string) *ordered.TypedMap[string] {
	pairs := make(map[string]string, len(environ))
	keys := make([]string, 0, len(environ))
	for _, kv := range environ {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		k := kv[:idx]
		pairs[k] = kv[idx+1:]
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ordered.NewTypedMap[string]()
	for _, k := range keys {
		out.Set(k, pairs[k])
	}
	return out
}

// FileProvider sources candidates from secrets/files/<scope>/<env>/*.secret,
// one file per key, keyed by filename without the .secret extension.
type FileProvider struct{}

func (FileProvider) Name() string { return "file" }

func (FileProvider) Get(root, scope, env string) (*ordered.TypedMap[string], error) {
	dir := filepath.Join(root, "secrets", "files", scope, env)
	matches, err := filepath.Glob(filepath.Join(dir, "*.secret"))
	if err != nil {
		return nil, log.Errorf("file provider glob failed: %v", err)
	}
	sort.Strings(matches)
	out := ordered.NewTypedMap[string]()
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, log.Errorf("file provider: reading %s: %v", path, err)
		}
		key := strings.TrimSuffix(filepath.Base(path), ".secret")
		out.Set(key, strings.TrimRight(string(data), "\r\n"))
	}
	return out, nil
}

// Resolve returns the built-in providers in their fixed declared order.
// External providers (Azure Key Vault, Infisical, ...) plug into the same
// Provider interface but their HTTP clients are out of scope here.
func Resolve() []Provider {
	return []Provider{EnvProvider{}, FileProvider{}}
}

// ReplaceRule is one ordered substring substitution applied to a flat key
// when computing its external name.
type ReplaceRule struct {
	From string
	To   string
}

// Policy is the subset of SecretsPolicy the Hub needs to turn aggregated
// flat keys into the key component of a synthesized secret name.
type Policy struct {
	IncludeGlobs []string
	RenameMap    map[string]string
	ReplaceRules []ReplaceRule
	KeyTemplate  string // default "{key}"
}

// Hub aggregates provider outputs and applies the include/rename/replace/
// template pipeline.
type Hub struct {
	Providers []Provider
}

// NewHub builds a Hub over the built-in provider set.
func NewHub() *Hub {
	return &Hub{Providers: Resolve()}
}

// Aggregate merges every provider's output in declared order. Each key's
// position in the result is fixed by its first-seen provider; its value is
// last-wins across providers (a later provider overrides an earlier one's
// value for the same key without moving it).
func (h *Hub) Aggregate(root, scope, env string) (*ordered.TypedMap[string], error) {
	out := ordered.NewTypedMap[string]()
	for _, p := range h.Providers {
		candidates, err := p.Get(root, scope, env)
		if err != nil {
			return nil, log.Errorf("provider %s: %v", p.Name(), err)
		}
		log.Debug("aggregated provider candidates", "provider", p.Name(), "scope", scope, "env", env, "count", candidates.Len())
		for _, k := range candidates.Keys() {
			v, _ := candidates.Get(k)
			out.Set(k, v)
		}
	}
	return out, nil
}

// flatKeySeparators normalizes "." and ":" to the "__" separator used by
// JSON-flattened app-settings keys (pkg/flatten), so an include glob written
// as "db.password" or "db:password" matches an aggregated "db__password".
var flatKeySeparators = strings.NewReplacer(".", "__", ":", "__")

// normalizeFlatKey applies flatKeySeparators to a policy glob pattern.
func normalizeFlatKey(s string) string { return flatKeySeparators.Replace(s) }

// Filter keeps only keys matching policy's include globs (case-insensitive);
// an empty IncludeGlobs list passes every key. Globs are normalized to the
// "__"-joined form before matching so dotted/colon-separated policy syntax
// still matches flattened keys.
func Filter(aggregated *ordered.TypedMap[string], policy Policy) *ordered.TypedMap[string] {
	globs := make([]string, len(policy.IncludeGlobs))
	for i, g := range policy.IncludeGlobs {
		globs[i] = normalizeFlatKey(g)
	}
	out := ordered.NewTypedMap[string]()
	for _, k := range aggregated.Keys() {
		if globmatch.MatchAny(globs, normalizeFlatKey(k)) {
			v, _ := aggregated.Get(k)
			out.Set(k, v)
		}
	}
	log.Debug("filtered secret candidates", "matched", out.Len(), "total", aggregated.Len())
	return out
}

// ExternalKey computes the key component used in secret name synthesis: the
// policy's rename map wins outright; otherwise the ordered replace rules are
// applied to flatKey, then the key template (default "{key}") substitutes
// {key} and {scope}.
func ExternalKey(flatKey string, policy Policy, scope string) string {
	if renamed, ok := policy.RenameMap[flatKey]; ok {
		return renamed
	}
	key := flatKey
	for _, r := range policy.ReplaceRules {
		key = strings.ReplaceAll(key, r.From, r.To)
	}
	tmpl := policy.KeyTemplate
	if tmpl == "" {
		tmpl = "{key}"
	}
	tmpl = strings.ReplaceAll(tmpl, "{scope}", scope)
	tmpl = strings.ReplaceAll(tmpl, "{key}", key)
	return tmpl
}

// ReverseKey undoes ExternalKey's replace-rule substitutions for an external
// key read back from a provider (the "download" direction of §4.5's replace
// rules), applying the rules in reverse order with From/To swapped. Rename
// map overrides are not invertible and are left as-is.
func ReverseKey(externalKey string, policy Policy) string {
	key := externalKey
	for i := len(policy.ReplaceRules) - 1; i >= 0; i-- {
		r := policy.ReplaceRules[i]
		key = strings.ReplaceAll(key, r.To, r.From)
	}
	return key
}
