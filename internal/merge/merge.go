// Package merge implements the generic deep-merge engine the Render
// Pipeline's Overlay stage folds layered overlay documents through. It
// operates on the raw ordered-tree representation (see internal/compose's
// ToRaw/FromRaw) rather than the typed compose schema, so overlay fragments
// don't need to be complete, valid compose documents.
package merge

import "swarmbender/pkg/ordered"

const wildcardService = "*"

// Merge folds overlay on top of base and returns a new tree; neither input
// is mutated.
//
//   - mapping ∩ mapping: recurse key-wise, overlay keys win, base-only keys
//     are kept.
//   - sequence or scalar collision: overlay replaces base wholesale (never
//     concatenated).
//   - mismatched kinds (e.g. a list overlaying a map): overlay replaces base.
func Merge(base, overlay any) any {
	baseMap, baseIsMap := base.(*ordered.Map)
	overlayMap, overlayIsMap := overlay.(*ordered.Map)
	if baseIsMap && overlayIsMap {
		return mergeMaps(baseMap, overlayMap)
	}
	return Clone(overlay)
}

func mergeMaps(base, overlay *ordered.Map) *ordered.Map {
	out := ordered.New()
	base.Range(func(k string, v any) {
		out.Set(k, Clone(v))
	})
	overlay.Range(func(k string, v any) {
		if existing, ok := out.Get(k); ok {
			out.Set(k, Merge(existing, v))
		} else {
			out.Set(k, Clone(v))
		}
	})
	return out
}

// Clone deep-copies a raw-tree value (*ordered.Map / []any / scalar).
func Clone(v any) any {
	switch t := v.(type) {
	case *ordered.Map:
		out := ordered.New()
		t.Range(func(k string, val any) {
			out.Set(k, Clone(val))
		})
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// ExpandWildcardServices rewrites a "*" service entry in overlay's services
// mapping into a per-service merge fragment for every service key currently
// present in working, then discards the wildcard entry. It mutates overlay
// in place and must run before Merge folds overlay onto working.
func ExpandWildcardServices(working, overlay *ordered.Map) {
	if working == nil || overlay == nil {
		return
	}
	workingServicesRaw, ok := working.Get("services")
	if !ok {
		return
	}
	workingServices, ok := workingServicesRaw.(*ordered.Map)
	if !ok {
		return
	}
	overlayServicesRaw, ok := overlay.Get("services")
	if !ok {
		return
	}
	overlayServices, ok := overlayServicesRaw.(*ordered.Map)
	if !ok {
		return
	}
	fragment, ok := overlayServices.Get(wildcardService)
	if !ok {
		return
	}
	for _, svcName := range workingServices.Keys() {
		if existing, has := overlayServices.Get(svcName); has {
			overlayServices.Set(svcName, Merge(existing, Clone(fragment)))
		} else {
			overlayServices.Set(svcName, Clone(fragment))
		}
	}
	overlayServices.Delete(wildcardService)
}

// MergeAll folds a sequence of overlays onto base in order, expanding
// service wildcards against the accumulated working tree before each merge.
func MergeAll(base *ordered.Map, overlays []*ordered.Map) *ordered.Map {
	working := Clone(base).(*ordered.Map)
	for _, overlay := range overlays {
		o := Clone(overlay).(*ordered.Map)
		ExpandWildcardServices(working, o)
		working = mergeMaps(working, o)
	}
	return working
}
