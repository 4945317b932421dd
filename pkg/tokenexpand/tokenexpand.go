// Package tokenexpand performs Docker-Compose-style placeholder substitution
// over rendered compose documents.
package tokenexpand

import (
	"fmt"
	"regexp"
	"strings"

	"swarmbender/pkg/caseinsens"
)

// UnresolvedTokenError is returned when a ${NAME} placeholder cannot be
// resolved against any known source.
type UnresolvedTokenError struct {
	Name     string
	Location string
}

func (e *UnresolvedTokenError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("unresolved token %q at %s", e.Name, e.Location)
	}
	return fmt.Sprintf("unresolved token %q", e.Name)
}

var varPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Sources bundles the token lookup sources, consulted in this order:
// service environment, process-environment allowlist, user tokens.
type Sources struct {
	// ServiceEnv must preserve insertion order: it backs ${ENVVARS} expansion.
	ServiceEnv *caseinsens.Map
	ProcessEnv map[string]string
	UserTokens map[string]string
}

// Expand substitutes every ${NAME} and ${NAME:-default} occurrence in input.
// ${ENVVARS} expands to the space-joined "K=V" pairs of ServiceEnv in stable
// (insertion) order. location is used only to annotate UnresolvedTokenError.
func Expand(input string, sources Sources, location string) (string, error) {
	if !varPattern.MatchString(input) {
		return input, nil
	}

	indices := varPattern.FindAllStringSubmatchIndex(input, -1)
	var b strings.Builder
	b.Grow(len(input))

	last := 0
	for _, idx := range indices {
		fullStart, fullEnd, exprStart, exprEnd := idx[0], idx[1], idx[2], idx[3]
		b.WriteString(input[last:fullStart])

		expr := input[exprStart:exprEnd]
		resolved, err := evaluate(expr, sources, location)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
		last = fullEnd
	}
	b.WriteString(input[last:])
	return b.String(), nil
}

func evaluate(expr string, sources Sources, location string) (string, error) {
	if expr == "ENVVARS" {
		return joinEnvVars(sources.ServiceEnv), nil
	}

	name, def, hasDefault := splitDefault(expr)
	value, exists := lookup(name, sources)

	if hasDefault {
		if exists && value != "" {
			return value, nil
		}
		return def, nil
	}

	if !exists {
		return "", &UnresolvedTokenError{Name: name, Location: location}
	}
	return value, nil
}

// splitDefault splits "NAME:-default" into ("NAME", "default", true), or
// returns (expr, "", false) when no default operator is present.
func splitDefault(expr string) (name, def string, hasDefault bool) {
	if idx := strings.Index(expr, ":-"); idx >= 0 {
		return strings.TrimSpace(expr[:idx]), expr[idx+2:], true
	}
	return strings.TrimSpace(expr), "", false
}

func lookup(name string, sources Sources) (string, bool) {
	if sources.ServiceEnv != nil {
		if v, ok := sources.ServiceEnv.Get(name); ok {
			return v, true
		}
	}
	if v, ok := sources.ProcessEnv[name]; ok {
		return v, true
	}
	if v, ok := sources.UserTokens[name]; ok {
		return v, true
	}
	return "", false
}

func joinEnvVars(env *caseinsens.Map) string {
	if env == nil {
		return ""
	}
	parts := make([]string, 0, env.Len())
	env.Range(func(k, v string) {
		parts = append(parts, k+"="+v)
	})
	return strings.Join(parts, " ")
}
