// Package namesafe implements secret version suffixing and Swarm-safe
// secret name synthesis (§4.6 of the SwarmBender specification).
package namesafe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// VersionMode selects how a secret's version suffix is derived.
type VersionMode string

const (
	VersionContentSHA VersionMode = "content-sha"
	VersionKVVersion   VersionMode = "kv-version"
	VersionHMAC        VersionMode = "hmac"
	VersionSerial      VersionMode = "serial"
)

// ContentSHA returns the first 16 hex characters of SHA-256(value).
func ContentSHA(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}

// HMACSuffix returns the first 16 hex characters of HMAC-SHA256(value, salt).
func HMACSuffix(value, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// Suffix computes the version suffix for a secret value per the rules in
// §3 "Versioning": content-sha always available; kv-version falls back to
// content-sha when kvVersion is empty; hmac falls back to content-sha when
// salt is empty; serial is handled by the caller (it needs a persisted
// counter) and is not computed here — callers pass the counter value
// pre-formatted as serialValue.
func Suffix(mode VersionMode, value, kvVersion, hmacSalt string, serialValue string) string {
	switch mode {
	case VersionKVVersion:
		if kvVersion != "" {
			return kvVersion
		}
		return ContentSHA(value)
	case VersionHMAC:
		if hmacSalt != "" {
			return HMACSuffix(value, hmacSalt)
		}
		return ContentSHA(value)
	case VersionSerial:
		if serialValue != "" {
			return serialValue
		}
		return ContentSHA(value)
	default:
		return ContentSHA(value)
	}
}

var (
	safeCharRun     = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	repeatedPunct   = regexp.MustCompile(`[._-]{2,}`)
	validNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,62})[A-Za-z0-9]$`)
)

const maxNameLength = 64

// Valid reports whether name satisfies the Swarm-safe name pattern.
func Valid(name string) bool {
	return validNamePattern.MatchString(name)
}

// Normalize applies the Swarm-safe normalization rules: keep
// [A-Za-z0-9._-], replace other runs with "_", collapse repeated punctuation,
// trim to alphanumeric edges, and middle-hash down to 64 characters when too
// long.
func Normalize(raw string) string {
	s := safeCharRun.ReplaceAllString(raw, "_")
	s = repeatedPunct.ReplaceAllStringFunc(s, func(m string) string {
		// Collapse to the first rune of the run.
		return m[:1]
	})
	s = trimNonAlnumEdges(s)
	if len(s) < 2 {
		s = (s + "xx")[:2]
	}

	if len(s) > maxNameLength {
		s = middleHash(s)
		s = trimNonAlnumEdges(s)
	}
	return s
}

// middleHash keeps a 24-char prefix and 24-char suffix, replacing the
// removed middle with the first 8 hex characters of SHA-256(middle), then
// hard-truncates to 64 characters.
func middleHash(s string) string {
	const edge = 24
	if len(s) <= edge*2 {
		if len(s) > maxNameLength {
			return s[:maxNameLength]
		}
		return s
	}
	prefix := s[:edge]
	suffix := s[len(s)-edge:]
	middle := s[edge : len(s)-edge]
	sum := sha256.Sum256([]byte(middle))
	hashPart := hex.EncodeToString(sum[:])[:8]

	out := prefix + hashPart + suffix
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	return out
}

func trimNonAlnumEdges(s string) string {
	isAlnum := func(b byte) bool {
		return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
	}
	start := 0
	for start < len(s) && !isAlnum(s[start]) {
		start++
	}
	end := len(s)
	for end > start && !isAlnum(s[end-1]) {
		end--
	}
	return s[start:end]
}

// Scope formats the "{scope}" template token: "{stackId}_{serviceName}" when
// both are set, else stackId alone, else the literal scope string passed in.
func Scope(stackID, serviceName, fallback string) string {
	switch {
	case stackID != "" && serviceName != "":
		return stackID + "_" + serviceName
	case stackID != "":
		return stackID
	default:
		return fallback
	}
}

// Synthesize expands the "sb_{scope}_{env}_{key}_{version}" template and
// Swarm-normalizes the result, falling back to a fully slugged name if the
// normalized name still fails the validity pattern.
func Synthesize(stackID, serviceName, env, key, version string) string {
	scope := Scope(stackID, serviceName, "global")
	raw := fmt.Sprintf("sb_%s_%s_%s_%s", scope, env, key, version)
	name := Normalize(raw)
	if Valid(name) {
		return name
	}

	fallback := fmt.Sprintf(
		"sb_%s_%s_%s_%s_%s",
		slug(stackID), slug(serviceName), slug(env), shortHash(key), shortHash(version),
	)
	return Normalize(fallback)
}

func slug(s string) string {
	if s == "" {
		return "x"
	}
	return Normalize(strings.ToLower(s))
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
