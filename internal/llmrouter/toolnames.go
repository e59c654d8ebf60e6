package llmrouter

import (
	"fmt"
	"strings"
)

const maxProviderToolNameLen = 64

// ToolNameMapper rewrites canonical "module.tool" names into a provider's
// allowed character set (alphanumerics, underscore, hyphen) capped at 64
// characters, and tracks the reverse mapping for one request so the
// router can translate tool-use responses back to their canonical name.
//
// A fresh mapper must be used per request: it is not safe to reuse across
// concurrent calls since collisions are disambiguated by insertion order.
type ToolNameMapper struct {
	toProvider map[string]string
	toCanonical map[string]string
}

// NewToolNameMapper returns an empty mapper.
func NewToolNameMapper() *ToolNameMapper {
	return &ToolNameMapper{
		toProvider:  map[string]string{},
		toCanonical: map[string]string{},
	}
}

// Sanitize returns the provider-safe name for canonical, registering the
// mapping so Canonical can recover it later. Calling Sanitize twice with
// the same canonical name returns the same provider name.
func (m *ToolNameMapper) Sanitize(canonical string) string {
	if existing, ok := m.toProvider[canonical]; ok {
		return existing
	}

	var b strings.Builder
	for _, r := range canonical {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune('_')
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > maxProviderToolNameLen {
		name = name[:maxProviderToolNameLen]
	}

	// Disambiguate collisions (distinct canonical names mapping to the same
	// truncated/sanitized form) by appending a short numeric suffix.
	candidate := name
	for i := 1; m.toCanonical[candidate] != ""; i++ {
		suffix := fmt.Sprintf("_%d", i)
		cut := maxProviderToolNameLen - len(suffix)
		if cut < 0 {
			cut = 0
		}
		if cut > len(name) {
			cut = len(name)
		}
		candidate = name[:cut] + suffix
	}

	m.toProvider[canonical] = candidate
	m.toCanonical[candidate] = canonical
	return candidate
}

// Canonical recovers the canonical "module.tool" name for a provider name
// previously produced by Sanitize. Returns providerName unchanged if it was
// never registered (defensive: should not happen for well-formed provider
// responses).
func (m *ToolNameMapper) Canonical(providerName string) string {
	if canonical, ok := m.toCanonical[providerName]; ok {
		return canonical
	}
	return providerName
}
