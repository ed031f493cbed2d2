// internal/resourceadapter/glob.go
// legacyGlob rewrites a DNS address glob into the grammar a pre-1.2.0 peer
// understands, per §4.8:
//
//   - A leading "**" encodes as "*"; "**" anywhere else is unrepresentable.
//   - A leading single "*" encodes as "?"; "*" anywhere else is unrepresentable.
//   - Any "?" in the source address is rejected outright (pre-1.2 had no "?").
//   - All other characters pass through unchanged.
//
// This resolves the open question in spec.md §9 in favor of "reject any
// leading or embedded '?'" — see DESIGN.md.
package resourceadapter

import "strings"

// legacyGlob returns (rewritten, true) when address can be expressed in the
// legacy grammar, or ("", false) when it cannot (the resource must be
// dropped for this peer).
func legacyGlob(address string) (string, bool) {
	if strings.ContainsRune(address, '?') {
		return "", false
	}

	rest := address
	var prefix string

	switch {
	case strings.HasPrefix(rest, "**"):
		prefix = "*"
		rest = rest[2:]
	case strings.HasPrefix(rest, "*"):
		prefix = "?"
		rest = rest[1:]
	}

	// Anything past the leading wildcard must contain no further "*" or
	// "**" — those are unrepresentable in the legacy grammar.
	if strings.ContainsRune(rest, '*') {
		return "", false
	}

	return prefix + rest, true
}
