package ply

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// wildcardMeta - the characters that turn a probe pattern into a catalog
// sweep instead of a literal target.
const wildcardMeta = "?*[!@"

// SymbolCatalog is a restartable collection of known traceable symbol
// names, supplied by an upstream loader such as ksyms.Load.
type SymbolCatalog interface {
	// ForEach calls fn for each symbol name until fn returns false.
	ForEach(fn func(name string) bool)
}

// IsWildcard returns true if the pattern must be expanded against a symbol
// catalog rather than used as a literal probe target.
func IsWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, wildcardMeta)
}

// matchAll returns the catalog symbols matching pattern, in catalog order.
// A nil catalog yields no matches: running without a symbol table is a
// known-degraded mode, not an error. Patterns are compiled with the
// extended glob engine (character classes, alternation); if the extended
// compile fails the plain filepath.Match syntax is used instead.
func matchAll(pattern string, catalog SymbolCatalog) []string {
	if catalog == nil {
		return nil
	}

	match := func(name string) bool {
		ok, err := filepath.Match(pattern, name)
		return err == nil && ok
	}
	if g, err := glob.Compile(pattern); err == nil {
		match = g.Match
	}

	var symbols []string
	catalog.ForEach(func(name string) bool {
		if match(name) {
			symbols = append(symbols, name)
		}
		return true
	})
	return symbols
}
