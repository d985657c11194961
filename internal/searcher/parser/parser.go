// Package parser turns a raw search-box string into a Plan: the normalized
// text to match, the match mode, and an optional scope filter.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
)

// Mode selects how the text is matched against symbol keys.
type Mode string

const (
	ModePrefix    Mode = "prefix"
	ModeSubstring Mode = "substring"
)

// scopeToken restricts results to targets whose scope starts with the
// given label, e.g. "in:Catch::Matchers".
const scopeToken = "in:"

type Plan struct {
	Raw   string
	Text  string
	Mode  Mode
	Scope string
}

// ParseMode maps a request parameter to a Mode. Anything unrecognised,
// including "", selects prefix matching.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "substring", "contains":
		return ModeSubstring
	default:
		return ModePrefix
	}
}

// Parse builds a Plan from raw. Every in:<scope> word is removed from the
// text; the last one wins. Text and Scope are normalized the same way the
// index normalizes keys.
func Parse(raw, mode string) *Plan {
	plan := &Plan{
		Raw:  raw,
		Mode: ParseMode(mode),
	}
	words := strings.Fields(raw)
	text := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > len(scopeToken) && strings.EqualFold(w[:len(scopeToken)], scopeToken) {
			plan.Scope = symbolindex.Normalize(w[len(scopeToken):])
			continue
		}
		text = append(text, w)
	}
	plan.Text = symbolindex.Normalize(strings.Join(text, " "))
	return plan
}

// MatchesScope reports whether a target scope passes the plan's filter.
func (p *Plan) MatchesScope(scope string) bool {
	return p.Scope == "" || strings.HasPrefix(symbolindex.Normalize(scope), p.Scope)
}
