package planner

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Action is the outcome of a reuse decision.
type Action string

const (
	ActionReuse  Action = "reuse"
	ActionCreate Action = "create"
)

// MinOverlap is the share of capability tokens an entry must cover to be
// reused.
const MinOverlap = 0.5

// exactScore ranks an exact name match above any overlap ratio.
const exactScore = 2.0

// Decision records whether a capability is served from the catalog.
type Decision struct {
	Action Action  `json:"action"`
	Match  string  `json:"match,omitempty"`
	Score  float64 `json:"score"`
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "with": true, "or": true, "by": true,
	"tool": true, "tools": true, "mcp": true, "server": true, "service": true,
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// Tokens splits s on underscores, hyphens, spaces and camelCase humps,
// lower-cases the pieces and drops stopwords.
func Tokens(s string) []string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	var out []string
	for _, tok := range tokenSplit.Split(strings.ToLower(b.String()), -1) {
		if tok == "" || stopwords[tok] || slices.Contains(out, tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// Decide applies the reuse-before-creation table to one capability:
//
//	exact name match                 -> reuse, score 2
//	token overlap >= MinOverlap      -> reuse the best-scoring entry
//	equal scores                     -> lexicographically smallest name
//	anything else                    -> create
//
// Overlap is measured against the entry's name and tag tokens.
func Decide(capability string, catalog Catalog) Decision {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	slices.Sort(names)

	want := normalizeName(capability)
	for _, name := range names {
		if normalizeName(name) == want {
			return Decision{Action: ActionReuse, Match: name, Score: exactScore}
		}
	}

	capTokens := Tokens(capability)
	if len(capTokens) == 0 {
		return Decision{Action: ActionCreate}
	}

	best := Decision{Action: ActionCreate}
	for _, name := range names {
		entryTokens := Tokens(name)
		for _, tag := range catalog[name].Tags {
			entryTokens = append(entryTokens, Tokens(tag)...)
		}
		overlap := 0
		for _, tok := range capTokens {
			if slices.Contains(entryTokens, tok) {
				overlap++
			}
		}
		score := float64(overlap) / float64(len(capTokens))
		if score >= MinOverlap && score > best.Score {
			best = Decision{Action: ActionReuse, Match: name, Score: score}
		}
	}
	return best
}
