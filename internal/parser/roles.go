package parser

import "strings"

// role is one entry of the keyword table. Stems match word prefixes so
// "researches" and "researching" both count for "research".
type role struct {
	name  string
	stems []string
}

// roleTable is ordered; on a score tie with no role in use, the earlier
// entry wins.
var roleTable = []role{
	{"researcher", []string{"research", "investigat", "gather", "collect", "search", "find", "explor", "fetch", "scrap", "crawl", "discover", "look"}},
	{"writer", []string{"writ", "draft", "summar", "compos", "document", "report", "describ", "translat", "edit", "author"}},
	{"analyst", []string{"analy", "evaluat", "compar", "assess", "comput", "calculat", "measur", "forecast", "classif", "extract", "interpret"}},
	{"reviewer", []string{"review", "check", "verif", "validat", "proofread", "critiqu", "audit", "approv", "inspect", "test"}},
	{"publisher", []string{"publish", "post", "send", "email", "shar", "upload", "notif", "present", "distribut", "deliver"}},
	{"planner", []string{"plan", "schedul", "organi", "prioriti", "outlin", "coordinat", "design"}},
	{"developer", []string{"cod", "implement", "build", "develop", "program", "debug", "refactor", "fix", "deploy"}},
}

// scoreRoles counts, per role, how many words of the clause start with one
// of the role's stems. The result is indexed like roleTable.
func scoreRoles(words []string) []int {
	scores := make([]int, len(roleTable))
	for i, r := range roleTable {
		for _, w := range words {
			for _, stem := range r.stems {
				if strings.HasPrefix(w, stem) {
					scores[i]++
					break
				}
			}
		}
	}
	return scores
}

// pickRole returns the best scoring role name, or "" when nothing scored.
// Ties go to a role that already owns an agent, then to table order.
func pickRole(words []string, inUse func(string) bool) string {
	scores := scoreRoles(words)
	best := 0
	for _, s := range scores {
		best = max(best, s)
	}
	if best == 0 {
		return ""
	}

	var tied []string
	for i, s := range scores {
		if s == best {
			tied = append(tied, roleTable[i].name)
		}
	}
	for _, name := range tied {
		if inUse(name) {
			return name
		}
	}
	return tied[0]
}
