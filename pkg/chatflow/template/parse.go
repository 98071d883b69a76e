package template

import (
	"regexp"
	"strings"
)

// variablePattern matches {{ selector }} and {{#selector#}}.
var variablePattern = regexp.MustCompile(`\{\{\s*(#?)([^{}\n]+?)\s*(#?)\}\}`)

// Match is one variable reference found in a template.
type Match struct {
	// Selector is the raw selector text with surrounding space and markers removed.
	Selector string
	// Start and End are byte offsets of the whole {{...}} occurrence.
	Start int
	End   int
}

// Parse returns every variable reference in tmpl, in order of appearance.
func Parse(tmpl string) []Match {
	var matches []Match
	for _, loc := range variablePattern.FindAllStringSubmatchIndex(tmpl, -1) {
		sel := strings.TrimSpace(tmpl[loc[4]:loc[5]])
		if sel == "" {
			continue
		}
		matches = append(matches, Match{Selector: sel, Start: loc[0], End: loc[1]})
	}
	return matches
}

// Selectors returns the distinct selectors referenced by tmpl, in order of
// first appearance.
func Selectors(tmpl string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range Parse(tmpl) {
		if _, ok := seen[m.Selector]; ok {
			continue
		}
		seen[m.Selector] = struct{}{}
		out = append(out, m.Selector)
	}
	return out
}
