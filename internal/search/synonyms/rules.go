// Package synonyms loads locale synonym dictionaries and character mappings
// and compiles them into analyzer configuration. Compilation is pure; nothing
// here touches an index. Expansion is computed at query analysis time only,
// so synonym updates never require reindexing.
package synonyms

import (
	"sort"
	"strings"
)

// Rule is one synonym line. Without an expansion the rule's terms expand
// bidirectionally to each other. With an expansion the terms are triggers
// that expand one way.
type Rule struct {
	Terms     []string
	Expansion []string
}

// Directed reports whether the rule expands one way only.
func (r Rule) Directed() bool {
	return len(r.Expansion) > 0
}

// Solr renders the rule in the line format the engine consumes.
func (r Rule) Solr() string {
	if r.Directed() {
		return strings.Join(r.Terms, ", ") + " => " + strings.Join(r.Expansion, ", ")
	}
	return strings.Join(r.Terms, ", ")
}

// RuleSet is an ordered, immutable collection of rules.
type RuleSet []Rule

// Expand computes the full query-time expansion of a term: the term itself,
// every co-listed term of bidirectional rules containing it, and the
// expansion of every directed rule triggered by it. A hyponym expands to its
// hypernyms but never to sibling hyponyms it is not co-listed with.
func (rs RuleSet) Expand(term string) []string {
	term = normalizeTerm(term)
	set := map[string]struct{}{term: {}}
	for _, rule := range rs {
		if !containsTerm(rule.Terms, term) {
			continue
		}
		if rule.Directed() {
			for _, t := range rule.Expansion {
				set[t] = struct{}{}
			}
		} else {
			for _, t := range rule.Terms {
				set[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Solr renders the whole set as engine synonym lines.
func (rs RuleSet) Solr() []string {
	lines := make([]string, 0, len(rs))
	for _, rule := range rs {
		lines = append(lines, rule.Solr())
	}
	return lines
}

// parseRule parses one synonym line. Empty and comment lines return a zero
// rule.
func parseRule(line string) Rule {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Rule{}
	}
	if trigger, expansion, ok := strings.Cut(line, "=>"); ok {
		return Rule{
			Terms:     splitTerms(trigger),
			Expansion: splitTerms(expansion),
		}
	}
	return Rule{Terms: splitTerms(line)}
}

// groupHyponyms appends hypernym-to-hyponym rules: consecutive directed
// rules sharing the same expansion form a group, and querying any of the
// shared hypernym terms must expand to the union of every hyponym in the
// group. The original rules stay, so each hyponym still expands only upward.
func groupHyponyms(rules RuleSet) RuleSet {
	out := make(RuleSet, 0, len(rules))
	for i := 0; i < len(rules); i++ {
		out = append(out, rules[i])
		if !rules[i].Directed() {
			continue
		}
		union := appendMissing(append([]string(nil), rules[i].Expansion...), rules[i].Terms)
		grouped := false
		j := i + 1
		for ; j < len(rules) && rules[j].Directed() && sameTerms(rules[j].Expansion, rules[i].Expansion); j++ {
			union = appendMissing(union, rules[j].Terms)
			out = append(out, rules[j])
			grouped = true
		}
		if grouped {
			out = append(out, Rule{
				Terms:     append([]string(nil), rules[i].Expansion...),
				Expansion: union,
			})
			i = j - 1
		}
	}
	return out
}

func splitTerms(s string) []string {
	parts := strings.Split(s, ",")
	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := normalizeTerm(part); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsTerm(terms []string, term string) bool {
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}

func sameTerms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendMissing(dst []string, terms []string) []string {
	for _, t := range terms {
		if !containsTerm(dst, t) {
			dst = append(dst, t)
		}
	}
	return dst
}
