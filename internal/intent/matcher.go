// Package intent scores free text against per-domain pattern rules and ranks
// the resulting intent candidates.
package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Rule maps a text pattern to an intent name with a static confidence.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64
}

// MustRule compiles pattern and panics if it is invalid. Rules are declared at
// domain construction, so a bad pattern is a programming error.
func MustRule(name, pattern string, confidence float64) Rule {
	return Rule{
		Name:       name,
		Pattern:    regexp.MustCompile(pattern),
		Confidence: clamp(confidence),
	}
}

// Domain is the matching side of a pluggable domain module.
type Domain interface {
	Name() string
	Rules() []Rule
	// Allows is a cheap role veto checked before any rule is tried.
	Allows(role domain.Role) bool
}

// Normalize case-folds text and collapses runs of whitespace.
func Normalize(text string) string {
	folded := cases.Fold().String(text)
	return strings.Join(strings.Fields(folded), " ")
}

// candidate carries ordering keys alongside the intent.
type candidate struct {
	intent    domain.Intent
	domainIdx int
	ruleIdx   int
}

// match tests normalized text against every rule of d in declaration order and
// returns one candidate per matching rule. Rules with zero confidence never match.
func match(d Domain, domainIdx int, normalized string) []candidate {
	var out []candidate
	for i, r := range d.Rules() {
		if r.Confidence <= 0 || r.Pattern == nil {
			continue
		}
		if !r.Pattern.MatchString(normalized) {
			continue
		}
		out = append(out, candidate{
			intent: domain.Intent{
				Domain:     d.Name(),
				Name:       r.Name,
				Confidence: r.Confidence,
			},
			domainIdx: domainIdx,
			ruleIdx:   i,
		})
	}
	return out
}

func clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
