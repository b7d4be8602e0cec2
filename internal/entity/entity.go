// Package entity pulls structured fields out of free text. Every helper is a
// pure function of its input so extraction stays deterministic.
package entity

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe    = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	dollarRe   = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?`)
	currencyRe = regexp.MustCompile(`(?i)\b(\d+)(?:\.(\d{1,2}))?\s?(?:usd|dollars?|bucks)\b`)
	minutesRe  = regexp.MustCompile(`(?i)\b(\d{1,3})\s?(?:min|mins|minute|minutes)\b`)
	hoursRe    = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d)?)\s?(?:h|hr|hrs|hour|hours)\b`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	isoDateRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[ T]\d{1,2}:\d{2}(?::\d{2})?)?`)
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}'\-]+`)
)

// Email returns the first email address in text, lowercased.
func Email(text string) string {
	return strings.ToLower(emailRe.FindString(text))
}

// AmountCents parses the first money amount ("$1,250.50", "100 usd") into cents.
func AmountCents(text string) (int64, bool) {
	whole, frac := "", ""
	if m := dollarRe.FindStringSubmatch(text); m != nil {
		whole, frac = m[1], m[2]
	} else if m := currencyRe.FindStringSubmatch(text); m != nil {
		whole, frac = m[1], m[2]
	} else {
		return 0, false
	}

	units, err := strconv.ParseInt(strings.ReplaceAll(whole, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	cents := int64(0)
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	if units > (math.MaxInt64-99)/100 {
		return 0, false
	}
	total := units*100 + cents
	if total <= 0 {
		return 0, false
	}
	return total, true
}

// DurationMinutes parses "45 min", "1.5 hours" and similar. Minutes win over hours.
func DurationMinutes(text string) (int, bool) {
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, true
		}
	}
	if m := hoursRe.FindStringSubmatch(text); m != nil {
		h, err := strconv.ParseFloat(m[1], 64)
		if err == nil && h > 0 {
			return int(math.Round(h * 60)), true
		}
	}
	return 0, false
}

// Phone returns the first phone-like digit run with at least 9 digits.
// ISO dates and date-times are never phone numbers.
func Phone(text string) string {
	text = isoDateRe.ReplaceAllString(text, "|")
	for _, cand := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range cand {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 9 {
			return strings.TrimSpace(cand)
		}
	}
	return ""
}

// ID returns the first token with the given prefix ("bk", "pay", "cl"),
// for example "bk_7f3a". IDs are lowercased.
func ID(text, prefix string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(prefix) + `_[a-z0-9\-]+\b`)
	return strings.ToLower(re.FindString(text))
}

// PhraseAfter returns the words following the first keyword in text, up to a
// stop word, an email address, or a token containing digits. Leading articles
// are skipped. The original casing is preserved.
func PhraseAfter(text string, keywords, stops []string) string {
	words := wordRe.FindAllStringIndex(text, -1)
	stopSet := toSet(stops)
	keySet := toSet(keywords)

	start := -1
	for i, loc := range words {
		if keySet[strings.ToLower(text[loc[0]:loc[1]])] {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	var out []string
	for _, loc := range words[start:] {
		w := text[loc[0]:loc[1]]
		lw := strings.ToLower(w)
		if len(out) == 0 && (lw == "a" || lw == "an" || lw == "the") {
			continue
		}
		if stopSet[lw] || strings.ContainsAny(w, "0123456789") || isEmailPart(text, loc) {
			break
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// LastOf returns the last word in text that appears in candidates, lowercased.
// The last occurrence is used because role-like words tend to close a sentence
// ("invite bob as staff").
func LastOf(text string, candidates []string) string {
	set := toSet(candidates)
	found := ""
	for _, w := range wordRe.FindAllString(text, -1) {
		if lw := strings.ToLower(w); set[lw] {
			found = lw
		}
	}
	return found
}

func isEmailPart(text string, loc []int) bool {
	if loc[1] < len(text) && (text[loc[1]] == '@' || text[loc[1]] == '.') {
		m := emailRe.FindStringIndex(text[loc[0]:])
		return m != nil && m[0] == 0
	}
	return false
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
