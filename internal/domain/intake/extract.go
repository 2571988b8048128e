package intake

import (
	"regexp"
	"strings"
)

// Deterministic extractors for short patient replies. These run before any
// model call so that trivially parseable answers never depend on the
// generation service.

var (
	punctRe   = regexp.MustCompile(`[.!?:;,(){}\[\]]+`)
	spaceRe   = regexp.MustCompile(`\s+`)
	nonDigit  = regexp.MustCompile(`\D+`)
	dobRe     = regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`)
	dobISORe  = regexp.MustCompile(`\b(\d{4}[/\-]\d{1,2}[/\-]\d{1,2})\b`)
	phoneRe   = regexp.MustCompile(`\+?\d[\d\-\s()]{6,}\d`)
	nameWord  = regexp.MustCompile(`^[A-Za-z\-']+$`)
	listSplit = regexp.MustCompile(`,|;|and`)
	lineSplit = regexp.MustCompile(`,|;|and|\n`)
)

var ackPhrases = []string{
	"ok", "okay", "k", "sure", "alright", "fine", "done",
	"got it", "sounds good", "thanks", "thank you",
}

var yesPhrases = []string{
	"yes", "y", "yeah", "yep", "correct", "right",
	"sounds right", "that's right", "that’s right",
}

var noPhrases = []string{"no", "n", "nope", "nah", "not really", "not sure"}

var addressMarkers = []string{
	" st", " street", " ave", " avenue", " rd", " road",
	" blvd", " lane", " ln", " dr", " drive",
}

// normalizeText lowercases, strips punctuation and collapses whitespace.
func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = punctRe.ReplaceAllString(t, " ")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// IsYes reports whether the message is an affirmation.
func IsYes(text string) bool {
	t := normalizeText(text)
	for _, y := range yesPhrases {
		if t == y {
			return true
		}
	}
	return strings.HasPrefix(t, "yes ")
}

// IsNo reports whether the message is a denial.
func IsNo(text string) bool {
	t := normalizeText(text)
	for _, n := range noPhrases {
		if t == n {
			return true
		}
	}
	return strings.HasPrefix(t, "no ")
}

// IsAck reports whether the message is a bare acknowledgement with no
// clinical content.
func IsAck(text string) bool {
	t := normalizeText(text)
	for _, a := range ackPhrases {
		if t == a || strings.HasPrefix(t, a+" ") {
			return true
		}
	}
	return false
}

// ExtractIdentity pulls demographics out of free text with pattern rules
// only. At most one value per field is guessed per message; anything it
// cannot place is left empty for a follow-up question.
func ExtractIdentity(text string) Identity {
	t := strings.TrimSpace(text)
	var out Identity

	if m := dobRe.FindString(t); m != "" {
		out.DOB = m
	} else if m := dobISORe.FindString(t); m != "" {
		out.DOB = m
	}

	if m := phoneRe.FindString(t); m != "" {
		out.Phone = m
	}

	lower := strings.ToLower(t)
	for _, k := range addressMarkers {
		if strings.Contains(lower, k) {
			out.Address = t
			break
		}
	}

	// Two or three plain alphabetic words and nothing else recognized
	// reads as a name.
	words := strings.Fields(t)
	if (len(words) == 2 || len(words) == 3) && out.Address == "" && out.Phone == "" {
		name := true
		for _, w := range words {
			if !nameWord.MatchString(w) {
				name = false
				break
			}
		}
		if name {
			out.Name = t
		}
	}

	return out
}

// ExtractAllergies parses an allergy answer. "none"-style answers yield an
// empty list, otherwise the text is split into deduplicated items.
func ExtractAllergies(text string) []string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return []string{}
	}
	for _, x := range []string{"no allergies", "none", "nka"} {
		if strings.Contains(t, x) {
			return []string{}
		}
	}
	return splitItems(text, listSplit)
}

// ExtractList parses a generic list answer (history, results).
func ExtractList(text string) []string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || t == "none" || t == "no" || t == "na" || strings.HasPrefix(t, "no ") {
		return []string{}
	}
	return splitItems(text, lineSplit)
}

func splitItems(text string, re *regexp.Regexp) []string {
	parts := re.Split(text, -1)
	seen := make(map[string]bool)
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
