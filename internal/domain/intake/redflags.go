package intake

import "strings"

// Emergency phrase screen. Pure text matching with negation and historical
// suppression; the match window is five tokens to each side.

var emergencyPhrases = []string{
	"chest pain",
	"can't breathe",
	"can’t breathe",
	"shortness of breath",
	"fainting",
	"passed out",
	"severe bleeding",
	"stroke",
	"weakness on one side",
	"anaphylaxis",
	"seizure",
}

var negationTokens = []string{"no", "not", "denies", "deny", "without", "never"}

var historicalPhrases = []string{
	"history of", "previously", "years ago", "year ago",
	"months ago", "month ago", "last year", "in the past",
}

const redFlagWindow = 5

// DetectRedFlags scans the chief complaint, the symptom assessment and the
// latest free text for emergency phrases. A phrase negated within the window
// ("no chest pain") or framed as historical ("history of stroke") does not
// count. Only the first occurrence of each phrase is judged.
func DetectRedFlags(chiefComplaint string, op OPQRST, freeText string) []string {
	blob := strings.Join([]string{
		chiefComplaint, freeText,
		op.Onset, op.Provocation, op.Quality, op.Radiation, op.Severity, op.Timing,
	}, " ")
	toks := strings.Fields(normalizeText(blob))

	flags := []string{}
	for _, p := range emergencyPhrases {
		if hasCleanMatch(toks, p, redFlagWindow) {
			flags = append(flags, p)
		}
	}
	return flags
}

func hasCleanMatch(toks []string, phrase string, window int) bool {
	pToks := strings.Fields(normalizeText(phrase))
	n := len(pToks)
	if n == 0 {
		return false
	}

	for i := 0; i+n <= len(toks); i++ {
		if !tokensEqual(toks[i:i+n], pToks) {
			continue
		}

		left := toks[max(0, i-window):i]
		end := min(len(toks), i+n+window)
		right := toks[i+n : end]

		neighborhood := strings.Join(concat(left, pToks, right), " ")

		for _, neg := range negationTokens {
			if containsToken(left, neg) || strings.Contains(neighborhood, neg+" "+pToks[0]) {
				return false
			}
		}
		for _, h := range historicalPhrases {
			if strings.Contains(neighborhood, h) {
				return false
			}
		}
		return true
	}
	return false
}

func tokensEqual(a, b []string) bool {
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

func containsToken(toks []string, w string) bool {
	for _, t := range toks {
		if t == w {
			return true
		}
	}
	return false
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
