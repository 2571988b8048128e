package intake

import (
	"fmt"
	"strings"
)

// Patient-facing and fallback renderings of the captured state.

func fmtList(xs []string) string {
	if len(xs) == 0 {
		return "None"
	}
	return strings.Join(xs, ", ")
}

func fmtMedsInline(ms []Medication) string {
	if len(ms) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = "Unknown"
		}
		s := name
		if d := strings.TrimSpace(m.Dose); d != "" {
			s += " " + d
		}
		if f := strings.TrimSpace(m.Freq); f != "" {
			s += " (" + f + ")"
		}
		if l := strings.TrimSpace(m.LastTaken); l != "" {
			s += ", last: " + l
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

// confirmSummary is the "here's what I captured" recap shown before the
// patient confirms.
func confirmSummary(s *State) string {
	cc := s.ChiefComplaint
	if cc == "" {
		cc = "—"
	}

	var b strings.Builder
	b.WriteString("Here’s what I captured:\n\n")
	b.WriteString("Identity\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDash(s.Identity.Name))
	fmt.Fprintf(&b, "- DOB: %s\n", orDash(s.Identity.DOB))
	fmt.Fprintf(&b, "- Phone: %s\n", orDash(s.Identity.Phone))
	fmt.Fprintf(&b, "- Address: %s\n", orDash(s.Identity.Address))
	b.WriteString("\nSymptoms\n")
	fmt.Fprintf(&b, "- Chief complaint: %s\n", cc)
	fmt.Fprintf(&b, "- Onset: %s\n", orDash(s.OPQRST.Onset))
	fmt.Fprintf(&b, "- Provocation: %s\n", orDash(s.OPQRST.Provocation))
	fmt.Fprintf(&b, "- Quality: %s\n", orDash(s.OPQRST.Quality))
	fmt.Fprintf(&b, "- Radiation: %s\n", orDash(s.OPQRST.Radiation))
	fmt.Fprintf(&b, "- Severity: %s\n", orDash(s.OPQRST.Severity))
	fmt.Fprintf(&b, "- Timing: %s\n", orDash(s.OPQRST.Timing))
	b.WriteString("\nHistory\n")
	fmt.Fprintf(&b, "- Allergies: %s\n", fmtList(s.Allergies))
	fmt.Fprintf(&b, "- Medications: %s\n", fmtMedsInline(s.Medications))
	fmt.Fprintf(&b, "- PMH: %s\n", fmtList(s.PMH))
	fmt.Fprintf(&b, "- Recent results: %s\n", fmtList(s.RecentResults))
	b.WriteString("\nTriage\n")
	fmt.Fprintf(&b, "- Risk: %s\n", orDash(s.Triage.RiskLevel))
	fmt.Fprintf(&b, "- Visit type: %s", orDash(s.Triage.VisitType))

	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown/Not provided"
	}
	return s
}

// fallbackReport renders the clinician note from a fixed template when the
// generation service fails. Every captured field still lands in the note.
func fallbackReport(s *State, cc string) string {
	allergiesLine := "None/Unknown"
	if len(s.Allergies) > 0 {
		allergiesLine = strings.Join(s.Allergies, ", ")
	}

	var medsLines string
	if len(s.Medications) == 0 {
		medsLines = "- None/Unknown"
	} else {
		lines := make([]string, 0, len(s.Medications))
		for _, m := range s.Medications {
			name := strings.TrimSpace(m.Name)
			if name == "" {
				name = "Unknown"
			}
			line := "- " + name
			if d := strings.TrimSpace(m.Dose); d != "" {
				line += ", " + d
			}
			if f := strings.TrimSpace(m.Freq); f != "" {
				line += ", " + f
			}
			if l := strings.TrimSpace(m.LastTaken); l != "" {
				line += " (last taken: " + l + ")"
			}
			lines = append(lines, line)
		}
		medsLines = strings.Join(lines, "\n")
	}

	pmhLine := "Unknown/Not provided"
	if len(s.PMH) > 0 {
		pmhLine = strings.Join(s.PMH, ", ")
	}
	resultsLine := "None/Unknown"
	if len(s.RecentResults) > 0 {
		resultsLine = strings.Join(s.RecentResults, ", ")
	}

	unknown := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "Unknown"
		}
		return v
	}

	return fmt.Sprintf(`Subjective Intake (Why)
Chief Complaint (CC): %s

HPI (OPQRST):
- Onset: %s
- Provocation: %s
- Quality: %s
- Radiation: %s
- Severity: %s
- Timing: %s

Clinical History & Safety
ALLERGIES (IMPORTANT): %s

Current Medications:
%s

PMH:
%s

Recent Lab/Imaging Results:
%s

Identity
- Name: %s
- DOB: %s
- Phone: %s
- Address: %s
`,
		cc,
		orUnknown(s.OPQRST.Onset),
		orUnknown(s.OPQRST.Provocation),
		orUnknown(s.OPQRST.Quality),
		orUnknown(s.OPQRST.Radiation),
		orUnknown(s.OPQRST.Severity),
		orUnknown(s.OPQRST.Timing),
		allergiesLine,
		medsLines,
		pmhLine,
		resultsLine,
		unknown(s.Identity.Name),
		unknown(s.Identity.DOB),
		unknown(s.Identity.Phone),
		unknown(s.Identity.Address),
	)
}
