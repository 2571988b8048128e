package intake

import (
	"regexp"
	"strconv"
	"strings"
)

// Disposition suggestion. Not diagnosis: a conservative routing hint that
// only carries weight in ED mode.

var severityNumRe = regexp.MustCompile(`\b(\d{1,2})\b`)

var concerningKeywords = []string{
	"chest", "short of breath", "difficulty breathing", "faint", "passed out",
	"severe", "worst headache", "blood", "bleeding", "vision", "confusion",
}

// severityScore maps the free-text severity answer onto 0..10, or -1 when
// it cannot be read.
func severityScore(op OPQRST) int {
	s := strings.ToLower(op.Severity)
	if m := severityNumRe.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 0 && n <= 10 {
			return n
		}
	}
	if strings.Contains(s, "severe") || strings.Contains(s, "worst") {
		return 9
	}
	if strings.Contains(s, "moderate") {
		return 5
	}
	if strings.Contains(s, "mild") {
		return 2
	}
	return -1
}

// ComputeTriage derives the disposition from mode, chief complaint and
// severity. Clinic mode always gets the routine baseline; the red-flag gate
// upstream handles true emergencies, so nothing here escalates.
func ComputeTriage(mode Mode, cc string, op OPQRST) Triage {
	base := Triage{
		EmergencyFlag: false,
		RiskLevel:     "low",
		VisitType:     "routine",
		Confidence:    "medium",
		Rationale:     "No emergency red flags detected in the intake.",
		RedFlags:      []string{},
	}

	if mode != ModeED {
		return base
	}

	t := strings.ToLower(cc)
	sev := severityScore(op)

	concerning := false
	for _, k := range concerningKeywords {
		if strings.Contains(t, k) {
			concerning = true
			break
		}
	}

	if sev >= 7 || concerning {
		base.RiskLevel = "medium"
		base.VisitType = "urgent_care_today"
		base.Confidence = "medium"
		base.Rationale = "Symptoms sound significant (or severity is high). Recommend evaluation today. No emergency keywords detected."
		return base
	}

	if sev >= 0 && sev <= 3 {
		base.VisitType = "clinic_24_72h"
		base.Rationale = "Symptoms appear lower severity with no emergency keywords. Recommend clinic follow-up within 24–72 hours if symptoms persist."
		return base
	}

	base.VisitType = "clinic_24_72h"
	base.Confidence = "low"
	base.Rationale = "Severity unclear. Recommend clinic follow-up within 24–72 hours unless symptoms worsen."
	return base
}

// NeedsEDFollowup decides whether an ED-mode session deserves one targeted
// cardiac clarifier before triage. Complaints that already mention
// breathing, neuro or syncope symptoms skip it since the red-flag gate will
// catch them on the answer.
func NeedsEDFollowup(cc string, op OPQRST) bool {
	t := strings.ToLower(cc)

	containsAny := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(t, k) {
				return true
			}
		}
		return false
	}

	breathing := containsAny("shortness of breath", "sob", "difficulty breathing")
	neuro := containsAny("weakness", "numbness", "slurred speech", "face droop", "confusion")
	faint := containsAny("faint", "passed out", "syncope")
	if breathing || neuro || faint {
		return false
	}

	return containsAny("chest pain", "chest tight", "chest pressure", "pressure in chest")
}
