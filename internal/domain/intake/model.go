package intake

import (
	"fmt"
	"strings"
)

// Phase is the conversation's current position in the intake flow.
type Phase string

const (
	PhaseIdentity        Phase = "identity"
	PhaseIdentityReview  Phase = "identity_review"
	PhaseSubjective      Phase = "subjective"
	PhaseClinicalHistory Phase = "clinical_history"
	PhaseConfirm         Phase = "confirm"
	PhaseReport          Phase = "report"
	PhaseHandoff         Phase = "handoff"
	PhaseDone            Phase = "done"
)

// Mode selects the triage profile for the session.
type Mode string

const (
	ModeClinic Mode = "clinic"
	ModeED     Mode = "ed"
)

// ParseMode maps arbitrary client input onto a supported mode,
// defaulting to clinic.
func ParseMode(s string) Mode {
	if strings.ToLower(strings.TrimSpace(s)) == string(ModeED) {
		return ModeED
	}
	return ModeClinic
}

// ClinicalStep tracks progress through the structured history questions.
type ClinicalStep string

const (
	StepAllergies ClinicalStep = "allergies"
	StepMeds      ClinicalStep = "meds"
	StepPMH       ClinicalStep = "pmh"
	StepResults   ClinicalStep = "results"
	StepHistDone  ClinicalStep = "done"
)

// IdentityStatus records whether the patient confirmed their demographics.
type IdentityStatus string

const (
	IdentityUnverified IdentityStatus = "unverified"
	IdentityVerified   IdentityStatus = "verified"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Identity holds patient demographics collected during the identity phase.
type Identity struct {
	Name    string `json:"name"`
	DOB     string `json:"dob"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// identityFields is the collection order for missing demographics.
var identityFields = []struct {
	key string
	get func(Identity) string
}{
	{"name", func(id Identity) string { return id.Name }},
	{"dob", func(id Identity) string { return id.DOB }},
	{"phone", func(id Identity) string { return id.Phone }},
	{"address", func(id Identity) string { return id.Address }},
}

// Missing lists the empty demographic fields, in collection order.
func (id Identity) Missing() []string {
	var out []string
	for _, f := range identityFields {
		if strings.TrimSpace(f.get(id)) == "" {
			out = append(out, f.key)
		}
	}
	return out
}

// Summary renders the demographics for confirmation prompts.
func (id Identity) Summary() string {
	return fmt.Sprintf("Name: %s, DOB: %s, Phone: %s, Address: %s",
		orDash(id.Name), orDash(id.DOB), orDash(id.Phone), orDash(id.Address))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

// OPQRST is the structured symptom assessment.
type OPQRST struct {
	Onset       string `json:"onset"`
	Provocation string `json:"provocation"`
	Quality     string `json:"quality"`
	Radiation   string `json:"radiation"`
	Severity    string `json:"severity"`
	Timing      string `json:"timing"`
}

// fillMissing copies fields from n into o only where o is still empty.
// Established answers are never overwritten by later extraction passes.
func (o *OPQRST) fillMissing(n OPQRST) {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = strings.TrimSpace(src)
		}
	}
	fill(&o.Onset, n.Onset)
	fill(&o.Provocation, n.Provocation)
	fill(&o.Quality, n.Quality)
	fill(&o.Radiation, n.Radiation)
	fill(&o.Severity, n.Severity)
	fill(&o.Timing, n.Timing)
}

// Medication is one entry of the current-medication list.
type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Freq      string `json:"freq"`
	LastTaken string `json:"last_taken"`
}

// Triage is the routing assessment for the session.
type Triage struct {
	EmergencyFlag bool     `json:"emergency_flag"`
	RiskLevel     string   `json:"risk_level"`
	VisitType     string   `json:"visit_type"`
	RedFlags      []string `json:"red_flags"`
	Confidence    string   `json:"confidence"`
	Rationale     string   `json:"rationale"`
}

// State is the full conversational state of one intake thread. Everything
// except Messages is persisted as a snapshot between turns; Messages holds
// only the current turn (transcript rows live in their own table).
type State struct {
	ThreadID string    `json:"-"`
	Messages []Message `json:"-"`

	CurrentPhase Phase `json:"current_phase"`
	Mode         Mode  `json:"mode"`

	Identity            Identity       `json:"identity"`
	StoredIdentity      *Identity      `json:"stored_identity"`
	IdentityAttempts    int            `json:"identity_attempts"`
	IdentityStatus      IdentityStatus `json:"identity_status"`
	NeedsIdentityReview bool           `json:"needs_identity_review"`

	ChiefComplaint     string `json:"chief_complaint"`
	OPQRST             OPQRST `json:"opqrst"`
	SubjectiveComplete bool   `json:"subjective_complete"`
	TriageAttempts     int    `json:"triage_attempts"`

	ClinicalStep     ClinicalStep `json:"clinical_step"`
	Allergies        []string     `json:"allergies"`
	Medications      []Medication `json:"medications"`
	PMH              []string     `json:"pmh"`
	RecentResults    []string     `json:"recent_results"`
	ClinicalComplete bool         `json:"clinical_complete"`

	Triage               Triage `json:"triage"`
	NeedsEmergencyReview bool   `json:"needs_emergency_review"`
}

// NewState returns the initial state for a fresh thread.
func NewState(threadID string, mode Mode) *State {
	return &State{
		ThreadID:       threadID,
		CurrentPhase:   PhaseIdentity,
		Mode:           mode,
		IdentityStatus: IdentityUnverified,
		ClinicalStep:   StepAllergies,
		Allergies:      []string{},
		Medications:    []Medication{},
		PMH:            []string{},
		RecentResults:  []string{},
		Triage: Triage{
			RiskLevel:  "low",
			VisitType:  "routine",
			RedFlags:   []string{},
			Confidence: "low",
		},
	}
}

// LastUserText returns the text of the most recent user message this turn.
func (s *State) LastUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Text
		}
	}
	return ""
}

// Delta is the set of changes one engine step wants applied to the state.
// Nil pointer fields are untouched; Messages accumulate.
type Delta struct {
	Phase    Phase
	Messages []Message

	Identity            *Identity
	StoredIdentity      *Identity
	ClearStoredIdentity bool
	IdentityAttempts    *int
	IdentityStatus      *IdentityStatus
	NeedsIdentityReview *bool

	ChiefComplaint     *string
	OPQRST             *OPQRST
	SubjectiveComplete *bool
	TriageAttempts     *int

	ClinicalStep     *ClinicalStep
	Allergies        *[]string
	Medications      *[]Medication
	PMH              *[]string
	RecentResults    *[]string
	ClinicalComplete *bool

	Triage               *Triage
	NeedsEmergencyReview *bool
}

// Apply merges the delta into the state.
func (d *Delta) Apply(s *State) {
	if d.Phase != "" {
		s.CurrentPhase = d.Phase
	}
	s.Messages = append(s.Messages, d.Messages...)

	if d.Identity != nil {
		s.Identity = *d.Identity
	}
	if d.StoredIdentity != nil {
		s.StoredIdentity = d.StoredIdentity
	}
	if d.ClearStoredIdentity {
		s.StoredIdentity = nil
	}
	if d.IdentityAttempts != nil {
		s.IdentityAttempts = *d.IdentityAttempts
	}
	if d.IdentityStatus != nil {
		s.IdentityStatus = *d.IdentityStatus
	}
	if d.NeedsIdentityReview != nil {
		s.NeedsIdentityReview = *d.NeedsIdentityReview
	}
	if d.ChiefComplaint != nil {
		s.ChiefComplaint = *d.ChiefComplaint
	}
	if d.OPQRST != nil {
		s.OPQRST = *d.OPQRST
	}
	if d.SubjectiveComplete != nil {
		s.SubjectiveComplete = *d.SubjectiveComplete
	}
	if d.TriageAttempts != nil {
		s.TriageAttempts = *d.TriageAttempts
	}
	if d.ClinicalStep != nil {
		s.ClinicalStep = *d.ClinicalStep
	}
	if d.Allergies != nil {
		s.Allergies = *d.Allergies
	}
	if d.Medications != nil {
		s.Medications = *d.Medications
	}
	if d.PMH != nil {
		s.PMH = *d.PMH
	}
	if d.RecentResults != nil {
		s.RecentResults = *d.RecentResults
	}
	if d.ClinicalComplete != nil {
		s.ClinicalComplete = *d.ClinicalComplete
	}
	if d.Triage != nil {
		s.Triage = *d.Triage
	}
	if d.NeedsEmergencyReview != nil {
		s.NeedsEmergencyReview = *d.NeedsEmergencyReview
	}
}

func ptr[T any](v T) *T { return &v }

func assistant(text string) []Message {
	return []Message{{Role: RoleAssistant, Text: text}}
}
