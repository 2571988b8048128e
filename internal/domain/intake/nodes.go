package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intake/intake/internal/platform/llm"
)

const (
	emergencyDirective = "Based on what you shared, this could be urgent. Please call 911 or go to the nearest ER now. A clinician has been notified."
	handoffDirective   = "To prioritize your safety, please call 911 or go to the nearest ER now. A clinician has been notified."

	allergiesQuestion = "Do you have any allergies (especially medications or latex)? If none, say 'none'."
	medsQuestion      = "What medications are you currently taking? Include dose, how often, and when you last took it (if you know). If none, say 'none'."
	medsReprompt      = "What medications are you currently taking? Include dose, frequency, and last taken time if you know. If none, say 'none'."
	pmhQuestion       = "Any past medical conditions or past surgeries? If none, say 'none'."
	resultsQuestion   = "Have you had any recent lab tests or imaging (bloodwork, X-ray, CT, etc.) since your last visit? If none, say 'none'."
	resultsReprompt   = "Any recent lab tests or imaging since your last visit? If none, say 'none'."

	subjectiveQuestion = "What’s the main reason for your visit today? (in your own words)"
	severityFollowup   = "When did it start, and how severe is it from 0–10?"
	edSafetyQuestion   = "Quick safety check: are you having shortness of breath, fainting, sweating, or pain spreading to your arm/jaw?"
)

var identityQuestions = map[string]string{
	"name":    "What’s your full name?",
	"dob":     "What’s your date of birth? (MM/DD/YYYY)",
	"phone":   "What’s the best phone number to reach you?",
	"address": "What’s your current address?",
}

func (e *Engine) identityNode(ctx context.Context, s *State) (*Delta, error) {
	user := strings.TrimSpace(s.LastUserText())
	identity := s.Identity
	attempts := s.IdentityAttempts

	// Fresh session, nothing said yet: greet and ask for the name.
	if attempts == 0 && user == "" {
		return &Delta{
			Phase:               PhaseIdentity,
			Messages:            assistant("Hi — I’ll collect intake info for the clinician. What’s your full name?"),
			IdentityAttempts:    ptr(0),
			IdentityStatus:      ptr(IdentityUnverified),
			NeedsIdentityReview: ptr(false),
		}, nil
	}

	det := ExtractIdentity(user)
	mergeField := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = strings.TrimSpace(src)
		}
	}
	mergeField(&identity.Name, det.Name)
	mergeField(&identity.DOB, det.DOB)
	mergeField(&identity.Phone, det.Phone)
	mergeField(&identity.Address, det.Address)
	if identity.Phone != "" {
		identity.Phone = NormalizePhone(identity.Phone)
	}

	attempts++
	if missing := identity.Missing(); len(missing) > 0 {
		return &Delta{
			Phase:            PhaseIdentity,
			Identity:         &identity,
			IdentityAttempts: ptr(attempts),
			IdentityStatus:   ptr(IdentityUnverified),
			Messages:         assistant(identityQuestions[missing[0]]),
		}, nil
	}

	stored, err := e.patients.IdentityByName(ctx, identity.Name)
	if err != nil {
		return nil, fmt.Errorf("stored identity lookup: %w", err)
	}
	if stored != nil {
		return &Delta{
			Phase:          PhaseIdentityReview,
			Identity:       &identity,
			StoredIdentity: stored,
			Messages: assistant("I found stored info on file:\n- " + stored.Summary() +
				"\n\nYou provided:\n- " + identity.Summary() +
				"\n\nShould I keep the stored info, or update it with what you provided? (keep/update)"),
		}, nil
	}

	return &Delta{
		Phase:               PhaseIdentityReview,
		Identity:            &identity,
		ClearStoredIdentity: true,
		IdentityStatus:      ptr(IdentityUnverified),
		NeedsIdentityReview: ptr(true),
		Messages:            assistant("Got it. I have: " + identity.Summary() + ". Is this correct? (yes/no)"),
	}, nil
}

func (e *Engine) identityReviewNode(ctx context.Context, s *State) (*Delta, error) {
	user := strings.TrimSpace(s.LastUserText())
	identity := s.Identity

	if s.StoredIdentity != nil {
		if strings.HasPrefix(user, "keep") {
			kept := *s.StoredIdentity
			return &Delta{
				Phase:               PhaseSubjective,
				Identity:            &kept,
				IdentityStatus:      ptr(IdentityVerified),
				NeedsIdentityReview: ptr(false),
				Messages:            assistant("Thanks — I’ll keep what’s on file. What brings you in today?"),
			}, nil
		}
		if strings.HasPrefix(user, "update") {
			payload := map[string]any{
				"stored_identity": s.StoredIdentity,
				"new_identity":    identity,
			}
			if err := e.escalator.Raise(ctx, s.ThreadID, EscalationIdentityReview, payload); err != nil {
				return nil, fmt.Errorf("identity review escalation: %w", err)
			}
			return &Delta{
				Phase:               PhaseSubjective,
				Identity:            &identity,
				IdentityStatus:      ptr(IdentityUnverified),
				NeedsIdentityReview: ptr(true),
				Messages:            assistant("Okay — I’ll use what you provided (a nurse may review). What brings you in today?"),
			}, nil
		}
		return &Delta{
			Phase:    PhaseIdentityReview,
			Messages: assistant("Please reply 'keep' or 'update'."),
		}, nil
	}

	if IsYes(user) {
		return &Delta{
			Phase:               PhaseSubjective,
			IdentityStatus:      ptr(IdentityVerified),
			NeedsIdentityReview: ptr(false),
			Messages:            assistant("Thanks. " + subjectiveQuestion),
		}, nil
	}
	if IsNo(user) {
		// Restart collection from scratch.
		return &Delta{
			Phase:               PhaseIdentity,
			Identity:            &Identity{},
			IdentityAttempts:    ptr(0),
			IdentityStatus:      ptr(IdentityUnverified),
			NeedsIdentityReview: ptr(true),
			Messages:            assistant("Okay — what’s your full name?"),
		}, nil
	}
	return &Delta{
		Phase:    PhaseIdentityReview,
		Messages: assistant("Just to confirm — is that correct? (yes/no)"),
	}, nil
}

func (e *Engine) subjectiveNode(ctx context.Context, s *State) (*Delta, error) {
	user := strings.TrimSpace(s.LastUserText())
	cc := strings.TrimSpace(s.ChiefComplaint)
	op := s.OPQRST

	// Nothing substantive yet: ask for the complaint instead of burning a
	// model call on an acknowledgement.
	if cc == "" && (user == "" || IsAck(user) || IsYes(user) || IsNo(user)) {
		return &Delta{
			Phase:    PhaseSubjective,
			Messages: assistant(subjectiveQuestion),
		}, nil
	}

	// Red-flag gate runs before any model involvement.
	if flags := DetectRedFlags(cc, op, user); len(flags) > 0 {
		triage := Triage{
			EmergencyFlag: true,
			RiskLevel:     "high",
			VisitType:     "emergency",
			RedFlags:      flags,
			Confidence:    "high",
			Rationale:     "Red-flag phrase detected.",
		}
		if err := e.escalator.RaiseEmergency(ctx, s.ThreadID, map[string]any{"triage": triage}); err != nil {
			return nil, fmt.Errorf("emergency escalation: %w", err)
		}
		e.logger.Warn().
			Str("thread_id", s.ThreadID).
			Str("kind", EscalationEmergency).
			Strs("red_flags", flags).
			Msg("escalation_created")
		return &Delta{
			Phase:                PhaseHandoff,
			Triage:               &triage,
			NeedsEmergencyReview: ptr(true),
			Messages:             assistant(emergencyDirective),
		}, nil
	}

	current, _ := json.Marshal(map[string]any{"chief_complaint": cc, "opqrst": op})
	prompt := "CURRENT_STATE=" + string(current) + "\nNEW_USER_MESSAGE=" + user

	fallback := &SubjectiveOut{
		ChiefComplaint: cc,
		OPQRST:         op,
		IsComplete:     false,
		Reply:          severityFollowup,
	}
	out, meta := llm.RunJSONStep[SubjectiveOut](ctx, e.gen, subjectiveExtractSystem(responseRules), prompt, fallback)
	e.logger.Info().
		Str("thread_id", s.ThreadID).
		Str("node", "subjective").
		Object("llm", meta).
		Msg("llm_step")

	if v := strings.TrimSpace(out.ChiefComplaint); v != "" && cc == "" {
		cc = v
	}
	op.fillMissing(out.OPQRST)

	if out.IsComplete {
		mode := s.Mode
		if mode == "" {
			mode = ModeClinic
		}

		// ED mode gets one targeted clarifier before triage, at most once.
		if mode == ModeED && s.TriageAttempts < 1 && NeedsEDFollowup(cc, op) {
			return &Delta{
				Phase:              PhaseSubjective,
				ChiefComplaint:     &cc,
				OPQRST:             &op,
				SubjectiveComplete: ptr(false),
				TriageAttempts:     ptr(s.TriageAttempts + 1),
				Messages:           assistant(edSafetyQuestion),
			}, nil
		}

		triage := ComputeTriage(mode, cc, op)
		return &Delta{
			Phase:                PhaseClinicalHistory,
			ChiefComplaint:       &cc,
			OPQRST:               &op,
			Triage:               &triage,
			NeedsEmergencyReview: ptr(false),
			SubjectiveComplete:   ptr(true),
			ClinicalStep:         ptr(StepAllergies),
			Messages:             assistant(allergiesQuestion),
		}, nil
	}

	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		reply = severityFollowup
	}
	return &Delta{
		Phase:              PhaseSubjective,
		ChiefComplaint:     &cc,
		OPQRST:             &op,
		SubjectiveComplete: ptr(false),
		Messages:           assistant(reply),
	}, nil
}

func (e *Engine) clinicalHistoryNode(ctx context.Context, s *State) (*Delta, error) {
	user := strings.TrimSpace(s.LastUserText())

	step := s.ClinicalStep
	if step == "" {
		step = StepAllergies
	}

	switch step {
	case StepAllergies:
		if user == "" || IsAck(user) {
			return &Delta{
				Phase:        PhaseClinicalHistory,
				ClinicalStep: ptr(StepAllergies),
				Messages:     assistant(allergiesQuestion),
			}, nil
		}
		allergies := ExtractAllergies(user)
		return &Delta{
			Phase:        PhaseClinicalHistory,
			Allergies:    &allergies,
			ClinicalStep: ptr(StepMeds),
			Messages:     assistant(medsQuestion),
		}, nil

	case StepMeds:
		return e.medsStep(ctx, s, user)

	case StepPMH:
		if user == "" || IsAck(user) {
			return &Delta{
				Phase:        PhaseClinicalHistory,
				ClinicalStep: ptr(StepPMH),
				Messages:     assistant(pmhQuestion),
			}, nil
		}
		pmh := ExtractList(user)
		return &Delta{
			Phase:        PhaseClinicalHistory,
			PMH:          &pmh,
			ClinicalStep: ptr(StepResults),
			Messages:     assistant(resultsQuestion),
		}, nil

	case StepResults:
		if user == "" || IsAck(user) {
			return &Delta{
				Phase:        PhaseClinicalHistory,
				ClinicalStep: ptr(StepResults),
				Messages:     assistant(resultsReprompt),
			}, nil
		}
		results := ExtractList(user)

		preview := *s
		preview.RecentResults = results
		summary := confirmSummary(&preview)

		return &Delta{
			Phase:            PhaseConfirm,
			RecentResults:    &results,
			ClinicalComplete: ptr(true),
			ClinicalStep:     ptr(StepHistDone),
			Messages: assistant(summary +
				"\n\nReply 'confirm' to generate the clinician note, or tell me what you want to change."),
		}, nil
	}

	return &Delta{Phase: PhaseReport}, nil
}

func (e *Engine) medsStep(ctx context.Context, s *State, user string) (*Delta, error) {
	if user == "" || IsAck(user) {
		return &Delta{
			Phase:        PhaseClinicalHistory,
			ClinicalStep: ptr(StepMeds),
			Messages:     assistant(medsReprompt),
		}, nil
	}

	switch strings.ToLower(user) {
	case "none", "no", "no meds", "not taking anything":
		return &Delta{
			Phase:        PhaseClinicalHistory,
			Medications:  &[]Medication{},
			ClinicalStep: ptr(StepPMH),
			Messages:     assistant(pmhQuestion),
		}, nil
	}

	fallback := &MedsOut{Medications: []Medication{}, Reply: "Could you list the medication names you take?"}
	out, meta := llm.RunJSONStep[MedsOut](ctx, e.gen, medsExtractSystem(responseRules), "NEW_USER_MESSAGE="+user, fallback)
	e.logger.Info().
		Str("thread_id", s.ThreadID).
		Str("node", "medications").
		Object("llm", meta).
		Msg("llm_step")

	if len(out.Medications) == 0 {
		reply := strings.TrimSpace(out.Reply)
		if reply == "" {
			reply = "Could you list the medication names you take?"
		}
		return &Delta{
			Phase:        PhaseClinicalHistory,
			ClinicalStep: ptr(StepMeds),
			Messages:     assistant(reply),
		}, nil
	}

	return &Delta{
		Phase:        PhaseClinicalHistory,
		Medications:  &out.Medications,
		ClinicalStep: ptr(StepPMH),
		Messages:     assistant(pmhQuestion),
	}, nil
}

var confirmWords = map[string]bool{
	"confirm": true, "yes": true, "y": true, "ok": true,
	"okay": true, "looks good": true, "correct": true,
}

func (e *Engine) confirmNode(_ context.Context, s *State) (*Delta, error) {
	user := strings.ToLower(strings.TrimSpace(s.LastUserText()))

	if confirmWords[user] {
		return &Delta{
			Phase:    PhaseReport,
			Messages: assistant("Got it — generating the clinician note now."),
		}, nil
	}

	// Lightweight keyword routing back to the phase the user wants to edit.
	containsAny := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(user, k) {
				return true
			}
		}
		return false
	}

	if containsAny("allerg", "med", "medicine", "medication", "pmh", "history", "surgery", "test", "lab", "imaging") {
		return &Delta{
			Phase:        PhaseClinicalHistory,
			ClinicalStep: ptr(StepAllergies),
			Messages:     assistant("Sure — what would you like to update in your medical history?"),
		}, nil
	}
	if containsAny("pain", "symptom", "onset", "severity", "timing", "radiat", "quality", "provocation", "complaint") {
		return &Delta{
			Phase:    PhaseSubjective,
			Messages: assistant("Sure — what would you like to change about your symptoms?"),
		}, nil
	}
	if containsAny("name", "phone", "address") {
		return &Delta{
			Phase:            PhaseIdentity,
			IdentityAttempts: ptr(0),
			Messages:         assistant("Sure — what should I update in your identity details?"),
		}, nil
	}

	return &Delta{
		Phase:    PhaseConfirm,
		Messages: assistant("Reply 'confirm' to proceed, or tell me what you want to change (symptoms, history, or identity)."),
	}, nil
}

func (e *Engine) reportNode(ctx context.Context, s *State) (*Delta, error) {
	cc := s.ChiefComplaint
	if cc == "" {
		cc = "Unknown/Not provided"
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"identity":        s.Identity,
		"chief_complaint": cc,
		"opqrst":          s.OPQRST,
		"allergies":       s.Allergies,
		"medications":     s.Medications,
		"pmh":             s.PMH,
		"recent_results":  s.RecentResults,
		"triage":          s.Triage,
	}, "", "  ")

	res := e.gen.GenerateText(ctx, llm.Request{
		System:      reportSystem(),
		Prompt:      string(payload),
		Temperature: 0.2,
		MaxTokens:   1300,
	})

	text := strings.TrimSpace(res.Text)
	if !res.OK || text == "" {
		text = fallbackReport(s, cc)
	}

	riskLevel := s.Triage.RiskLevel
	if riskLevel == "" {
		riskLevel = "low"
	}
	visitType := s.Triage.VisitType
	if visitType == "" {
		visitType = "routine"
	}

	if err := e.reports.Save(ctx, s.ThreadID, riskLevel, visitType, text); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	if err := e.status.SetStatus(ctx, s.ThreadID, StatusActive); err != nil {
		return nil, fmt.Errorf("set session status: %w", err)
	}

	return &Delta{
		Phase:    PhaseDone,
		Messages: assistant("Intake complete. Your report is ready."),
	}, nil
}

func (e *Engine) handoffNode(_ context.Context, _ *State) (*Delta, error) {
	return &Delta{
		Phase:    PhaseHandoff,
		Messages: assistant(handoffDirective),
	}, nil
}

func (e *Engine) doneNode(_ context.Context, _ *State) (*Delta, error) {
	return &Delta{
		Phase:    PhaseDone,
		Messages: assistant("This intake is already complete. Your report is available to the clinician."),
	}, nil
}
