package intake

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/llm"
)

// -- test doubles --

type stubGen struct {
	mu      sync.Mutex
	results []llm.Result
	reqs    []llm.Request
}

func (g *stubGen) GenerateText(_ context.Context, req llm.Request) llm.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	i := len(g.reqs) - 1
	if i >= len(g.results) {
		if len(g.results) == 0 {
			return llm.Result{Err: "no stubbed result"}
		}
		i = len(g.results) - 1
	}
	return g.results[i]
}

func (g *stubGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

type stubPatients struct {
	byName map[string]Identity
}

func (p *stubPatients) IdentityByName(_ context.Context, name string) (*Identity, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := p.byName[key]; ok {
		return &id, nil
	}
	return nil, nil
}

type raisedEscalation struct {
	threadID  string
	kind      string
	emergency bool
}

type stubEscalator struct {
	mu     sync.Mutex
	err    error
	raised []raisedEscalation
}

func (e *stubEscalator) Raise(_ context.Context, threadID, kind string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.raised = append(e.raised, raisedEscalation{threadID: threadID, kind: kind})
	return nil
}

func (e *stubEscalator) RaiseEmergency(_ context.Context, threadID string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.raised = append(e.raised, raisedEscalation{threadID: threadID, kind: EscalationEmergency, emergency: true})
	return nil
}

type stubStatus struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newStubStatus() *stubStatus {
	return &stubStatus{statuses: make(map[string]string)}
}

func (s *stubStatus) SetStatus(_ context.Context, threadID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[threadID] = status
	return nil
}

type savedReport struct {
	threadID, riskLevel, visitType, text string
}

type stubReports struct {
	mu      sync.Mutex
	saveErr error
	saved   []savedReport
}

func (r *stubReports) Save(_ context.Context, threadID, riskLevel, visitType, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, savedReport{threadID, riskLevel, visitType, text})
	return nil
}

type engineFixture struct {
	engine    *Engine
	gen       *stubGen
	patients  *stubPatients
	escalator *stubEscalator
	status    *stubStatus
	reports   *stubReports
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		gen:       &stubGen{},
		patients:  &stubPatients{byName: map[string]Identity{}},
		escalator: &stubEscalator{},
		status:    newStubStatus(),
		reports:   &stubReports{},
	}
	f.engine = NewEngine(f.gen, f.patients, f.escalator, f.status, f.reports, zerolog.Nop())
	return f
}

// turn feeds one user message through the engine and applies the delta,
// the way the service drives a turn.
func turn(t *testing.T, e *Engine, st *State, text string) string {
	t.Helper()
	st.Messages = []Message{{Role: RoleUser, Text: text}}
	delta, err := e.Step(context.Background(), st)
	if err != nil {
		t.Fatalf("step failed on %q: %v", text, err)
	}
	delta.Apply(st)
	return lastAssistantText(st.Messages)
}

// -- identity --

func TestIdentityNode_Greeting(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeClinic)

	delta, err := f.engine.Step(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	delta.Apply(st)

	if st.CurrentPhase != PhaseIdentity {
		t.Errorf("expected identity phase, got %s", st.CurrentPhase)
	}
	if reply := lastAssistantText(st.Messages); !strings.Contains(reply, "full name") {
		t.Errorf("expected name question, got %q", reply)
	}
}

func TestIdentityNode_CollectsFieldsInOrder(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeClinic)

	if reply := turn(t, f.engine, st, "John Smith"); !strings.Contains(reply, "date of birth") {
		t.Fatalf("expected dob question, got %q", reply)
	}
	if reply := turn(t, f.engine, st, "01/02/1990"); !strings.Contains(reply, "phone") {
		t.Fatalf("expected phone question, got %q", reply)
	}
	if reply := turn(t, f.engine, st, "412-555-0199"); !strings.Contains(reply, "address") {
		t.Fatalf("expected address question, got %q", reply)
	}
	reply := turn(t, f.engine, st, "100 Forbes Ave, Pittsburgh")

	if st.CurrentPhase != PhaseIdentityReview {
		t.Errorf("expected identity_review, got %s", st.CurrentPhase)
	}
	if !strings.Contains(reply, "Is this correct?") {
		t.Errorf("expected confirmation prompt, got %q", reply)
	}
	if st.Identity.Phone != "4125550199" {
		t.Errorf("expected normalized phone, got %q", st.Identity.Phone)
	}
	if st.Identity.Name != "John Smith" || st.Identity.DOB != "01/02/1990" {
		t.Errorf("unexpected identity: %+v", st.Identity)
	}
}

func TestIdentityNode_StoredMatchOffersKeepUpdate(t *testing.T) {
	f := newEngineFixture()
	f.patients.byName["ava johnson"] = Identity{Name: "Ava Johnson", Phone: "4125550199", Address: "100 Forbes Ave, Pittsburgh, PA"}

	st := NewState("t1", ModeClinic)
	st.Identity = Identity{DOB: "01/02/1990", Phone: "5551234567", Address: "9 Oak Lane"}
	st.IdentityAttempts = 3
	st.CurrentPhase = PhaseIdentity

	reply := turn(t, f.engine, st, "Ava Johnson")
	if st.CurrentPhase != PhaseIdentityReview {
		t.Fatalf("expected identity_review, got %s", st.CurrentPhase)
	}
	if st.StoredIdentity == nil {
		t.Fatal("expected stored identity on state")
	}
	if !strings.Contains(reply, "keep/update") {
		t.Errorf("expected keep/update prompt, got %q", reply)
	}
}

func TestIdentityReview_YesAdvances(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseIdentityReview
	st.Identity = Identity{Name: "John Smith", DOB: "01/02/1990", Phone: "4125550199", Address: "100 Forbes Ave"}

	reply := turn(t, f.engine, st, "yes")
	if st.CurrentPhase != PhaseSubjective {
		t.Errorf("expected subjective, got %s", st.CurrentPhase)
	}
	if st.IdentityStatus != IdentityVerified {
		t.Errorf("expected verified, got %s", st.IdentityStatus)
	}
	if !strings.Contains(reply, "main reason for your visit") {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestIdentityReview_NoRestartsCollection(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseIdentityReview
	st.Identity = Identity{Name: "John Smith", DOB: "01/02/1990", Phone: "4125550199", Address: "100 Forbes Ave"}
	st.IdentityAttempts = 4

	turn(t, f.engine, st, "no")
	if st.CurrentPhase != PhaseIdentity {
		t.Errorf("expected identity, got %s", st.CurrentPhase)
	}
	if st.Identity != (Identity{}) {
		t.Errorf("expected cleared identity, got %+v", st.Identity)
	}
	if st.IdentityAttempts != 0 {
		t.Errorf("expected attempts reset, got %d", st.IdentityAttempts)
	}
	if !st.NeedsIdentityReview {
		t.Error("expected needs_identity_review")
	}
}

func TestIdentityReview_KeepAdoptsStored(t *testing.T) {
	f := newEngineFixture()
	stored := Identity{Name: "Ava Johnson", Phone: "4125550199", Address: "100 Forbes Ave, Pittsburgh, PA"}
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseIdentityReview
	st.Identity = Identity{Name: "Ava Johnson", DOB: "01/02/1990", Phone: "5551234567", Address: "9 Oak Lane"}
	st.StoredIdentity = &stored

	turn(t, f.engine, st, "keep")
	if st.CurrentPhase != PhaseSubjective {
		t.Errorf("expected subjective, got %s", st.CurrentPhase)
	}
	if st.Identity != stored {
		t.Errorf("expected stored identity adopted, got %+v", st.Identity)
	}
	if st.IdentityStatus != IdentityVerified {
		t.Errorf("expected verified, got %s", st.IdentityStatus)
	}
	if len(f.escalator.raised) != 0 {
		t.Error("keep must not raise an escalation")
	}
}

func TestIdentityReview_UpdateRaisesReviewEscalation(t *testing.T) {
	f := newEngineFixture()
	stored := Identity{Name: "Ava Johnson", Phone: "4125550199", Address: "100 Forbes Ave, Pittsburgh, PA"}
	provided := Identity{Name: "Ava Johnson", DOB: "01/02/1990", Phone: "5551234567", Address: "9 Oak Lane"}
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseIdentityReview
	st.Identity = provided
	st.StoredIdentity = &stored

	turn(t, f.engine, st, "update please")
	if st.CurrentPhase != PhaseSubjective {
		t.Errorf("expected subjective, got %s", st.CurrentPhase)
	}
	if st.Identity != provided {
		t.Errorf("expected provided identity kept, got %+v", st.Identity)
	}
	if st.IdentityStatus != IdentityUnverified || !st.NeedsIdentityReview {
		t.Error("update must stay unverified and flagged for review")
	}
	if len(f.escalator.raised) != 1 || f.escalator.raised[0].kind != EscalationIdentityReview {
		t.Errorf("expected identity_review escalation, got %+v", f.escalator.raised)
	}
}

func TestIdentityReview_UnclearReprompts(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseIdentityReview
	st.Identity = Identity{Name: "John Smith", DOB: "01/02/1990", Phone: "4125550199", Address: "100 Forbes Ave"}

	reply := turn(t, f.engine, st, "hmm maybe")
	if st.CurrentPhase != PhaseIdentityReview {
		t.Errorf("expected to stay in identity_review, got %s", st.CurrentPhase)
	}
	if !strings.Contains(reply, "(yes/no)") {
		t.Errorf("unexpected reply %q", reply)
	}
}

// -- subjective --

func subjectiveState(mode Mode) *State {
	st := NewState("t1", mode)
	st.CurrentPhase = PhaseSubjective
	st.Identity = Identity{Name: "John Smith", DOB: "01/02/1990", Phone: "4125550199", Address: "100 Forbes Ave"}
	st.IdentityStatus = IdentityVerified
	return st
}

func TestSubjective_AckWithoutComplaintReprompts(t *testing.T) {
	f := newEngineFixture()
	st := subjectiveState(ModeClinic)

	reply := turn(t, f.engine, st, "ok")
	if !strings.Contains(reply, "main reason for your visit") {
		t.Errorf("unexpected reply %q", reply)
	}
	if f.gen.calls() != 0 {
		t.Errorf("acknowledgement must not reach the model, got %d calls", f.gen.calls())
	}
}

func TestSubjective_RedFlagEscalatesBeforeModel(t *testing.T) {
	f := newEngineFixture()
	st := subjectiveState(ModeClinic)

	reply := turn(t, f.engine, st, "I have chest pain right now")
	if st.CurrentPhase != PhaseHandoff {
		t.Fatalf("expected handoff, got %s", st.CurrentPhase)
	}
	if !st.Triage.EmergencyFlag || st.Triage.VisitType != "emergency" || st.Triage.RiskLevel != "high" {
		t.Errorf("unexpected triage %+v", st.Triage)
	}
	if len(st.Triage.RedFlags) != 1 || st.Triage.RedFlags[0] != "chest pain" {
		t.Errorf("unexpected red flags %v", st.Triage.RedFlags)
	}
	if !strings.Contains(reply, "911") {
		t.Errorf("expected emergency directive, got %q", reply)
	}
	if f.gen.calls() != 0 {
		t.Error("red-flag turns must not reach the model")
	}
	if len(f.escalator.raised) != 1 || !f.escalator.raised[0].emergency {
		t.Errorf("expected one emergency escalation, got %+v", f.escalator.raised)
	}
}

func TestSubjective_NegatedFlagProceeds(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"chief_complaint":"headache","opqrst":{"onset":"","provocation":"","quality":"","radiation":"","severity":"","timing":""},"is_complete":false,"reply":"When did it start?"}`}}
	st := subjectiveState(ModeClinic)

	turn(t, f.engine, st, "bad headache but no chest pain")
	if st.CurrentPhase != PhaseSubjective {
		t.Errorf("expected subjective, got %s", st.CurrentPhase)
	}
	if len(f.escalator.raised) != 0 {
		t.Errorf("negated phrase must not escalate, got %+v", f.escalator.raised)
	}
	if f.gen.calls() != 1 {
		t.Errorf("expected one model call, got %d", f.gen.calls())
	}
}

func TestSubjective_IncompleteKeepsAsking(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"chief_complaint":"sore throat","opqrst":{"onset":"","provocation":"","quality":"","radiation":"","severity":"","timing":""},"is_complete":false,"reply":"How severe is it from 0-10?"}`}}
	st := subjectiveState(ModeClinic)

	reply := turn(t, f.engine, st, "my throat hurts")
	if st.CurrentPhase != PhaseSubjective {
		t.Errorf("expected subjective, got %s", st.CurrentPhase)
	}
	if st.ChiefComplaint != "sore throat" {
		t.Errorf("expected complaint captured, got %q", st.ChiefComplaint)
	}
	if reply != "How severe is it from 0-10?" {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestSubjective_FillOnceNeverOverwrites(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"chief_complaint":"something else","opqrst":{"onset":"last week","provocation":"","quality":"","radiation":"","severity":"3","timing":""},"is_complete":false,"reply":"Anything make it worse?"}`}}
	st := subjectiveState(ModeClinic)
	st.ChiefComplaint = "sore throat"
	st.OPQRST.Onset = "yesterday"

	turn(t, f.engine, st, "it started last week, maybe a 3")
	if st.ChiefComplaint != "sore throat" {
		t.Errorf("chief complaint overwritten: %q", st.ChiefComplaint)
	}
	if st.OPQRST.Onset != "yesterday" {
		t.Errorf("onset overwritten: %q", st.OPQRST.Onset)
	}
	if st.OPQRST.Severity != "3" {
		t.Errorf("severity not filled: %q", st.OPQRST.Severity)
	}
}

func TestSubjective_CompleteMovesToClinicalHistory(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"chief_complaint":"sore throat","opqrst":{"onset":"yesterday","provocation":"","quality":"","radiation":"","severity":"4","timing":"constant"},"is_complete":true,"reply":""}`}}
	st := subjectiveState(ModeClinic)

	reply := turn(t, f.engine, st, "started yesterday, about a 4, constant")
	if st.CurrentPhase != PhaseClinicalHistory {
		t.Fatalf("expected clinical_history, got %s", st.CurrentPhase)
	}
	if st.ClinicalStep != StepAllergies {
		t.Errorf("expected allergies step, got %s", st.ClinicalStep)
	}
	if !st.SubjectiveComplete {
		t.Error("expected subjective_complete")
	}
	if st.Triage.VisitType != "routine" {
		t.Errorf("clinic triage should be routine, got %q", st.Triage.VisitType)
	}
	if !strings.Contains(reply, "allergies") {
		t.Errorf("expected allergies question, got %q", reply)
	}
}

func TestSubjective_EDFollowupAskedOnce(t *testing.T) {
	f := newEngineFixture()
	complete := `{"chief_complaint":"chest pressure","opqrst":{"onset":"an hour ago","provocation":"","quality":"pressure","radiation":"","severity":"6","timing":"constant"},"is_complete":true,"reply":""}`
	f.gen.results = []llm.Result{{OK: true, Text: complete}}
	st := subjectiveState(ModeED)

	reply := turn(t, f.engine, st, "chest pressure for the last hour, about a 6")
	if st.CurrentPhase != PhaseSubjective {
		t.Fatalf("expected one safety clarifier first, got phase %s", st.CurrentPhase)
	}
	if st.TriageAttempts != 1 {
		t.Errorf("expected triage_attempts=1, got %d", st.TriageAttempts)
	}
	if !strings.Contains(reply, "safety check") {
		t.Errorf("expected safety question, got %q", reply)
	}

	// Second pass: clarifier answered without new red flags, triage runs.
	f.gen.results = []llm.Result{{OK: true, Text: complete}}
	f.gen.reqs = nil
	turn(t, f.engine, st, "none of those, just the pressure in my chest")
	if st.CurrentPhase != PhaseClinicalHistory {
		t.Fatalf("expected clinical_history, got %s", st.CurrentPhase)
	}
	if st.Triage.VisitType != "urgent_care_today" || st.Triage.RiskLevel != "medium" {
		t.Errorf("unexpected ED triage %+v", st.Triage)
	}
}

// -- clinical history --

func historyState(step ClinicalStep) *State {
	st := NewState("t1", ModeClinic)
	st.CurrentPhase = PhaseClinicalHistory
	st.ClinicalStep = step
	st.ChiefComplaint = "sore throat"
	st.OPQRST = OPQRST{Onset: "yesterday", Severity: "4", Timing: "constant"}
	st.SubjectiveComplete = true
	return st
}

func TestClinicalHistory_AllergiesToMeds(t *testing.T) {
	f := newEngineFixture()
	st := historyState(StepAllergies)

	reply := turn(t, f.engine, st, "penicillin and latex")
	if st.ClinicalStep != StepMeds {
		t.Errorf("expected meds step, got %s", st.ClinicalStep)
	}
	if len(st.Allergies) != 2 {
		t.Errorf("unexpected allergies %v", st.Allergies)
	}
	if !strings.Contains(reply, "medications") {
		t.Errorf("expected meds question, got %q", reply)
	}
}

func TestClinicalHistory_MedsNoneShortCircuits(t *testing.T) {
	f := newEngineFixture()
	st := historyState(StepMeds)

	reply := turn(t, f.engine, st, "none")
	if st.ClinicalStep != StepPMH {
		t.Errorf("expected pmh step, got %s", st.ClinicalStep)
	}
	if len(st.Medications) != 0 {
		t.Errorf("expected no medications, got %v", st.Medications)
	}
	if f.gen.calls() != 0 {
		t.Error("'none' must not reach the model")
	}
	if !strings.Contains(reply, "past medical conditions") {
		t.Errorf("expected pmh question, got %q", reply)
	}
}

func TestClinicalHistory_MedsParsedByModel(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"medications":[{"name":"lisinopril","dose":"10mg","freq":"daily","last_taken":"this morning"}],"reply":""}`}}
	st := historyState(StepMeds)

	turn(t, f.engine, st, "lisinopril 10mg daily, last took it this morning")
	if st.ClinicalStep != StepPMH {
		t.Errorf("expected pmh step, got %s", st.ClinicalStep)
	}
	if len(st.Medications) != 1 || st.Medications[0].Name != "lisinopril" {
		t.Errorf("unexpected medications %+v", st.Medications)
	}
}

func TestClinicalHistory_MedsUnparseableReasks(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: `{"medications":[],"reply":"Could you list the medication names you take?"}`}}
	st := historyState(StepMeds)

	reply := turn(t, f.engine, st, "the little blue ones")
	if st.ClinicalStep != StepMeds {
		t.Errorf("expected to stay on meds, got %s", st.ClinicalStep)
	}
	if !strings.Contains(reply, "medication names") {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestClinicalHistory_ResultsCompleteShowsSummary(t *testing.T) {
	f := newEngineFixture()
	st := historyState(StepResults)
	st.Identity = Identity{Name: "John Smith", DOB: "01/02/1990", Phone: "4125550199", Address: "100 Forbes Ave"}
	st.Allergies = []string{"penicillin"}
	st.Medications = []Medication{{Name: "lisinopril", Dose: "10mg", Freq: "daily"}}
	st.PMH = []string{"hypertension"}

	reply := turn(t, f.engine, st, "CBC last month")
	if st.CurrentPhase != PhaseConfirm {
		t.Fatalf("expected confirm, got %s", st.CurrentPhase)
	}
	if !st.ClinicalComplete || st.ClinicalStep != StepHistDone {
		t.Errorf("expected clinical history closed, got step=%s complete=%v", st.ClinicalStep, st.ClinicalComplete)
	}
	for _, want := range []string{"John Smith", "sore throat", "penicillin", "lisinopril 10mg (daily)", "hypertension", "CBC last month", "Reply 'confirm'"} {
		if !strings.Contains(reply, want) {
			t.Errorf("summary missing %q:\n%s", want, reply)
		}
	}
}

// -- confirm --

func confirmState() *State {
	st := historyState(StepHistDone)
	st.CurrentPhase = PhaseConfirm
	st.ClinicalComplete = true
	return st
}

func TestConfirm_ConfirmSchedulesReport(t *testing.T) {
	f := newEngineFixture()
	st := confirmState()

	reply := turn(t, f.engine, st, "confirm")
	if st.CurrentPhase != PhaseReport {
		t.Errorf("expected report, got %s", st.CurrentPhase)
	}
	if !strings.Contains(reply, "generating the clinician note") {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestConfirm_EditRouting(t *testing.T) {
	cases := []struct {
		message string
		phase   Phase
	}{
		{"my medications are wrong", PhaseClinicalHistory},
		{"the allergies list is off", PhaseClinicalHistory},
		{"change my symptom severity", PhaseSubjective},
		{"my phone number changed", PhaseIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			f := newEngineFixture()
			st := confirmState()
			turn(t, f.engine, st, tc.message)
			if st.CurrentPhase != tc.phase {
				t.Errorf("%q routed to %s, want %s", tc.message, st.CurrentPhase, tc.phase)
			}
		})
	}
}

func TestConfirm_UnrecognizedReprompts(t *testing.T) {
	f := newEngineFixture()
	st := confirmState()

	reply := turn(t, f.engine, st, "what happens next?")
	if st.CurrentPhase != PhaseConfirm {
		t.Errorf("expected confirm, got %s", st.CurrentPhase)
	}
	if !strings.Contains(reply, "Reply 'confirm'") {
		t.Errorf("unexpected reply %q", reply)
	}
}

// -- report & handoff --

func TestReportNode_SavesGeneratedNote(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{OK: true, Text: "Subjective Intake (Why)\nChief Complaint (CC): sore throat"}}
	st := confirmState()
	st.CurrentPhase = PhaseReport
	st.Triage = Triage{RiskLevel: "low", VisitType: "routine", RedFlags: []string{}}

	delta, err := f.engine.Step(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	delta.Apply(st)

	if st.CurrentPhase != PhaseDone {
		t.Errorf("expected done, got %s", st.CurrentPhase)
	}
	if len(f.reports.saved) != 1 {
		t.Fatalf("expected one saved report, got %d", len(f.reports.saved))
	}
	saved := f.reports.saved[0]
	if saved.riskLevel != "low" || saved.visitType != "routine" {
		t.Errorf("unexpected report metadata %+v", saved)
	}
	if !strings.Contains(saved.text, "sore throat") {
		t.Errorf("unexpected report text %q", saved.text)
	}
	if f.status.statuses["t1"] != StatusActive {
		t.Errorf("expected session back to active, got %q", f.status.statuses["t1"])
	}
}

func TestReportNode_FallbackTemplateOnModelFailure(t *testing.T) {
	f := newEngineFixture()
	f.gen.results = []llm.Result{{Err: "rate limit"}}
	st := confirmState()
	st.CurrentPhase = PhaseReport
	st.Allergies = []string{"penicillin"}

	delta, err := f.engine.Step(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	delta.Apply(st)

	if len(f.reports.saved) != 1 {
		t.Fatalf("expected one saved report, got %d", len(f.reports.saved))
	}
	text := f.reports.saved[0].text
	for _, want := range []string{"Chief Complaint (CC): sore throat", "ALLERGIES (IMPORTANT): penicillin", "HPI (OPQRST):", "Unknown/Not provided"} {
		if !strings.Contains(text, want) {
			t.Errorf("fallback report missing %q", want)
		}
	}
}

func TestHandoffNode_RepeatsDirective(t *testing.T) {
	f := newEngineFixture()
	st := NewState("t1", ModeED)
	st.CurrentPhase = PhaseHandoff

	reply := turn(t, f.engine, st, "should I still come in?")
	if st.CurrentPhase != PhaseHandoff {
		t.Errorf("expected handoff to be terminal, got %s", st.CurrentPhase)
	}
	if !strings.Contains(reply, "911") {
		t.Errorf("unexpected reply %q", reply)
	}
}
