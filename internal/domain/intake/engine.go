package intake

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/llm"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusEscalated = "escalated"
)

// Escalation kinds.
const (
	EscalationIdentityReview = "identity_review"
	EscalationEmergency      = "emergency"
)

// PatientDirectory looks up demographics stored from prior visits. A nil
// result with nil error means no record matched.
type PatientDirectory interface {
	IdentityByName(ctx context.Context, name string) (*Identity, error)
}

// Escalator records items for clinician review. RaiseEmergency additionally
// moves the session to escalated in the same transaction, so a crash can
// never leave an emergency without a flagged session.
type Escalator interface {
	Raise(ctx context.Context, threadID, kind string, payload any) error
	RaiseEmergency(ctx context.Context, threadID string, payload any) error
}

// ReportStore persists generated clinician notes.
type ReportStore interface {
	Save(ctx context.Context, threadID, riskLevel, visitType, text string) error
}

// StatusSetter updates the session status.
type StatusSetter interface {
	SetStatus(ctx context.Context, threadID, status string) error
}

type nodeFunc func(ctx context.Context, s *State) (*Delta, error)

// Engine advances an intake conversation one step at a time. Each Step runs
// exactly one phase handler against the current state and returns the delta
// to persist; it never mutates the input state.
type Engine struct {
	gen       llm.Generator
	patients  PatientDirectory
	escalator Escalator
	status    StatusSetter
	reports   ReportStore
	logger    zerolog.Logger

	nodes map[Phase]nodeFunc
}

func NewEngine(
	gen llm.Generator,
	patients PatientDirectory,
	escalator Escalator,
	status StatusSetter,
	reports ReportStore,
	logger zerolog.Logger,
) *Engine {
	e := &Engine{
		gen:       gen,
		patients:  patients,
		escalator: escalator,
		status:    status,
		reports:   reports,
		logger:    logger,
	}
	e.nodes = map[Phase]nodeFunc{
		PhaseIdentity:        e.identityNode,
		PhaseIdentityReview:  e.identityReviewNode,
		PhaseSubjective:      e.subjectiveNode,
		PhaseClinicalHistory: e.clinicalHistoryNode,
		PhaseConfirm:         e.confirmNode,
		PhaseReport:          e.reportNode,
		PhaseHandoff:         e.handoffNode,
		PhaseDone:            e.doneNode,
	}
	return e
}

// Step dispatches on the current phase. Unknown phases fall back to the
// identity handler.
func (e *Engine) Step(ctx context.Context, s *State) (*Delta, error) {
	phase := s.CurrentPhase
	if phase == "" {
		phase = PhaseIdentity
	}
	node, ok := e.nodes[phase]
	if !ok {
		node = e.identityNode
	}
	return node(ctx, s)
}
