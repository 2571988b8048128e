package escalation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// SessionStatusSetter updates a session's status when an escalation is
// resolved.
type SessionStatusSetter interface {
	SetStatus(ctx context.Context, threadID, status string) error
}

type Service struct {
	repo     Repository
	sessions SessionStatusSetter
	logger   zerolog.Logger
}

func NewService(repo Repository, sessions SessionStatusSetter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, logger: logger}
}

// Raise records an escalation for later clinician review.
func (s *Service) Raise(ctx context.Context, threadID, kind string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal escalation payload: %w", err)
	}
	if err := s.repo.Create(ctx, threadID, kind, blob); err != nil {
		return err
	}
	s.logger.Info().Str("thread_id", threadID).Str("kind", kind).Msg("escalation_created")
	return nil
}

// RaiseEmergency records an emergency escalation and flags the session as
// escalated atomically.
func (s *Service) RaiseEmergency(ctx context.Context, threadID string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal escalation payload: %w", err)
	}
	return s.repo.CreateEmergency(ctx, threadID, blob)
}

// Pending lists unresolved escalations, newest first.
func (s *Service) Pending(ctx context.Context) ([]*Escalation, error) {
	return s.repo.ListPending(ctx)
}

// ByThread lists all escalations for one thread, newest first.
func (s *Service) ByThread(ctx context.Context, threadID string) ([]*Escalation, error) {
	return s.repo.ListByThread(ctx, threadID)
}

// Resolve closes an escalation with a nurse note and returns the session
// to active.
func (s *Service) Resolve(ctx context.Context, threadID, escID, nurseNote string) error {
	if err := s.repo.Resolve(ctx, threadID, escID, nurseNote); err != nil {
		return err
	}
	if err := s.sessions.SetStatus(ctx, threadID, "active"); err != nil {
		return err
	}
	s.logger.Info().Str("thread_id", threadID).Str("esc_id", escID).Msg("escalation_resolved")
	return nil
}
