package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/report"
)

// systemErrorReply is the only thing a patient sees when a turn fails
// unexpectedly. Nothing from the failed turn is persisted or replayed.
const systemErrorReply = "System error: clinical state could not be resumed."

// TurnResponse is the API-facing result of one conversation turn.
type TurnResponse struct {
	ThreadID string `json:"thread_id,omitempty"`
	Reply    string `json:"reply"`
	Phase    string `json:"phase,omitempty"`
	Status   string `json:"status"`
	JobID    string `json:"job_id,omitempty"`
}

// Service drives intake turns: validation, idempotent replay, state
// load/save, transcript persistence and async report jobs.
type Service struct {
	engine          *Engine
	sessions        SessionRepository
	idem            IdempotencyRepository
	jobs            JobStore
	maxMessageChars int
	logger          zerolog.Logger
}

func NewService(
	engine *Engine,
	sessions SessionRepository,
	idem IdempotencyRepository,
	jobs JobStore,
	maxMessageChars int,
	logger zerolog.Logger,
) *Service {
	return &Service{
		engine:          engine,
		sessions:        sessions,
		idem:            idem,
		jobs:            jobs,
		maxMessageChars: maxMessageChars,
		logger:          logger,
	}
}

// Start creates a new session and returns the greeting turn.
func (s *Service) Start(ctx context.Context, mode string) (*TurnResponse, error) {
	threadID := uuid.NewString()
	st := NewState(threadID, ParseMode(mode))

	if err := s.sessions.Create(ctx, threadID); err != nil {
		return nil, err
	}
	s.logger.Info().Str("thread_id", threadID).Str("mode", string(st.Mode)).Msg("api_start")

	t0 := time.Now()
	delta, err := s.engine.Step(ctx, st)
	if err != nil {
		return nil, err
	}
	delta.Apply(st)

	if err := s.sessions.SaveSnapshot(ctx, threadID, st); err != nil {
		return nil, err
	}

	reply := lastAssistantText(st.Messages)
	if err := s.sessions.AppendMessage(ctx, threadID, RoleAssistant, reply); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("thread_id", threadID).
		Int64("duration_ms", time.Since(t0).Milliseconds()).
		Msg("api_start_done")

	return &TurnResponse{
		ThreadID: threadID,
		Reply:    reply,
		Phase:    string(st.CurrentPhase),
		Status:   StatusActive,
	}, nil
}

// Send processes one patient message. Validation failures return sentinel
// errors; engine or persistence failures inside the turn degrade to a
// generic system-error reply with no partial state saved.
func (s *Service) Send(ctx context.Context, threadID, message, clientMsgID string) (*TurnResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > s.maxMessageChars {
		return nil, ErrMessageTooLong
	}

	sum := sha256.Sum256([]byte(message))
	requestHash := hex.EncodeToString(sum[:])

	prev, err := s.idem.Get(ctx, threadID, clientMsgID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if prev.RequestHash != requestHash {
			return nil, ErrIdempotencyConflict
		}
		var resp TurnResponse
		if err := json.Unmarshal(prev.ResponseJSON, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	if _, err := s.sessions.Status(ctx, threadID); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	s.logger.Info().
		Str("request_id", requestID).
		Str("thread_id", threadID).
		Int("message_len", len(message)).
		Msg("api_chat_start")

	t0 := time.Now()
	resp, err := s.runTurn(ctx, threadID, message)
	if err != nil {
		s.logger.Error().
			Str("request_id", requestID).
			Str("thread_id", threadID).
			Str("error", truncateErr(err)).
			Msg("api_error")
		return &TurnResponse{Reply: systemErrorReply, Status: "error"}, nil
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	if err := s.idem.Save(ctx, threadID, clientMsgID, requestHash, respJSON); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("thread_id", threadID).
		Int64("duration_ms", time.Since(t0).Milliseconds()).
		Str("phase", resp.Phase).
		Str("status", resp.Status).
		Msg("api_chat_done")
	return resp, nil
}

func (s *Service) runTurn(ctx context.Context, threadID, message string) (*TurnResponse, error) {
	st, err := s.sessions.Snapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}
	st.Messages = append(st.Messages, Message{Role: RoleUser, Text: message})

	delta, err := s.engine.Step(ctx, st)
	if err != nil {
		return nil, err
	}
	delta.Apply(st)

	if err := s.sessions.SaveSnapshot(ctx, threadID, st); err != nil {
		return nil, err
	}

	// Report generation is slow; it runs as a background job while the
	// patient gets an immediate acknowledgement.
	jobID := ""
	if st.CurrentPhase == PhaseReport {
		jobID, err = s.jobs.Create(ctx, threadID, report.KindReport)
		if err != nil {
			return nil, err
		}
		go s.runReportJob(threadID, jobID)
	}

	reply := lastAssistantText(st.Messages)
	if err := s.sessions.AppendMessage(ctx, threadID, RoleUser, message); err != nil {
		return nil, err
	}
	if err := s.sessions.AppendMessage(ctx, threadID, RoleAssistant, reply); err != nil {
		return nil, err
	}

	status := StatusActive
	if st.Triage.EmergencyFlag {
		status = StatusEscalated
	}
	if err := s.sessions.SetStatus(ctx, threadID, status); err != nil {
		return nil, err
	}

	resp := &TurnResponse{Reply: reply, Status: status, Phase: string(st.CurrentPhase)}
	if jobID != "" {
		resp.JobID = jobID
		resp.Phase = "report_generating"
	}
	return resp, nil
}

// runReportJob executes the report phase outside the request, updating the
// job row as it goes. The request context is long gone by the time this
// runs, so it uses a fresh one.
func (s *Service) runReportJob(threadID, jobID string) {
	ctx := context.Background()

	if err := s.jobs.Update(ctx, jobID, report.JobRunning, ""); err != nil {
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("report_job_update_failed")
	}

	if err := s.generateReport(ctx, threadID); err != nil {
		s.logger.Error().
			Str("thread_id", threadID).
			Str("job_id", jobID).
			Str("error", truncateErr(err)).
			Msg("report_job_failed")
		if uerr := s.jobs.Update(ctx, jobID, report.JobFailed, truncateErr(err)); uerr != nil {
			s.logger.Error().Str("job_id", jobID).Err(uerr).Msg("report_job_update_failed")
		}
		return
	}

	if err := s.jobs.Update(ctx, jobID, report.JobDone, ""); err != nil {
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("report_job_update_failed")
	}
}

func (s *Service) generateReport(ctx context.Context, threadID string) error {
	st, err := s.sessions.Snapshot(ctx, threadID)
	if err != nil {
		return err
	}

	delta, err := s.engine.Step(ctx, st)
	if err != nil {
		return err
	}
	delta.Apply(st)

	if err := s.sessions.SaveSnapshot(ctx, threadID, st); err != nil {
		return err
	}
	if reply := lastAssistantText(delta.Messages); reply != "" {
		if err := s.sessions.AppendMessage(ctx, threadID, RoleAssistant, reply); err != nil {
			return err
		}
	}
	return nil
}

func lastAssistantText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i].Text
		}
	}
	return ""
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > 400 {
		msg = msg[:400]
	}
	return msg
}
