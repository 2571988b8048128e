package intake

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrEmptyMessage rejects blank patient input.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrMessageTooLong rejects input over the configured cap.
	ErrMessageTooLong = errors.New("message too long")
	// ErrUnknownThread means no session exists for the thread id.
	ErrUnknownThread = errors.New("unknown thread id")
	// ErrIdempotencyConflict means a client message id was reused with
	// different content.
	ErrIdempotencyConflict = errors.New("client_msg_id reused for a different message")
)

// StoredMessage is one persisted transcript row.
type StoredMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// IdempotentResponse is a previously served chat response keyed by
// client message id.
type IdempotentResponse struct {
	RequestHash  string
	ResponseJSON []byte
}

// SessionRepository persists sessions, transcripts and per-turn state
// snapshots.
type SessionRepository interface {
	Create(ctx context.Context, threadID string) error
	// Status returns ErrUnknownThread when the session does not exist.
	Status(ctx context.Context, threadID string) (string, error)
	SetStatus(ctx context.Context, threadID, status string) error

	AppendMessage(ctx context.Context, threadID string, role Role, text string) error
	Transcript(ctx context.Context, threadID string) ([]StoredMessage, error)

	SaveSnapshot(ctx context.Context, threadID string, s *State) error
	// Snapshot returns ErrUnknownThread when no snapshot has been saved.
	Snapshot(ctx context.Context, threadID string) (*State, error)
	// SnapshotJSON returns the raw stored snapshot for clinician review,
	// or nil when none exists.
	SnapshotJSON(ctx context.Context, threadID string) (json.RawMessage, error)
}

// IdempotencyRepository replays responses for repeated client message ids.
type IdempotencyRepository interface {
	// Get returns nil when the key has not been seen.
	Get(ctx context.Context, threadID, key string) (*IdempotentResponse, error)
	Save(ctx context.Context, threadID, key, requestHash string, responseJSON []byte) error
}

// JobStore tracks async report generation jobs.
type JobStore interface {
	Create(ctx context.Context, threadID, kind string) (string, error)
	Update(ctx context.Context, jobID, status, errMsg string) error
}
