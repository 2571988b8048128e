package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intake/intake/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// -- Session Repository --

type sessionRepoPG struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *sessionRepoPG) Create(ctx context.Context, threadID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sessions (thread_id, status) VALUES ($1, $2)`,
		threadID, StatusActive,
	)
	return err
}

func (r *sessionRepoPG) Status(ctx context.Context, threadID string) (string, error) {
	var status string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT status FROM sessions WHERE thread_id = $1`, threadID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownThread
	}
	return status, err
}

func (r *sessionRepoPG) SetStatus(ctx context.Context, threadID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE sessions SET status = $1, updated_at = now() WHERE thread_id = $2`,
		status, threadID,
	)
	return err
}

func (r *sessionRepoPG) AppendMessage(ctx context.Context, threadID string, role Role, text string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO messages (id, thread_id, role, text) VALUES ($1, $2, $3, $4)`,
		uuid.New(), threadID, string(role), text,
	)
	return err
}

func (r *sessionRepoPG) Transcript(ctx context.Context, threadID string) ([]StoredMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT role, text, created_at FROM messages
		WHERE thread_id = $1 ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		if err := rows.Scan(&role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *sessionRepoPG) SaveSnapshot(ctx context.Context, threadID string, s *State) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO session_state (thread_id, state_json, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (thread_id) DO UPDATE
		SET state_json = EXCLUDED.state_json, updated_at = now()`,
		threadID, blob,
	)
	return err
}

func (r *sessionRepoPG) Snapshot(ctx context.Context, threadID string) (*State, error) {
	var blob []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT state_json FROM session_state WHERE thread_id = $1`, threadID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownThread
	}
	if err != nil {
		return nil, err
	}

	s := &State{}
	if err := json.Unmarshal(blob, s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	s.ThreadID = threadID
	return s, nil
}

func (r *sessionRepoPG) SnapshotJSON(ctx context.Context, threadID string) (json.RawMessage, error) {
	var blob []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT state_json FROM session_state WHERE thread_id = $1`, threadID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(blob), nil
}

// -- Idempotency Repository --

type idempotencyRepoPG struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepoPG{pool: pool}
}

func (r *idempotencyRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *idempotencyRepoPG) Get(ctx context.Context, threadID, key string) (*IdempotentResponse, error) {
	var out IdempotentResponse
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT request_hash, response_json FROM idempotency
		WHERE thread_id = $1 AND key = $2`, threadID, key,
	).Scan(&out.RequestHash, &out.ResponseJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *idempotencyRepoPG) Save(ctx context.Context, threadID, key, requestHash string, responseJSON []byte) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO idempotency (thread_id, key, request_hash, response_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (thread_id, key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash, response_json = EXCLUDED.response_json`,
		threadID, key, requestHash, responseJSON,
	)
	return err
}
