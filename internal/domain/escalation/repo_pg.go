package escalation

import (
	"context"

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

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, threadID, kind string, payload []byte) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO escalations (esc_id, thread_id, kind, payload_json)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), threadID, kind, payload,
	)
	return err
}

func (r *repoPG) CreateEmergency(ctx context.Context, threadID string, payload []byte) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.Create(ctx, threadID, KindEmergency, payload); err != nil {
			return err
		}
		_, err := r.conn(ctx).Exec(ctx, `
			UPDATE sessions SET status = 'escalated', updated_at = now()
			WHERE thread_id = $1`, threadID)
		return err
	})
}

const escalationCols = `esc_id, thread_id, kind, payload_json, resolved, COALESCE(nurse_note, ''), created_at`

func (r *repoPG) ListPending(ctx context.Context) ([]*Escalation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+escalationCols+` FROM escalations
		WHERE resolved = false ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

func (r *repoPG) ListByThread(ctx context.Context, threadID string) ([]*Escalation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+escalationCols+` FROM escalations
		WHERE thread_id = $1 ORDER BY created_at DESC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

func scanEscalations(rows pgx.Rows) ([]*Escalation, error) {
	out := []*Escalation{}
	for rows.Next() {
		var e Escalation
		if err := rows.Scan(&e.EscID, &e.ThreadID, &e.Kind, &e.Payload, &e.Resolved, &e.NurseNote, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *repoPG) Resolve(ctx context.Context, threadID, escID, nurseNote string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE escalations SET resolved = true, nurse_note = $1
		WHERE thread_id = $2 AND esc_id = $3`,
		nurseNote, threadID, escID,
	)
	return err
}
