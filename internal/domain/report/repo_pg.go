package report

import (
	"context"
	"errors"

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

func (r *repoPG) Save(ctx context.Context, threadID, riskLevel, visitType, text string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reports (report_id, thread_id, risk_level, visit_type, report_text)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), threadID, riskLevel, visitType, text,
	)
	return err
}

func (r *repoPG) LatestByThread(ctx context.Context, threadID string) (*Report, error) {
	var rep Report
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT report_id, thread_id, risk_level, visit_type, report_text, created_at
		FROM reports WHERE thread_id = $1
		ORDER BY created_at DESC, report_id DESC LIMIT 1`, threadID,
	).Scan(&rep.ReportID, &rep.ThreadID, &rep.RiskLevel, &rep.VisitType, &rep.Text, &rep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

type jobRepoPG struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) JobRepository {
	return &jobRepoPG{pool: pool}
}

func (r *jobRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *jobRepoPG) Create(ctx context.Context, threadID, kind string) (string, error) {
	jobID := uuid.NewString()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO jobs (job_id, thread_id, kind, status) VALUES ($1, $2, $3, $4)`,
		jobID, threadID, kind, JobQueued,
	)
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (r *jobRepoPG) Update(ctx context.Context, jobID, status, errMsg string) error {
	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE jobs SET status = $1, error = $2, updated_at = now() WHERE job_id = $3`,
		status, errCol, jobID,
	)
	return err
}

func (r *jobRepoPG) GetByID(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	var errCol *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT job_id, thread_id, kind, status, error, updated_at
		FROM jobs WHERE job_id = $1`, jobID,
	).Scan(&j.JobID, &j.ThreadID, &j.Kind, &j.Status, &errCol, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if errCol != nil {
		j.Error = *errCol
	}
	return &j, nil
}
