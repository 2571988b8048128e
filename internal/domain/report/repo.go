package report

import "context"

type Repository interface {
	Save(ctx context.Context, threadID, riskLevel, visitType, text string) error
	// LatestByThread returns nil when no report exists yet.
	LatestByThread(ctx context.Context, threadID string) (*Report, error)
}

type JobRepository interface {
	Create(ctx context.Context, threadID, kind string) (string, error)
	Update(ctx context.Context, jobID, status, errMsg string) error
	// GetByID returns nil when the job does not exist.
	GetByID(ctx context.Context, jobID string) (*Job, error)
}
