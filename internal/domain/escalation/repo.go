package escalation

import "context"

type Repository interface {
	Create(ctx context.Context, threadID, kind string, payload []byte) error
	// CreateEmergency inserts the escalation and moves the session to
	// escalated in one transaction.
	CreateEmergency(ctx context.Context, threadID string, payload []byte) error
	ListPending(ctx context.Context) ([]*Escalation, error)
	ListByThread(ctx context.Context, threadID string) ([]*Escalation, error)
	Resolve(ctx context.Context, threadID, escID, nurseNote string) error
}
