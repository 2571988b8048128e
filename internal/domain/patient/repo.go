package patient

import "context"

type Repository interface {
	// GetByName matches case-insensitively on the trimmed name and returns
	// nil when no record exists.
	GetByName(ctx context.Context, name string) (*Patient, error)
	Upsert(ctx context.Context, p *Patient) error
	// DeleteByPrefix removes records whose patient_id starts with the
	// prefix. The seeder uses it to refresh demo data.
	DeleteByPrefix(ctx context.Context, prefix string) error
}
