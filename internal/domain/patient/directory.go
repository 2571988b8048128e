package patient

import (
	"context"

	"github.com/intake/intake/internal/domain/intake"
)

// Directory adapts stored patient records to the demographics lookup the
// intake engine expects.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) IdentityByName(ctx context.Context, name string) (*intake.Identity, error) {
	p, err := d.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return &intake.Identity{
		Name:    p.Name,
		Phone:   p.Data.Identity.Phone,
		Address: p.Data.Identity.Address,
	}, nil
}
