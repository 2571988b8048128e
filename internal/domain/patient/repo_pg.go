package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

func (r *repoPG) GetByName(ctx context.Context, name string) (*Patient, error) {
	var p Patient
	var blob []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, name, history, data_json FROM patients
		WHERE LOWER(TRIM(name)) = LOWER(TRIM($1))`, name,
	).Scan(&p.PatientID, &p.Name, &p.History, &blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &p.Data); err != nil {
		return nil, fmt.Errorf("decode patient data: %w", err)
	}
	return &p, nil
}

func (r *repoPG) Upsert(ctx context.Context, p *Patient) error {
	blob, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("encode patient data: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (patient_id, name, history, data_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id) DO UPDATE
		SET name = EXCLUDED.name, history = EXCLUDED.history, data_json = EXCLUDED.data_json`,
		p.PatientID, p.Name, p.History, blob,
	)
	return err
}

func (r *repoPG) DeleteByPrefix(ctx context.Context, prefix string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM patients WHERE patient_id LIKE $1 || '%'`, prefix)
	return err
}
