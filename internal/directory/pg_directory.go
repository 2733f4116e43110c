package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, specialty
		FROM practitioners
		ORDER BY display_name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		var p Practitioner
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Specialty); err != nil {
			return nil, fmt.Errorf("scan practitioner: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	return result, nil
}

func (d *PgDirectory) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, email
		FROM patients
		ORDER BY display_name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	return result, nil
}
