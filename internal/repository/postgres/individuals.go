package postgres

import (
	"context"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

const individualColumns = `id, name, email, created_at`

// CreateIndividual inserts an individual.
func (r *Repository) CreateIndividual(ctx context.Context, individual *domain.Individual) error {
	if individual == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO individuals (id, name, email, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, individual.ID, individual.Name, individual.Email, individual.CreatedAt)
	return mapWriteError(err)
}

// GetIndividual fetches an individual by identifier.
func (r *Repository) GetIndividual(ctx context.Context, id string) (*domain.Individual, error) {
	return r.scanIndividual(ctx, `SELECT `+individualColumns+` FROM individuals WHERE id = $1`, id)
}

// LockIndividual fetches an individual holding a row lock.
func (r *Repository) LockIndividual(ctx context.Context, id string) (*domain.Individual, error) {
	return r.scanIndividual(ctx, `SELECT `+individualColumns+` FROM individuals WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) scanIndividual(ctx context.Context, query, id string) (*domain.Individual, error) {
	var ind domain.Individual
	if err := r.db.QueryRow(ctx, query, id).Scan(&ind.ID, &ind.Name, &ind.Email, &ind.CreatedAt); err != nil {
		return nil, mapReadError(err)
	}
	return &ind, nil
}
