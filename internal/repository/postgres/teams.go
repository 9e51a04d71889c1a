package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

const teamColumns = `id, name, description, designer_max, backend_max, frontend_max, manager_max,
	is_recruiting, completed_at, COALESCE(result_url, ''), created_at, updated_at`

// CreateTeam creates a team record.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	if team == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO teams (id, name, description, designer_max, backend_max, frontend_max, manager_max,
		is_recruiting, completed_at, result_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		team.ID,
		team.Name,
		team.Description,
		team.Positions.Designer,
		team.Positions.Backend,
		team.Positions.Frontend,
		team.Positions.Manager,
		team.IsRecruiting,
		team.CompletedAt,
		nilIfEmpty(team.ResultURL),
		team.CreatedAt,
		team.UpdatedAt,
	)
	return mapWriteError(err)
}

// UpdateTeam overwrites mutable team fields.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	if team == nil {
		return repository.ErrInvalidArgument
	}
	const query = `UPDATE teams
		SET name = $2,
			description = $3,
			designer_max = $4,
			backend_max = $5,
			frontend_max = $6,
			manager_max = $7,
			is_recruiting = $8,
			completed_at = $9,
			result_url = $10,
			updated_at = $11
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		team.ID,
		team.Name,
		team.Description,
		team.Positions.Designer,
		team.Positions.Backend,
		team.Positions.Frontend,
		team.Positions.Manager,
		team.IsRecruiting,
		team.CompletedAt,
		nilIfEmpty(team.ResultURL),
		team.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetTeam returns a team by identifier.
func (r *Repository) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	return scanTeam(r.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, teamID))
}

// LockTeam returns a team holding a row lock.
func (r *Repository) LockTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	return scanTeam(r.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1 FOR UPDATE`, teamID))
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var team domain.Team
	if err := row.Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.Positions.Designer,
		&team.Positions.Backend,
		&team.Positions.Frontend,
		&team.Positions.Manager,
		&team.IsRecruiting,
		&team.CompletedAt,
		&team.ResultURL,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, mapReadError(err)
	}
	return &team, nil
}
