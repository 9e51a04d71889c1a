package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

const memberColumns = `id, team_id, individual_id, role, is_leader, status, joined_at, ended_at, COALESCE(result_url, '')`

// CreateMember inserts a membership row.
func (r *Repository) CreateMember(ctx context.Context, member *domain.TeamMember) error {
	if member == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO team_members (id, team_id, individual_id, role, is_leader, status, joined_at, ended_at, result_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		member.ID,
		member.TeamID,
		member.IndividualID,
		string(member.Role),
		member.IsLeader,
		string(member.Status),
		member.JoinedAt,
		member.EndedAt,
		nilIfEmpty(member.ResultURL),
	)
	return mapWriteError(err)
}

// UpdateMember stores status changes of a PROGRESS membership.
func (r *Repository) UpdateMember(ctx context.Context, member *domain.TeamMember) error {
	if member == nil {
		return repository.ErrInvalidArgument
	}
	const query = `UPDATE team_members
		SET status = $2, is_leader = $3, ended_at = $4, result_url = $5
		WHERE id = $1 AND status = 'PROGRESS'`
	tag, err := r.db.Exec(ctx, query,
		member.ID,
		string(member.Status),
		member.IsLeader,
		member.EndedAt,
		nilIfEmpty(member.ResultURL),
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrMembershipEnded
	}
	return nil
}

// CurrentMembership returns the PROGRESS membership of an individual.
func (r *Repository) CurrentMembership(ctx context.Context, individualID string) (*domain.TeamMember, error) {
	const query = `SELECT ` + memberColumns + ` FROM team_members WHERE individual_id = $1 AND status = 'PROGRESS'`
	member, err := scanMember(r.db.QueryRow(ctx, query, individualID))
	if err != nil {
		return nil, mapReadError(err)
	}
	return member, nil
}

// ListActiveMembers returns PROGRESS members of a team, leader first.
func (r *Repository) ListActiveMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	const query = `SELECT ` + memberColumns + ` FROM team_members
		WHERE team_id = $1 AND status = 'PROGRESS'
		ORDER BY is_leader DESC, joined_at ASC`
	return r.listMembers(ctx, query, teamID)
}

// ListMembershipsByIndividual returns every membership of an individual, newest first.
func (r *Repository) ListMembershipsByIndividual(ctx context.Context, individualID string) ([]domain.TeamMember, error) {
	const query = `SELECT ` + memberColumns + ` FROM team_members
		WHERE individual_id = $1
		ORDER BY joined_at DESC`
	return r.listMembers(ctx, query, individualID)
}

// CountActiveMembersByRole counts PROGRESS members of a team per role.
func (r *Repository) CountActiveMembersByRole(ctx context.Context, teamID string) (map[domain.Role]int, error) {
	const query = `SELECT role, COUNT(1) FROM team_members
		WHERE team_id = $1 AND status = 'PROGRESS'
		GROUP BY role`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Role]int)
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[domain.Role(role)] = count
	}
	return counts, rows.Err()
}

func (r *Repository) listMembers(ctx context.Context, query string, arg string) ([]domain.TeamMember, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *member)
	}
	return members, rows.Err()
}

func scanMember(row pgx.Row) (*domain.TeamMember, error) {
	var (
		member domain.TeamMember
		role   string
		status string
	)
	if err := row.Scan(
		&member.ID,
		&member.TeamID,
		&member.IndividualID,
		&role,
		&member.IsLeader,
		&status,
		&member.JoinedAt,
		&member.EndedAt,
		&member.ResultURL,
	); err != nil {
		return nil, err
	}
	member.Role = domain.Role(role)
	member.Status = domain.MemberStatus(status)
	return &member, nil
}
