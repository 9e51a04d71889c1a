package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

const offerColumns = `id, team_id, individual_id, role, origin, decision, created_at, decided_at, cancelled_at`

// CreateOffer inserts a pending offer.
func (r *Repository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	if offer == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO offers (id, team_id, individual_id, role, origin, decision, created_at, decided_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		offer.ID,
		offer.TeamID,
		offer.IndividualID,
		string(offer.Role),
		string(offer.Origin),
		offer.Decision,
		offer.CreatedAt,
		offer.DecidedAt,
		offer.CancelledAt,
	)
	return mapWriteError(err)
}

// UpdateOffer stores a decision or cancellation. Already decided rows are left untouched.
func (r *Repository) UpdateOffer(ctx context.Context, offer *domain.Offer) error {
	if offer == nil {
		return repository.ErrInvalidArgument
	}
	const query = `UPDATE offers
		SET decision = $2, decided_at = $3, cancelled_at = $4
		WHERE id = $1 AND decision IS NULL AND cancelled_at IS NULL`
	tag, err := r.db.Exec(ctx, query, offer.ID, offer.Decision, offer.DecidedAt, offer.CancelledAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetOffer fetches a non-cancelled offer.
func (r *Repository) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 AND cancelled_at IS NULL`
	offer, err := scanOffer(r.db.QueryRow(ctx, query, offerID))
	if err != nil {
		return nil, mapReadError(err)
	}
	return offer, nil
}

// LockOffer fetches a non-cancelled offer holding a row lock.
func (r *Repository) LockOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 AND cancelled_at IS NULL FOR UPDATE`
	offer, err := scanOffer(r.db.QueryRow(ctx, query, offerID))
	if err != nil {
		return nil, mapReadError(err)
	}
	return offer, nil
}

// ListOffersByIndividual returns offers involving an individual, newest first.
func (r *Repository) ListOffersByIndividual(ctx context.Context, individualID string, limit int) ([]domain.Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers
		WHERE individual_id = $1 AND cancelled_at IS NULL
		ORDER BY created_at DESC LIMIT $2`
	return r.listOffers(ctx, query, individualID, clampLimit(limit))
}

// ListOffersByTeam returns offers involving a team, newest first.
func (r *Repository) ListOffersByTeam(ctx context.Context, teamID string, limit int) ([]domain.Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers
		WHERE team_id = $1 AND cancelled_at IS NULL
		ORDER BY created_at DESC LIMIT $2`
	return r.listOffers(ctx, query, teamID, clampLimit(limit))
}

func (r *Repository) listOffers(ctx context.Context, query, id string, limit int) ([]domain.Offer, error) {
	rows, err := r.db.Query(ctx, query, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]domain.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, rows.Err()
}

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var (
		offer  domain.Offer
		role   string
		origin string
	)
	if err := row.Scan(
		&offer.ID,
		&offer.TeamID,
		&offer.IndividualID,
		&role,
		&origin,
		&offer.Decision,
		&offer.CreatedAt,
		&offer.DecidedAt,
		&offer.CancelledAt,
	); err != nil {
		return nil, err
	}
	offer.Role = domain.Role(role)
	offer.Origin = domain.Origin(origin)
	return &offer, nil
}
