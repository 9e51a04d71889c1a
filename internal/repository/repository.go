package repository

import (
	"context"

	"github.com/splax/teamup/internal/domain"
)

// IndividualRepository persists individuals.
type IndividualRepository interface {
	CreateIndividual(ctx context.Context, individual *domain.Individual) error
	GetIndividual(ctx context.Context, id string) (*domain.Individual, error)
	// LockIndividual loads the individual and holds a row lock until the transaction ends.
	LockIndividual(ctx context.Context, id string) (*domain.Individual, error)
}

// TeamRepository manages teams.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	UpdateTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	// LockTeam loads the team and holds a row lock until the transaction ends.
	LockTeam(ctx context.Context, teamID string) (*domain.Team, error)
}

// MemberRepository manages team memberships.
type MemberRepository interface {
	CreateMember(ctx context.Context, member *domain.TeamMember) error
	// UpdateMember writes a status change. Only PROGRESS rows are updated; any
	// other stored status yields ErrMembershipEnded.
	UpdateMember(ctx context.Context, member *domain.TeamMember) error
	// CurrentMembership returns the PROGRESS membership of the individual or ErrNotFound.
	CurrentMembership(ctx context.Context, individualID string) (*domain.TeamMember, error)
	ListActiveMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	CountActiveMembersByRole(ctx context.Context, teamID string) (map[domain.Role]int, error)
	ListMembershipsByIndividual(ctx context.Context, individualID string) ([]domain.TeamMember, error)
}

// OfferRepository manages offers. Cancelled offers are never returned.
type OfferRepository interface {
	CreateOffer(ctx context.Context, offer *domain.Offer) error
	UpdateOffer(ctx context.Context, offer *domain.Offer) error
	GetOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	// LockOffer loads the offer and holds a row lock until the transaction ends.
	LockOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	ListOffersByIndividual(ctx context.Context, individualID string, limit int) ([]domain.Offer, error)
	ListOffersByTeam(ctx context.Context, teamID string, limit int) ([]domain.Offer, error)
}

// NotificationRepository stores inbox entries.
type NotificationRepository interface {
	InsertNotifications(ctx context.Context, notifications []domain.Notification) ([]domain.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID string, id int64) error
}

// Queries groups the repositories usable inside one transaction.
type Queries interface {
	IndividualRepository
	TeamRepository
	MemberRepository
	OfferRepository
}

// Store runs reads directly and mutations inside atomic transactions.
type Store interface {
	Queries
	// InTx runs fn in a transaction; it commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
