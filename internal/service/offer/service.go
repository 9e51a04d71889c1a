// Package offer runs the application and scouting lifecycle between individuals and teams.
package offer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/internal/service/capacity"
	"github.com/splax/teamup/internal/service/membership"
	"github.com/splax/teamup/internal/service/txn"
)

const defaultListLimit = 100

// Service orchestrates offers.
type Service struct {
	store      repository.Store
	dispatcher txn.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an offer service.
func New(store repository.Store, dispatcher txn.Dispatcher, logger *slog.Logger, opts ...Option) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := Service{store: store, dispatcher: dispatcher, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Apply records an individual's application to a team.
func (s Service) Apply(ctx context.Context, individualID, teamID string, role domain.Role) (*domain.Offer, error) {
	var offer *domain.Offer
	err := txn.Run(ctx, s.store, s.dispatcher, "offer.Apply", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		if !role.Valid() {
			return nil, domain.Errorf(domain.KindInvalidArgument, "unknown role %q", role)
		}
		if _, err := q.LockIndividual(ctx, individualID); err != nil {
			return nil, txn.NotFound(err, "individual")
		}
		if err := membership.EnsureNoCurrentTeam(ctx, q, individualID); err != nil {
			return nil, err
		}
		team, err := q.LockTeam(ctx, teamID)
		if err != nil {
			return nil, txn.NotFound(err, "team")
		}
		if err := requireOpening(ctx, q, *team, role); err != nil {
			return nil, err
		}
		leader, err := membership.LeaderOf(ctx, q, team.ID)
		if err != nil {
			return nil, err
		}
		offer = newOffer(team.ID, individualID, role, domain.OriginUser, s.now())
		if err := q.CreateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		return []notify.Event{received(offer, team, leader.IndividualID)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("application sent", "offer_id", offer.ID, "team_id", teamID, "individual_id", individualID)
	return offer, nil
}

// Scout records a leader's offer to an individual for the leader's current team.
func (s Service) Scout(ctx context.Context, leaderID, individualID string, role domain.Role) (*domain.Offer, error) {
	var offer *domain.Offer
	err := txn.Run(ctx, s.store, s.dispatcher, "offer.Scout", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		if !role.Valid() {
			return nil, domain.Errorf(domain.KindInvalidArgument, "unknown role %q", role)
		}
		leader, err := membership.CurrentLeadership(ctx, q, leaderID)
		if err != nil {
			return nil, err
		}
		if _, err := q.LockIndividual(ctx, individualID); err != nil {
			return nil, txn.NotFound(err, "individual")
		}
		team, err := q.LockTeam(ctx, leader.TeamID)
		if err != nil {
			return nil, txn.NotFound(err, "team")
		}
		if err := requireOpening(ctx, q, *team, role); err != nil {
			return nil, err
		}
		if err := membership.EnsureNoCurrentTeam(ctx, q, individualID); err != nil {
			return nil, err
		}
		offer = newOffer(team.ID, individualID, role, domain.OriginLeader, s.now())
		if err := q.CreateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		return []notify.Event{received(offer, team, individualID)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("scout sent", "offer_id", offer.ID, "team_id", offer.TeamID, "individual_id", individualID)
	return offer, nil
}

// Decide accepts or declines a pending offer on behalf of its counterpart.
// An accepted offer joins the individual to the team in the same transaction.
func (s Service) Decide(ctx context.Context, offerID, actorID string, accept bool) (*domain.Offer, error) {
	var offer *domain.Offer
	err := txn.Run(ctx, s.store, s.dispatcher, "offer.Decide", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		locked, err := q.LockOffer(ctx, offerID)
		if err != nil {
			return nil, txn.NotFound(err, "offer")
		}
		if !locked.Pending() {
			return nil, domain.ErrAlreadyDecided
		}
		parties, err := resolveParties(ctx, q, locked)
		if err != nil {
			return nil, err
		}
		if parties.of(locked.Origin.Counterpart()) != actorID {
			return nil, domain.ErrNotAuthorized
		}
		now := s.now()
		var events []notify.Event
		if accept {
			_, joined, err := membership.Join(ctx, q, locked.TeamID, locked.IndividualID, locked.Role, now)
			if err != nil {
				return nil, err
			}
			events = append(events, joined...)
		}
		if err := locked.Decide(accept, now); err != nil {
			return nil, err
		}
		if err := q.UpdateOffer(ctx, locked); err != nil {
			return nil, fmt.Errorf("update offer: %w", err)
		}
		team, err := q.GetTeam(ctx, locked.TeamID)
		if err != nil {
			return nil, txn.NotFound(err, "team")
		}
		kind := notify.KindOfferDeclined
		if accept {
			kind = notify.KindOfferAccepted
		}
		decided := notify.Event{
			Kind:       kind,
			Recipients: []string{parties.of(locked.Origin.Initiator())},
			Payload:    offerPayload(locked, team),
		}
		offer = locked
		return append([]notify.Event{decided}, events...), nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("offer decided", "offer_id", offerID, "accepted", accept, "actor_id", actorID)
	return offer, nil
}

// Cancel withdraws a pending offer on behalf of its initiator. The counterpart is not notified.
func (s Service) Cancel(ctx context.Context, offerID, actorID string) error {
	err := txn.Run(ctx, s.store, s.dispatcher, "offer.Cancel", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		locked, err := q.LockOffer(ctx, offerID)
		if err != nil {
			return nil, txn.NotFound(err, "offer")
		}
		if !locked.Pending() {
			return nil, domain.ErrAlreadyDecided
		}
		parties, err := resolveParties(ctx, q, locked)
		if err != nil {
			return nil, err
		}
		if parties.of(locked.Origin.Initiator()) != actorID {
			return nil, domain.ErrNotAuthorized
		}
		if err := locked.Cancel(s.now()); err != nil {
			return nil, err
		}
		if err := q.UpdateOffer(ctx, locked); err != nil {
			return nil, fmt.Errorf("update offer: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("offer cancelled", "offer_id", offerID, "actor_id", actorID)
	return nil
}

// ListForIndividual returns offers sent by or to the individual, newest first.
func (s Service) ListForIndividual(ctx context.Context, individualID string, limit int) ([]domain.Offer, error) {
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return nil, txn.NotFound(err, "individual")
	}
	offers, err := s.store.ListOffersByIndividual(ctx, individualID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// ListForTeam returns offers of the team the leader currently leads, newest first.
func (s Service) ListForTeam(ctx context.Context, leaderID string, limit int) ([]domain.Offer, error) {
	leader, err := membership.CurrentLeadership(ctx, s.store, leaderID)
	if err != nil {
		return nil, err
	}
	offers, err := s.store.ListOffersByTeam(ctx, leader.TeamID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// requireOpening rejects new offers for teams that are not recruiting or have no seat in role.
func requireOpening(ctx context.Context, q repository.MemberRepository, team domain.Team, role domain.Role) error {
	if !team.AcceptsOffers() {
		return domain.Errorf(domain.KindNoVacancy, "team %s is not recruiting", team.Name)
	}
	ledger, err := capacity.Load(ctx, q, team)
	if err != nil {
		return err
	}
	if !ledger.HasVacancy(role) {
		return domain.Errorf(domain.KindNoVacancy, "team %s has no %s vacancy", team.Name, strings.ToLower(string(role)))
	}
	return nil
}

type parties map[domain.Party]string

func (p parties) of(party domain.Party) string {
	return p[party]
}

// resolveParties maps both sides of an offer to individual IDs. A team without
// a PROGRESS leader has no one to act for it.
func resolveParties(ctx context.Context, q repository.MemberRepository, offer *domain.Offer) (parties, error) {
	leader, err := membership.LeaderOf(ctx, q, offer.TeamID)
	if err != nil {
		return nil, err
	}
	return parties{
		domain.PartyIndividual: offer.IndividualID,
		domain.PartyLeader:     leader.IndividualID,
	}, nil
}

func newOffer(teamID, individualID string, role domain.Role, origin domain.Origin, now time.Time) *domain.Offer {
	return &domain.Offer{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		IndividualID: individualID,
		Role:         role,
		Origin:       origin,
		CreatedAt:    now.UTC(),
	}
}

func received(offer *domain.Offer, team *domain.Team, recipient string) notify.Event {
	return notify.Event{
		Kind:       notify.KindOfferReceived,
		Recipients: []string{recipient},
		Payload:    offerPayload(offer, team),
	}
}

func offerPayload(offer *domain.Offer, team *domain.Team) map[string]any {
	payload := map[string]any{
		"offer_id":      offer.ID,
		"team_id":       offer.TeamID,
		"individual_id": offer.IndividualID,
		"role":          string(offer.Role),
		"origin":        string(offer.Origin),
	}
	if team != nil {
		payload["team_name"] = team.Name
	}
	if offer.Decision != nil {
		payload["accepted"] = *offer.Decision
	}
	return payload
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
