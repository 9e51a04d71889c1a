// Package membership manages team founding, joining and the end of memberships.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/internal/service/capacity"
	"github.com/splax/teamup/internal/service/txn"
)

// Service orchestrates membership changes.
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

// New returns a membership service.
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

// TeamView is a team with its active roster and seat usage.
type TeamView struct {
	Team    domain.Team         `json:"team"`
	Members []domain.TeamMember `json:"members"`
	Seats   []capacity.Seat     `json:"seats"`
}

// Found creates a team led by founderID.
func (s Service) Found(ctx context.Context, founderID string, input FoundInput) (*domain.Team, error) {
	var team *domain.Team
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.Found", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		created, events, err := Found(ctx, q, founderID, input, s.now())
		team = created
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team founded", "team_id", team.ID, "leader_id", founderID)
	return team, nil
}

// Join adds individualID to the team directly.
func (s Service) Join(ctx context.Context, teamID, individualID string, role domain.Role) (*domain.TeamMember, error) {
	var member *domain.TeamMember
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.Join", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		joined, events, err := Join(ctx, q, teamID, individualID, role, s.now())
		member = joined
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("member joined", "team_id", teamID, "individual_id", individualID, "role", role)
	return member, nil
}

// Fire removes targetID from the actor's team.
func (s Service) Fire(ctx context.Context, actorID, targetID string) (*domain.TeamMember, error) {
	var member *domain.TeamMember
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.Fire", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		fired, events, err := Fire(ctx, q, actorID, targetID, s.now())
		member = fired
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("member fired", "team_id", member.TeamID, "individual_id", targetID, "leader_id", actorID)
	return member, nil
}

// Leave quits the individual's current team.
func (s Service) Leave(ctx context.Context, individualID string) (*domain.TeamMember, error) {
	var member *domain.TeamMember
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.Leave", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		left, events, err := Leave(ctx, q, individualID, s.now())
		member = left
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("member quit", "team_id", member.TeamID, "individual_id", individualID)
	return member, nil
}

// CompleteProject ends the leader's team.
func (s Service) CompleteProject(ctx context.Context, leaderID, resultURL string) (*domain.Team, error) {
	var team *domain.Team
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.CompleteProject", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		ended, events, err := CompleteProject(ctx, q, leaderID, resultURL, s.now())
		team = ended
		return events, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("project ended", "team_id", team.ID, "successful", team.ResultURL != "")
	return team, nil
}

// SetRecruiting toggles the recruiting flag.
func (s Service) SetRecruiting(ctx context.Context, leaderID, teamID string, recruiting bool) (*domain.Team, error) {
	var team *domain.Team
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.SetRecruiting", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		updated, err := SetRecruiting(ctx, q, leaderID, teamID, recruiting, s.now())
		team = updated
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// AdjustPositions replaces the team's per-role max counts.
func (s Service) AdjustPositions(ctx context.Context, leaderID, teamID string, positions domain.Positions) (*domain.Team, error) {
	var team *domain.Team
	err := txn.Run(ctx, s.store, s.dispatcher, "membership.AdjustPositions", func(ctx context.Context, q repository.Queries) ([]notify.Event, error) {
		updated, err := AdjustPositions(ctx, q, leaderID, teamID, positions, s.now())
		team = updated
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("positions adjusted", "team_id", teamID)
	return team, nil
}

// Team returns the team with its PROGRESS roster.
func (s Service) Team(ctx context.Context, teamID string) (*TeamView, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, txn.NotFound(err, "team")
	}
	return s.view(ctx, *team)
}

// CurrentTeam returns the individual's PROGRESS team.
func (s Service) CurrentTeam(ctx context.Context, individualID string) (*TeamView, error) {
	member, err := s.store.CurrentMembership(ctx, individualID)
	if err != nil {
		return nil, txn.NotFound(err, "current team")
	}
	return s.Team(ctx, member.TeamID)
}

// History lists every membership of the individual, newest first.
func (s Service) History(ctx context.Context, individualID string) ([]domain.TeamMember, error) {
	if _, err := s.store.GetIndividual(ctx, individualID); err != nil {
		return nil, txn.NotFound(err, "individual")
	}
	members, err := s.store.ListMembershipsByIndividual(ctx, individualID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

func (s Service) view(ctx context.Context, team domain.Team) (*TeamView, error) {
	members, err := s.store.ListActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	occupied := make(map[domain.Role]int, len(domain.Roles))
	for _, m := range members {
		occupied[m.Role]++
	}
	if members == nil {
		members = []domain.TeamMember{}
	}
	return &TeamView{
		Team:    team,
		Members: members,
		Seats:   capacity.New(team, occupied).Seats(),
	}, nil
}
