package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/internal/service/capacity"
	"github.com/splax/teamup/internal/service/txn"
)

// Transitions below run inside a caller-owned transaction. Locks are taken in
// the order individual, team, membership rows.

// FoundInput describes a new team.
type FoundInput struct {
	Name        string
	Description string
	Positions   domain.Positions
	Role        domain.Role
}

// Found creates a recruiting team and joins the founder as its leader.
func Found(ctx context.Context, q repository.Queries, founderID string, input FoundInput, now time.Time) (*domain.Team, []notify.Event, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, domain.Errorf(domain.KindInvalidArgument, "team name is required")
	}
	if !input.Role.Valid() {
		return nil, nil, domain.Errorf(domain.KindInvalidArgument, "unknown role %q", input.Role)
	}
	if err := input.Positions.Validate(); err != nil {
		return nil, nil, err
	}
	if _, err := q.LockIndividual(ctx, founderID); err != nil {
		return nil, nil, txn.NotFound(err, "individual")
	}
	if err := ensureNoCurrentTeam(ctx, q, founderID); err != nil {
		return nil, nil, err
	}
	team := &domain.Team{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		Positions:    input.Positions,
		IsRecruiting: true,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := q.CreateTeam(ctx, team); err != nil {
		return nil, nil, fmt.Errorf("create team: %w", err)
	}
	_, events, err := Join(ctx, q, team.ID, founderID, input.Role, now)
	if err != nil {
		return nil, nil, err
	}
	return team, events, nil
}

// Join adds the individual to the team in role. The first member becomes leader.
func Join(ctx context.Context, q repository.Queries, teamID, individualID string, role domain.Role, now time.Time) (*domain.TeamMember, []notify.Event, error) {
	if !role.Valid() {
		return nil, nil, domain.Errorf(domain.KindInvalidArgument, "unknown role %q", role)
	}
	if _, err := q.LockIndividual(ctx, individualID); err != nil {
		return nil, nil, txn.NotFound(err, "individual")
	}
	team, err := q.LockTeam(ctx, teamID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "team")
	}
	ledger, err := capacity.Load(ctx, q, *team)
	if err != nil {
		return nil, nil, err
	}
	if !ledger.HasVacancy(role) {
		return nil, nil, domain.Errorf(domain.KindNoVacancy, "team %s has no %s vacancy", team.Name, strings.ToLower(string(role)))
	}
	if err := ensureNoCurrentTeam(ctx, q, individualID); err != nil {
		return nil, nil, err
	}
	existing, err := q.ListActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	member := &domain.TeamMember{
		ID:           uuid.NewString(),
		TeamID:       team.ID,
		IndividualID: individualID,
		Role:         role,
		IsLeader:     len(existing) == 0,
		Status:       domain.MemberStatusProgress,
		JoinedAt:     now.UTC(),
	}
	if err := q.CreateMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrActiveMembershipExists) {
			return nil, nil, domain.ErrAlreadyOnTeam
		}
		return nil, nil, fmt.Errorf("create member: %w", err)
	}
	recipients := append(memberIDs(existing), individualID)
	events := []notify.Event{{
		Kind:       notify.KindMemberJoined,
		Recipients: recipients,
		Payload: map[string]any{
			"team_id":       team.ID,
			"team_name":     team.Name,
			"individual_id": individualID,
			"role":          string(role),
			"is_leader":     member.IsLeader,
		},
	}}
	return member, events, nil
}

// Fire ends the target's membership on the acting leader's team.
func Fire(ctx context.Context, q repository.Queries, actorID, targetID string, now time.Time) (*domain.TeamMember, []notify.Event, error) {
	leader, err := currentLeadership(ctx, q, actorID)
	if err != nil {
		return nil, nil, err
	}
	if targetID == actorID {
		return nil, nil, domain.ErrCannotFireSelf
	}
	team, err := q.LockTeam(ctx, leader.TeamID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "team")
	}
	target, err := q.CurrentMembership(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.Errorf(domain.KindNotFound, "member not found on team")
		}
		return nil, nil, fmt.Errorf("load member: %w", err)
	}
	if target.TeamID != team.ID {
		return nil, nil, domain.Errorf(domain.KindNotFound, "member not found on team")
	}
	if err := target.Transition(domain.MemberStatusFired, now); err != nil {
		return nil, nil, err
	}
	if err := updateMember(ctx, q, target); err != nil {
		return nil, nil, err
	}
	remaining, err := q.ListActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	events := []notify.Event{{
		Kind:       notify.KindMemberFired,
		Recipients: append([]string{targetID}, memberIDs(remaining)...),
		Payload: map[string]any{
			"team_id":       team.ID,
			"team_name":     team.Name,
			"individual_id": targetID,
			"role":          string(target.Role),
		},
	}}
	return target, events, nil
}

// Leave quits the individual's current team. Leaders must complete the project instead.
func Leave(ctx context.Context, q repository.Queries, individualID string, now time.Time) (*domain.TeamMember, []notify.Event, error) {
	if _, err := q.LockIndividual(ctx, individualID); err != nil {
		return nil, nil, txn.NotFound(err, "individual")
	}
	member, err := q.CurrentMembership(ctx, individualID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "current team")
	}
	if member.IsLeader {
		return nil, nil, domain.ErrLeaderCannotLeave
	}
	team, err := q.LockTeam(ctx, member.TeamID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "team")
	}
	// A fire or completion may have committed while waiting on the team lock.
	member, err = q.CurrentMembership(ctx, individualID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "current team")
	}
	if member.TeamID != team.ID {
		return nil, nil, domain.Errorf(domain.KindNotFound, "current team not found")
	}
	if err := member.Transition(domain.MemberStatusQuit, now); err != nil {
		return nil, nil, err
	}
	if err := updateMember(ctx, q, member); err != nil {
		return nil, nil, err
	}
	remaining, err := q.ListActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	events := []notify.Event{{
		Kind:       notify.KindMemberQuit,
		Recipients: notify.Except(memberIDs(remaining), individualID),
		Payload: map[string]any{
			"team_id":       team.ID,
			"team_name":     team.Name,
			"individual_id": individualID,
			"role":          string(member.Role),
		},
	}}
	return member, events, nil
}

// CompleteProject ends the leader's team. A blank result URL ends it unsuccessfully.
func CompleteProject(ctx context.Context, q repository.Queries, leaderID, resultURL string, now time.Time) (*domain.Team, []notify.Event, error) {
	resultURL = strings.TrimSpace(resultURL)
	if _, err := q.LockIndividual(ctx, leaderID); err != nil {
		return nil, nil, txn.NotFound(err, "individual")
	}
	leader, err := currentLeadership(ctx, q, leaderID)
	if err != nil {
		return nil, nil, err
	}
	team, err := q.LockTeam(ctx, leader.TeamID)
	if err != nil {
		return nil, nil, txn.NotFound(err, "team")
	}
	members, err := q.ListActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}

	status, kind := domain.MemberStatusIncomplete, notify.KindProjectIncomplete
	if resultURL != "" {
		status, kind = domain.MemberStatusComplete, notify.KindProjectCompleted
	}
	for i := range members {
		member := &members[i]
		if err := member.Transition(status, now); err != nil {
			return nil, nil, err
		}
		member.ResultURL = resultURL
		if err := updateMember(ctx, q, member); err != nil {
			return nil, nil, err
		}
	}

	completedAt := now.UTC()
	team.CompletedAt = &completedAt
	team.IsRecruiting = false
	team.ResultURL = resultURL
	team.UpdatedAt = completedAt
	if err := q.UpdateTeam(ctx, team); err != nil {
		return nil, nil, fmt.Errorf("update team: %w", err)
	}

	payload := map[string]any{
		"team_id":   team.ID,
		"team_name": team.Name,
	}
	if resultURL != "" {
		payload["result_url"] = resultURL
	}
	events := []notify.Event{{Kind: kind, Recipients: memberIDs(members), Payload: payload}}
	return team, events, nil
}

// SetRecruiting toggles whether the leader's team accepts new offers.
func SetRecruiting(ctx context.Context, q repository.Queries, leaderID, teamID string, recruiting bool, now time.Time) (*domain.Team, error) {
	if err := ensureLeaderOf(ctx, q, leaderID, teamID); err != nil {
		return nil, err
	}
	team, err := q.LockTeam(ctx, teamID)
	if err != nil {
		return nil, txn.NotFound(err, "team")
	}
	if team.Completed() {
		return nil, domain.Errorf(domain.KindInvalidArgument, "team project already ended")
	}
	team.IsRecruiting = recruiting
	team.UpdatedAt = now.UTC()
	if err := q.UpdateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	return team, nil
}

// AdjustPositions replaces the team's max counts. No max may drop below its occupied seats.
func AdjustPositions(ctx context.Context, q repository.Queries, leaderID, teamID string, positions domain.Positions, now time.Time) (*domain.Team, error) {
	if err := ensureLeaderOf(ctx, q, leaderID, teamID); err != nil {
		return nil, err
	}
	team, err := q.LockTeam(ctx, teamID)
	if err != nil {
		return nil, txn.NotFound(err, "team")
	}
	if team.Completed() {
		return nil, domain.Errorf(domain.KindInvalidArgument, "team project already ended")
	}
	ledger, err := capacity.Load(ctx, q, *team)
	if err != nil {
		return nil, err
	}
	next, err := ledger.Apply(positions)
	if err != nil {
		return nil, err
	}
	team.Positions = next
	team.UpdatedAt = now.UTC()
	if err := q.UpdateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	return team, nil
}

func updateMember(ctx context.Context, q repository.MemberRepository, member *domain.TeamMember) error {
	if err := q.UpdateMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrMembershipEnded) {
			return domain.Errorf(domain.KindNotFound, "membership %s already ended", member.ID)
		}
		return fmt.Errorf("update member %s: %w", member.ID, err)
	}
	return nil
}

// LeaderOf returns the PROGRESS leader of a team.
func LeaderOf(ctx context.Context, q repository.MemberRepository, teamID string) (*domain.TeamMember, error) {
	members, err := q.ListActiveMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	for i := range members {
		if members[i].IsLeader {
			return &members[i], nil
		}
	}
	return nil, domain.Errorf(domain.KindNotFound, "team has no active leader")
}

// CurrentLeadership returns the actor's membership when they lead their current team.
func CurrentLeadership(ctx context.Context, q repository.MemberRepository, actorID string) (*domain.TeamMember, error) {
	return currentLeadership(ctx, q, actorID)
}

func currentLeadership(ctx context.Context, q repository.MemberRepository, actorID string) (*domain.TeamMember, error) {
	member, err := q.CurrentMembership(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotLeader
		}
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if !member.IsLeader {
		return nil, domain.ErrNotLeader
	}
	return member, nil
}

func ensureLeaderOf(ctx context.Context, q repository.MemberRepository, actorID, teamID string) error {
	member, err := currentLeadership(ctx, q, actorID)
	if err != nil {
		return err
	}
	if member.TeamID != teamID {
		return domain.ErrNotLeader
	}
	return nil
}

// EnsureNoCurrentTeam fails with AlreadyOnTeam when the individual has a PROGRESS membership.
func EnsureNoCurrentTeam(ctx context.Context, q repository.MemberRepository, individualID string) error {
	return ensureNoCurrentTeam(ctx, q, individualID)
}

func ensureNoCurrentTeam(ctx context.Context, q repository.MemberRepository, individualID string) error {
	_, err := q.CurrentMembership(ctx, individualID)
	switch {
	case err == nil:
		return domain.ErrAlreadyOnTeam
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("load membership: %w", err)
	}
}

func memberIDs(members []domain.TeamMember) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.IndividualID)
	}
	return ids
}
