// Package capacity derives per-role seat usage of a team from its live memberships.
package capacity

import (
	"context"
	"fmt"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

// Ledger is a snapshot of a team's seats. It holds no state beyond the team's
// max counts and the PROGRESS member counts read in the same transaction.
type Ledger struct {
	team     domain.Team
	occupied map[domain.Role]int
}

// Load counts PROGRESS members per role. Call it inside the transaction that writes.
func Load(ctx context.Context, q repository.MemberRepository, team domain.Team) (Ledger, error) {
	counts, err := q.CountActiveMembersByRole(ctx, team.ID)
	if err != nil {
		return Ledger{}, fmt.Errorf("count members of team %s: %w", team.ID, err)
	}
	return New(team, counts), nil
}

// New builds a Ledger from known counts.
func New(team domain.Team, occupied map[domain.Role]int) Ledger {
	copied := make(map[domain.Role]int, len(occupied))
	for role, n := range occupied {
		copied[role] = n
	}
	return Ledger{team: team, occupied: copied}
}

// Occupied returns the PROGRESS member count for role.
func (l Ledger) Occupied(role domain.Role) int {
	return l.occupied[role]
}

// Max returns the configured seat count for role.
func (l Ledger) Max(role domain.Role) int {
	return l.team.Positions.Get(role)
}

// HasVacancy reports whether role has a free seat. Completed teams have none.
func (l Ledger) HasVacancy(role domain.Role) bool {
	if l.team.Completed() {
		return false
	}
	return l.Occupied(role) < l.Max(role)
}

// AdjustMax returns the team's positions with role set to newMax.
func (l Ledger) AdjustMax(role domain.Role, newMax int) (domain.Positions, error) {
	if !role.Valid() {
		return domain.Positions{}, domain.Errorf(domain.KindInvalidArgument, "unknown role %q", role)
	}
	if newMax < 0 || newMax > domain.MaxPositionsPerRole {
		return domain.Positions{}, domain.Errorf(domain.KindInvalidArgument, "positions must be between 0 and %d", domain.MaxPositionsPerRole)
	}
	if occupied := l.Occupied(role); newMax < occupied {
		return domain.Positions{}, domain.Errorf(domain.KindCapacityConflict, "%s max %d is below %d occupied seats", role, newMax, occupied)
	}
	return l.team.Positions.With(role, newMax), nil
}

// Apply checks every role of next against occupied seats and returns next when all fit.
func (l Ledger) Apply(next domain.Positions) (domain.Positions, error) {
	if err := next.Validate(); err != nil {
		return domain.Positions{}, err
	}
	current := l
	for _, role := range domain.Roles {
		positions, err := current.AdjustMax(role, next.Get(role))
		if err != nil {
			return domain.Positions{}, err
		}
		current.team.Positions = positions
	}
	return current.team.Positions, nil
}

// Seat describes one role of the snapshot.
type Seat struct {
	Role     domain.Role `json:"role"`
	Max      int         `json:"max"`
	Occupied int         `json:"occupied"`
	Vacant   bool        `json:"vacant"`
}

// Seats lists every role in display order.
func (l Ledger) Seats() []Seat {
	seats := make([]Seat, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		seats = append(seats, Seat{
			Role:     role,
			Max:      l.Max(role),
			Occupied: l.Occupied(role),
			Vacant:   l.HasVacancy(role),
		})
	}
	return seats
}
