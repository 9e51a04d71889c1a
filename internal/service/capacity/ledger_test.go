package capacity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

type stubMembers struct {
	repository.MemberRepository
	counts map[domain.Role]int
	err    error
}

func (s stubMembers) CountActiveMembersByRole(context.Context, string) (map[domain.Role]int, error) {
	return s.counts, s.err
}

func testTeam() domain.Team {
	return domain.Team{
		ID:           "team-1",
		Positions:    domain.Positions{Designer: 1, Backend: 2, Frontend: 0, Manager: 1},
		IsRecruiting: true,
	}
}

func TestLoadCountsMembers(t *testing.T) {
	ledger, err := Load(context.Background(), stubMembers{counts: map[domain.Role]int{domain.RoleBackend: 2, domain.RoleDesigner: 0}}, testTeam())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ledger.Occupied(domain.RoleBackend) != 2 || ledger.Max(domain.RoleBackend) != 2 {
		t.Fatalf("unexpected backend seats %d/%d", ledger.Occupied(domain.RoleBackend), ledger.Max(domain.RoleBackend))
	}
	if ledger.HasVacancy(domain.RoleBackend) {
		t.Fatal("full role should have no vacancy")
	}
	if !ledger.HasVacancy(domain.RoleDesigner) {
		t.Fatal("designer should have a vacancy")
	}
	if ledger.HasVacancy(domain.RoleFrontend) {
		t.Fatal("zero-max role should have no vacancy")
	}
}

func TestLoadPropagatesErrors(t *testing.T) {
	if _, err := Load(context.Background(), stubMembers{err: errors.New("db down")}, testTeam()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompletedTeamHasNoVacancy(t *testing.T) {
	team := testTeam()
	now := time.Now()
	team.CompletedAt = &now
	if New(team, nil).HasVacancy(domain.RoleDesigner) {
		t.Fatal("completed team should have no vacancy")
	}
}

func TestAdjustMax(t *testing.T) {
	ledger := New(testTeam(), map[domain.Role]int{domain.RoleBackend: 2})

	positions, err := ledger.AdjustMax(domain.RoleBackend, 5)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if positions.Backend != 5 || positions.Designer != 1 {
		t.Fatalf("unexpected positions %+v", positions)
	}
	if _, err := ledger.AdjustMax(domain.RoleBackend, 2); err != nil {
		t.Fatalf("lowering to occupied should succeed: %v", err)
	}
	if _, err := ledger.AdjustMax(domain.RoleBackend, 1); !errors.Is(err, domain.ErrCapacityConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
	if _, err := ledger.AdjustMax(domain.RoleBackend, 11); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument above 10, got %v", err)
	}
	if _, err := ledger.AdjustMax(domain.Role("CHEF"), 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown role, got %v", err)
	}
}

func TestApplyRejectsWholeEditOnConflict(t *testing.T) {
	ledger := New(testTeam(), map[domain.Role]int{domain.RoleBackend: 2, domain.RoleManager: 1})

	next := domain.Positions{Designer: 4, Backend: 1, Frontend: 3, Manager: 1}
	if _, err := ledger.Apply(next); !errors.Is(err, domain.ErrCapacityConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}

	next.Backend = 2
	got, err := ledger.Apply(next)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got != next {
		t.Fatalf("expected %+v, got %+v", next, got)
	}
}

func TestSeats(t *testing.T) {
	seats := New(testTeam(), map[domain.Role]int{domain.RoleManager: 1}).Seats()
	if len(seats) != len(domain.Roles) {
		t.Fatalf("expected %d seats, got %d", len(domain.Roles), len(seats))
	}
	for _, seat := range seats {
		if seat.Role == domain.RoleManager && (seat.Occupied != 1 || seat.Vacant) {
			t.Fatalf("unexpected manager seat %+v", seat)
		}
		if seat.Role == domain.RoleDesigner && !seat.Vacant {
			t.Fatalf("designer seat should be vacant %+v", seat)
		}
	}
}
