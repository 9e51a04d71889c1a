package offer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository/memory"
	"github.com/splax/teamup/internal/service/membership"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, events []notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingDispatcher) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recordingDispatcher) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recordingDispatcher) find(kind notify.Kind) (notify.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return notify.Event{}, false
}

type testEnv struct {
	store      *memory.Store
	dispatcher *recordingDispatcher
	teams      membership.Service
	offers     Service
}

func newTestEnv(t *testing.T, individuals ...string) *testEnv {
	t.Helper()
	store := memory.New()
	for _, id := range individuals {
		if err := store.CreateIndividual(context.Background(), &domain.Individual{ID: id, Name: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed individual %s: %v", id, err)
		}
	}
	clock := func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := &recordingDispatcher{}
	return &testEnv{
		store:      store,
		dispatcher: dispatcher,
		teams:      membership.New(store, dispatcher, logger, membership.WithClock(clock)),
		offers:     New(store, dispatcher, logger, WithClock(clock)),
	}
}

func (e *testEnv) found(t *testing.T, leader string, positions domain.Positions) *domain.Team {
	t.Helper()
	positions.Manager++
	team, err := e.teams.Found(context.Background(), leader, membership.FoundInput{Name: leader + "-team", Positions: positions, Role: domain.RoleManager})
	if err != nil {
		t.Fatalf("found team: %v", err)
	}
	return team
}

func (e *testEnv) occupied(t *testing.T, teamID string, role domain.Role) int {
	t.Helper()
	view, err := e.teams.Team(context.Background(), teamID)
	if err != nil {
		t.Fatalf("team view: %v", err)
	}
	for _, seat := range view.Seats {
		if seat.Role == role {
			return seat.Occupied
		}
	}
	return 0
}

func TestAcceptScoutIntoEmptySeat(t *testing.T) {
	env := newTestEnv(t, "lead", "dev")
	team := env.found(t, "lead", domain.Positions{Backend: 1})
	ctx := context.Background()

	offer, err := env.offers.Scout(ctx, "lead", "dev", domain.RoleBackend)
	if err != nil {
		t.Fatalf("scout: %v", err)
	}
	if offer.Origin != domain.OriginLeader || !offer.Pending() {
		t.Fatalf("unexpected offer %+v", offer)
	}
	received, ok := env.dispatcher.find(notify.KindOfferReceived)
	if !ok || len(received.Recipients) != 1 || received.Recipients[0] != "dev" {
		t.Fatalf("expected OFFER_RECEIVED to dev, got %+v", received)
	}

	env.dispatcher.reset()
	decided, err := env.offers.Decide(ctx, offer.ID, "dev", true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Decision == nil || !*decided.Decision || decided.DecidedAt == nil {
		t.Fatalf("expected accepted offer, got %+v", decided)
	}
	if got := env.occupied(t, team.ID, domain.RoleBackend); got != 1 {
		t.Fatalf("expected 1 backend seat occupied, got %d", got)
	}
	view, err := env.teams.CurrentTeam(ctx, "dev")
	if err != nil || view.Team.ID != team.ID {
		t.Fatalf("expected dev on team, got %+v (%v)", view, err)
	}
	accepted, ok := env.dispatcher.find(notify.KindOfferAccepted)
	if !ok || accepted.Recipients[0] != "lead" {
		t.Fatalf("expected OFFER_ACCEPTED to the leader, got %+v", accepted)
	}
	if _, ok := env.dispatcher.find(notify.KindMemberJoined); !ok {
		t.Fatal("expected MEMBER_JOINED after accept")
	}
}

func TestApplyToFullTeam(t *testing.T) {
	env := newTestEnv(t, "lead", "first", "second")
	team := env.found(t, "lead", domain.Positions{Backend: 1})
	ctx := context.Background()
	if _, err := env.teams.Join(ctx, team.ID, "first", domain.RoleBackend); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := env.offers.Apply(ctx, "second", team.ID, domain.RoleBackend); !errors.Is(err, domain.ErrNoVacancy) {
		t.Fatalf("expected NoVacancy, got %v", err)
	}
	if _, err := env.offers.Scout(ctx, "lead", "second", domain.RoleBackend); !errors.Is(err, domain.ErrNoVacancy) {
		t.Fatalf("expected NoVacancy for scout, got %v", err)
	}
}

func TestScoutIndividualWithTeam(t *testing.T) {
	env := newTestEnv(t, "lead", "other-lead", "busy")
	env.found(t, "lead", domain.Positions{Backend: 1})
	other := env.found(t, "other-lead", domain.Positions{Backend: 1})
	ctx := context.Background()
	if _, err := env.teams.Join(ctx, other.ID, "busy", domain.RoleBackend); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := env.offers.Scout(ctx, "lead", "busy", domain.RoleBackend); !errors.Is(err, domain.ErrAlreadyOnTeam) {
		t.Fatalf("expected AlreadyOnTeam, got %v", err)
	}
	if _, err := env.offers.Scout(ctx, "busy", "lead", domain.RoleBackend); !errors.Is(err, domain.ErrNotLeader) {
		t.Fatalf("expected NotLeader, got %v", err)
	}
	if _, err := env.offers.Apply(ctx, "busy", other.ID, domain.RoleBackend); !errors.Is(err, domain.ErrAlreadyOnTeam) {
		t.Fatalf("expected AlreadyOnTeam for apply, got %v", err)
	}
}

func TestSecondAcceptFailsAfterJoiningElsewhere(t *testing.T) {
	env := newTestEnv(t, "lead-a", "lead-b", "dev")
	teamA := env.found(t, "lead-a", domain.Positions{Backend: 1})
	teamB := env.found(t, "lead-b", domain.Positions{Backend: 1})
	ctx := context.Background()

	toA, err := env.offers.Apply(ctx, "dev", teamA.ID, domain.RoleBackend)
	if err != nil {
		t.Fatalf("apply a: %v", err)
	}
	toB, err := env.offers.Apply(ctx, "dev", teamB.ID, domain.RoleBackend)
	if err != nil {
		t.Fatalf("apply b: %v", err)
	}
	if _, err := env.offers.Decide(ctx, toA.ID, "lead-a", true); err != nil {
		t.Fatalf("accept a: %v", err)
	}

	env.dispatcher.reset()
	if _, err := env.offers.Decide(ctx, toB.ID, "lead-b", true); !errors.Is(err, domain.ErrAlreadyOnTeam) {
		t.Fatalf("expected AlreadyOnTeam, got %v", err)
	}
	if kinds := env.dispatcher.kinds(); len(kinds) != 0 {
		t.Fatalf("failed decide must not notify, got %v", kinds)
	}
	stored, err := env.store.GetOffer(ctx, toB.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if !stored.Pending() {
		t.Fatalf("offer to B must stay pending, got %+v", stored)
	}
	if got := env.occupied(t, teamB.ID, domain.RoleBackend); got != 0 {
		t.Fatalf("team B backend seats changed: %d", got)
	}

	// Declining is still possible.
	if _, err := env.offers.Decide(ctx, toB.ID, "lead-b", false); err != nil {
		t.Fatalf("decline b: %v", err)
	}
	declined, ok := env.dispatcher.find(notify.KindOfferDeclined)
	if !ok || declined.Recipients[0] != "dev" {
		t.Fatalf("expected OFFER_DECLINED to dev, got %+v", declined)
	}
}

func TestDecideRules(t *testing.T) {
	env := newTestEnv(t, "lead", "dev", "stranger")
	team := env.found(t, "lead", domain.Positions{Backend: 2})
	ctx := context.Background()

	offer, err := env.offers.Apply(ctx, "dev", team.ID, domain.RoleBackend)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "dev", true); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("initiator must not decide, got %v", err)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "stranger", true); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("stranger must not decide, got %v", err)
	}
	if _, err := env.offers.Decide(ctx, "missing", "lead", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "lead", false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "lead", true); !errors.Is(err, domain.ErrAlreadyDecided) {
		t.Fatalf("expected AlreadyDecided, got %v", err)
	}
	if _, err := env.teams.CurrentTeam(ctx, "dev"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("declined applicant must not join, got %v", err)
	}
}

func TestApplyAcceptRoundTrip(t *testing.T) {
	env := newTestEnv(t, "lead", "dev")
	team := env.found(t, "lead", domain.Positions{Frontend: 1})
	ctx := context.Background()

	offer, err := env.offers.Apply(ctx, "dev", team.ID, domain.RoleFrontend)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	received, ok := env.dispatcher.find(notify.KindOfferReceived)
	if !ok || received.Recipients[0] != "lead" {
		t.Fatalf("expected OFFER_RECEIVED to leader, got %+v", received)
	}
	teamOffers, err := env.offers.ListForTeam(ctx, "lead", 0)
	if err != nil || len(teamOffers) != 1 || teamOffers[0].ID != offer.ID {
		t.Fatalf("expected offer in team list, got %v (%v)", teamOffers, err)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "lead", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	mine, err := env.offers.ListForIndividual(ctx, "dev", 10)
	if err != nil || len(mine) != 1 || mine[0].Decision == nil || !*mine[0].Decision {
		t.Fatalf("expected accepted offer in individual list, got %v (%v)", mine, err)
	}
	if got := env.occupied(t, team.ID, domain.RoleFrontend); got != 1 {
		t.Fatalf("expected frontend seat taken, got %d", got)
	}
}

func TestRecruitingFlagGatesNewOffersOnly(t *testing.T) {
	env := newTestEnv(t, "lead", "dev", "late")
	team := env.found(t, "lead", domain.Positions{Backend: 2})
	ctx := context.Background()

	pending, err := env.offers.Apply(ctx, "dev", team.ID, domain.RoleBackend)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := env.teams.SetRecruiting(ctx, "lead", team.ID, false); err != nil {
		t.Fatalf("set recruiting: %v", err)
	}
	if _, err := env.offers.Apply(ctx, "late", team.ID, domain.RoleBackend); !errors.Is(err, domain.ErrNoVacancy) {
		t.Fatalf("expected NoVacancy while not recruiting, got %v", err)
	}
	if _, err := env.offers.Decide(ctx, pending.ID, "lead", true); err != nil {
		t.Fatalf("pending offer should still be decidable: %v", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, "lead", "dev")
	team := env.found(t, "lead", domain.Positions{Backend: 1})
	ctx := context.Background()

	offer, err := env.offers.Apply(ctx, "dev", team.ID, domain.RoleBackend)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := env.offers.Cancel(ctx, offer.ID, "lead"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("counterpart must not cancel, got %v", err)
	}

	env.dispatcher.reset()
	if err := env.offers.Cancel(ctx, offer.ID, "dev"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if kinds := env.dispatcher.kinds(); len(kinds) != 0 {
		t.Fatalf("cancel must not notify, got %v", kinds)
	}
	if _, err := env.offers.Decide(ctx, offer.ID, "lead", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cancelled offer should be gone, got %v", err)
	}
	listed, err := env.offers.ListForTeam(ctx, "lead", 0)
	if err != nil || len(listed) != 0 {
		t.Fatalf("cancelled offer must not be listed, got %v (%v)", listed, err)
	}
}

func TestConcurrentAcceptsFillOneSeat(t *testing.T) {
	const applicants = 8
	ids := []string{"lead"}
	for i := 0; i < applicants; i++ {
		ids = append(ids, "dev-"+string(rune('a'+i)))
	}
	env := newTestEnv(t, ids...)
	team := env.found(t, "lead", domain.Positions{Backend: 1})
	ctx := context.Background()

	offers := make([]*domain.Offer, 0, applicants)
	for _, id := range ids[1:] {
		offer, err := env.offers.Apply(ctx, id, team.ID, domain.RoleBackend)
		if err != nil {
			t.Fatalf("apply %s: %v", id, err)
		}
		offers = append(offers, offer)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, offer := range offers {
		wg.Add(1)
		go func(offerID string) {
			defer wg.Done()
			_, err := env.offers.Decide(ctx, offerID, "lead", true)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrNoVacancy) {
				t.Errorf("unexpected error: %v", err)
			}
		}(offer.ID)
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accept, got %d", accepted)
	}
	if got := env.occupied(t, team.ID, domain.RoleBackend); got != 1 {
		t.Fatalf("expected one backend seat occupied, got %d", got)
	}
}
