// Package memory provides an in-process Store for tests and local runs.
// A single mutex serializes transactions; a failed transaction restores the
// snapshot taken when it began.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

// Store implements repository.Store in memory.
type Store struct {
	mu sync.Mutex
	s  *state
}

var (
	_ repository.Store                  = (*Store)(nil)
	_ repository.NotificationRepository = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{s: newState()}
}

type memberRow struct {
	member domain.TeamMember
	seq    int
}

type offerRow struct {
	offer domain.Offer
	seq   int
}

type state struct {
	individuals   map[string]domain.Individual
	teams         map[string]domain.Team
	members       map[string]memberRow
	offers        map[string]offerRow
	notifications []domain.Notification
	seq           int
	notifySeq     int64
}

func newState() *state {
	return &state{
		individuals: make(map[string]domain.Individual),
		teams:       make(map[string]domain.Team),
		members:     make(map[string]memberRow),
		offers:      make(map[string]offerRow),
	}
}

func (s *state) clone() *state {
	c := &state{
		individuals:   make(map[string]domain.Individual, len(s.individuals)),
		teams:         make(map[string]domain.Team, len(s.teams)),
		members:       make(map[string]memberRow, len(s.members)),
		offers:        make(map[string]offerRow, len(s.offers)),
		notifications: append([]domain.Notification(nil), s.notifications...),
		seq:           s.seq,
		notifySeq:     s.notifySeq,
	}
	for k, v := range s.individuals {
		c.individuals[k] = v
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	return c
}

// InTx runs fn holding the store lock; on error every write made by fn is discarded.
func (m *Store) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (m *Store) Ping(context.Context) error { return nil }

func (s *state) CreateIndividual(_ context.Context, individual *domain.Individual) error {
	if individual == nil || individual.ID == "" {
		return repository.ErrInvalidArgument
	}
	if _, ok := s.individuals[individual.ID]; ok {
		return repository.ErrInvalidArgument
	}
	for _, existing := range s.individuals {
		if strings.EqualFold(existing.Email, individual.Email) {
			return repository.ErrInvalidArgument
		}
	}
	s.individuals[individual.ID] = *individual
	return nil
}

func (s *state) GetIndividual(_ context.Context, id string) (*domain.Individual, error) {
	ind, ok := s.individuals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ind, nil
}

func (s *state) LockIndividual(ctx context.Context, id string) (*domain.Individual, error) {
	return s.GetIndividual(ctx, id)
}

func (s *state) CreateTeam(_ context.Context, team *domain.Team) error {
	if team == nil || team.ID == "" {
		return repository.ErrInvalidArgument
	}
	if _, ok := s.teams[team.ID]; ok {
		return repository.ErrInvalidArgument
	}
	s.teams[team.ID] = *team
	return nil
}

func (s *state) UpdateTeam(_ context.Context, team *domain.Team) error {
	if team == nil {
		return repository.ErrInvalidArgument
	}
	if _, ok := s.teams[team.ID]; !ok {
		return repository.ErrNotFound
	}
	s.teams[team.ID] = *team
	return nil
}

func (s *state) GetTeam(_ context.Context, teamID string) (*domain.Team, error) {
	team, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &team, nil
}

func (s *state) LockTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	return s.GetTeam(ctx, teamID)
}

func (s *state) CreateMember(_ context.Context, member *domain.TeamMember) error {
	if member == nil || member.ID == "" {
		return repository.ErrInvalidArgument
	}
	if _, ok := s.teams[member.TeamID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.individuals[member.IndividualID]; !ok {
		return repository.ErrNotFound
	}
	if member.Active() {
		for _, row := range s.members {
			if row.member.IndividualID == member.IndividualID && row.member.Active() {
				return repository.ErrActiveMembershipExists
			}
		}
	}
	s.seq++
	s.members[member.ID] = memberRow{member: *member, seq: s.seq}
	return nil
}

func (s *state) UpdateMember(_ context.Context, member *domain.TeamMember) error {
	if member == nil {
		return repository.ErrInvalidArgument
	}
	row, ok := s.members[member.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !row.member.Active() {
		return repository.ErrMembershipEnded
	}
	row.member.Status = member.Status
	row.member.IsLeader = member.IsLeader
	row.member.EndedAt = member.EndedAt
	row.member.ResultURL = member.ResultURL
	s.members[member.ID] = row
	return nil
}

func (s *state) CurrentMembership(_ context.Context, individualID string) (*domain.TeamMember, error) {
	for _, row := range s.members {
		if row.member.IndividualID == individualID && row.member.Active() {
			member := row.member
			return &member, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *state) ListActiveMembers(_ context.Context, teamID string) ([]domain.TeamMember, error) {
	rows := s.memberRows(func(m domain.TeamMember) bool {
		return m.TeamID == teamID && m.Active()
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].member.IsLeader != rows[j].member.IsLeader {
			return rows[i].member.IsLeader
		}
		return rows[i].seq < rows[j].seq
	})
	return unwrapMembers(rows), nil
}

func (s *state) CountActiveMembersByRole(_ context.Context, teamID string) (map[domain.Role]int, error) {
	counts := make(map[domain.Role]int)
	for _, row := range s.members {
		if row.member.TeamID == teamID && row.member.Active() {
			counts[row.member.Role]++
		}
	}
	return counts, nil
}

func (s *state) ListMembershipsByIndividual(_ context.Context, individualID string) ([]domain.TeamMember, error) {
	rows := s.memberRows(func(m domain.TeamMember) bool {
		return m.IndividualID == individualID
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	return unwrapMembers(rows), nil
}

func (s *state) memberRows(match func(domain.TeamMember) bool) []memberRow {
	rows := make([]memberRow, 0)
	for _, row := range s.members {
		if match(row.member) {
			rows = append(rows, row)
		}
	}
	return rows
}

func unwrapMembers(rows []memberRow) []domain.TeamMember {
	members := make([]domain.TeamMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.member)
	}
	return members
}

func (s *state) CreateOffer(_ context.Context, offer *domain.Offer) error {
	if offer == nil || offer.ID == "" {
		return repository.ErrInvalidArgument
	}
	if _, ok := s.teams[offer.TeamID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.individuals[offer.IndividualID]; !ok {
		return repository.ErrNotFound
	}
	s.seq++
	s.offers[offer.ID] = offerRow{offer: *offer, seq: s.seq}
	return nil
}

func (s *state) UpdateOffer(_ context.Context, offer *domain.Offer) error {
	if offer == nil {
		return repository.ErrInvalidArgument
	}
	row, ok := s.offers[offer.ID]
	if !ok || row.offer.Cancelled() || !row.offer.Pending() {
		return repository.ErrNotFound
	}
	row.offer.Decision = offer.Decision
	row.offer.DecidedAt = offer.DecidedAt
	row.offer.CancelledAt = offer.CancelledAt
	s.offers[offer.ID] = row
	return nil
}

func (s *state) GetOffer(_ context.Context, offerID string) (*domain.Offer, error) {
	row, ok := s.offers[offerID]
	if !ok || row.offer.Cancelled() {
		return nil, repository.ErrNotFound
	}
	offer := row.offer
	return &offer, nil
}

func (s *state) LockOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return s.GetOffer(ctx, offerID)
}

func (s *state) ListOffersByIndividual(_ context.Context, individualID string, limit int) ([]domain.Offer, error) {
	return s.listOffers(func(o domain.Offer) bool { return o.IndividualID == individualID }, limit), nil
}

func (s *state) ListOffersByTeam(_ context.Context, teamID string, limit int) ([]domain.Offer, error) {
	return s.listOffers(func(o domain.Offer) bool { return o.TeamID == teamID }, limit), nil
}

func (s *state) listOffers(match func(domain.Offer) bool, limit int) []domain.Offer {
	rows := make([]offerRow, 0)
	for _, row := range s.offers {
		if !row.offer.Cancelled() && match(row.offer) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	offers := make([]domain.Offer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.offer)
	}
	return offers
}
