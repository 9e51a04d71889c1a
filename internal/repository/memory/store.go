package memory

import (
	"context"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

// The methods below serve reads and single writes outside InTx.

func (m *Store) CreateIndividual(ctx context.Context, individual *domain.Individual) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateIndividual(ctx, individual)
}

func (m *Store) GetIndividual(ctx context.Context, id string) (*domain.Individual, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetIndividual(ctx, id)
}

func (m *Store) LockIndividual(ctx context.Context, id string) (*domain.Individual, error) {
	return m.GetIndividual(ctx, id)
}

func (m *Store) CreateTeam(ctx context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateTeam(ctx, team)
}

func (m *Store) UpdateTeam(ctx context.Context, team *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateTeam(ctx, team)
}

func (m *Store) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetTeam(ctx, teamID)
}

func (m *Store) LockTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	return m.GetTeam(ctx, teamID)
}

func (m *Store) CreateMember(ctx context.Context, member *domain.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateMember(ctx, member)
}

func (m *Store) UpdateMember(ctx context.Context, member *domain.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateMember(ctx, member)
}

func (m *Store) CurrentMembership(ctx context.Context, individualID string) (*domain.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CurrentMembership(ctx, individualID)
}

func (m *Store) ListActiveMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListActiveMembers(ctx, teamID)
}

func (m *Store) CountActiveMembersByRole(ctx context.Context, teamID string) (map[domain.Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CountActiveMembersByRole(ctx, teamID)
}

func (m *Store) ListMembershipsByIndividual(ctx context.Context, individualID string) ([]domain.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListMembershipsByIndividual(ctx, individualID)
}

func (m *Store) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateOffer(ctx, offer)
}

func (m *Store) UpdateOffer(ctx context.Context, offer *domain.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateOffer(ctx, offer)
}

func (m *Store) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetOffer(ctx, offerID)
}

func (m *Store) LockOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return m.GetOffer(ctx, offerID)
}

func (m *Store) ListOffersByIndividual(ctx context.Context, individualID string, limit int) ([]domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListOffersByIndividual(ctx, individualID, limit)
}

func (m *Store) ListOffersByTeam(ctx context.Context, teamID string, limit int) ([]domain.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListOffersByTeam(ctx, teamID, limit)
}

// InsertNotifications appends inbox entries assigning sequential ids.
func (m *Store) InsertNotifications(_ context.Context, notifications []domain.Notification) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]domain.Notification, 0, len(notifications))
	for _, n := range notifications {
		if _, ok := m.s.individuals[n.RecipientID]; !ok {
			return nil, repository.ErrNotFound
		}
	}
	for _, n := range notifications {
		m.s.notifySeq++
		n.ID = m.s.notifySeq
		m.s.notifications = append(m.s.notifications, n)
		stored = append(stored, n)
	}
	return stored, nil
}

// ListNotifications returns the newest entries of a recipient.
func (m *Store) ListNotifications(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items := make([]domain.Notification, 0)
	for i := len(m.s.notifications) - 1; i >= 0 && len(items) < limit; i-- {
		if n := m.s.notifications[i]; n.RecipientID == recipientID {
			items = append(items, n)
		}
	}
	return items, nil
}

// MarkNotificationRead stamps read_at once.
func (m *Store) MarkNotificationRead(_ context.Context, recipientID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.s.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			if n.ReadAt == nil {
				now := time.Now().UTC()
				m.s.notifications[i].ReadAt = &now
			}
			return nil
		}
	}
	return repository.ErrNotFound
}
