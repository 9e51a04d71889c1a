package domain

import "time"

// MemberStatus tracks a membership through its lifecycle.
type MemberStatus string

const (
	MemberStatusProgress   MemberStatus = "PROGRESS"
	MemberStatusQuit       MemberStatus = "QUIT"
	MemberStatusFired      MemberStatus = "FIRED"
	MemberStatusComplete   MemberStatus = "COMPLETE"
	MemberStatusIncomplete MemberStatus = "INCOMPLETE"
)

// Terminal reports whether no further transition is allowed from s.
func (s MemberStatus) Terminal() bool {
	return s != MemberStatusProgress
}

// CanTransition reports whether a membership may move from s to next.
// Only PROGRESS has outgoing edges, and none lead back to PROGRESS.
func (s MemberStatus) CanTransition(next MemberStatus) bool {
	if s != MemberStatusProgress {
		return false
	}
	switch next {
	case MemberStatusQuit, MemberStatusFired, MemberStatusComplete, MemberStatusIncomplete:
		return true
	}
	return false
}

// TeamMember links an individual to a team with a role.
type TeamMember struct {
	ID           string       `json:"id"`
	TeamID       string       `json:"team_id"`
	IndividualID string       `json:"individual_id"`
	Role         Role         `json:"role"`
	IsLeader     bool         `json:"is_leader"`
	Status       MemberStatus `json:"status"`
	JoinedAt     time.Time    `json:"joined_at"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	ResultURL    string       `json:"result_url,omitempty"`
}

// Active reports whether the membership is the individual's current team.
func (m TeamMember) Active() bool {
	return m.Status == MemberStatusProgress
}

// Transition moves the membership into a terminal status at the given time.
func (m *TeamMember) Transition(next MemberStatus, at time.Time) error {
	if !m.Status.CanTransition(next) {
		return Errorf(KindInvalidArgument, "membership cannot move from %s to %s", m.Status, next)
	}
	m.Status = next
	ended := at.UTC()
	m.EndedAt = &ended
	return nil
}
