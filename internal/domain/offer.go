package domain

import (
	"strings"
	"time"
)

// Origin records which side initiated an offer.
type Origin string

const (
	// OriginUser is an application sent by an individual to a team.
	OriginUser Origin = "USER"
	// OriginLeader is a scouting offer sent by a team leader to an individual.
	OriginLeader Origin = "LEADER"
)

// ParseOrigin normalizes an origin label.
func ParseOrigin(value string) (Origin, error) {
	switch o := Origin(strings.ToUpper(strings.TrimSpace(value))); o {
	case OriginUser, OriginLeader:
		return o, nil
	}
	return "", Errorf(KindInvalidArgument, "unknown offer origin %q", value)
}

// Party identifies a side of an offer.
type Party string

const (
	PartyIndividual Party = "INDIVIDUAL"
	PartyLeader     Party = "LEADER"
)

type offerParties struct {
	initiator   Party
	counterpart Party
}

// offerAuthority maps an origin to who may cancel (initiator) and who may decide (counterpart).
var offerAuthority = map[Origin]offerParties{
	OriginUser:   {initiator: PartyIndividual, counterpart: PartyLeader},
	OriginLeader: {initiator: PartyLeader, counterpart: PartyIndividual},
}

// Initiator returns the party that created offers of this origin.
func (o Origin) Initiator() Party {
	return offerAuthority[o].initiator
}

// Counterpart returns the party that decides offers of this origin.
func (o Origin) Counterpart() Party {
	return offerAuthority[o].counterpart
}

// Offer is a pending or decided proposal for an individual to join a team.
type Offer struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"team_id"`
	IndividualID string     `json:"individual_id"`
	Role         Role       `json:"role"`
	Origin       Origin     `json:"origin"`
	Decision     *bool      `json:"decision"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	CancelledAt  *time.Time `json:"-"`
}

// Pending reports whether the offer still awaits a decision.
func (o Offer) Pending() bool {
	return o.Decision == nil
}

// Cancelled reports whether the initiator withdrew the offer.
func (o Offer) Cancelled() bool {
	return o.CancelledAt != nil
}

// Decide records the decision once.
func (o *Offer) Decide(accepted bool, at time.Time) error {
	if !o.Pending() {
		return ErrAlreadyDecided
	}
	decided := at.UTC()
	o.Decision = &accepted
	o.DecidedAt = &decided
	return nil
}

// Cancel withdraws a pending offer.
func (o *Offer) Cancel(at time.Time) error {
	if !o.Pending() {
		return ErrAlreadyDecided
	}
	cancelled := at.UTC()
	o.CancelledAt = &cancelled
	return nil
}
