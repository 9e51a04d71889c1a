package domain

import (
	"strings"
	"time"
)

// Role is a team function an individual fills.
type Role string

const (
	RoleDesigner Role = "DESIGNER"
	RoleBackend  Role = "BACKEND"
	RoleFrontend Role = "FRONTEND"
	RoleManager  Role = "MANAGER"
)

// MaxPositionsPerRole bounds the configurable seat count of a single role.
const MaxPositionsPerRole = 10

// Roles lists every role in display order.
var Roles = []Role{RoleDesigner, RoleBackend, RoleFrontend, RoleManager}

// ParseRole normalizes and validates a role label.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", Errorf(KindInvalidArgument, "unknown role %q", value)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDesigner, RoleBackend, RoleFrontend, RoleManager:
		return true
	}
	return false
}

// Positions holds the maximum member count per role.
type Positions struct {
	Designer int `json:"designer"`
	Backend  int `json:"backend"`
	Frontend int `json:"frontend"`
	Manager  int `json:"manager"`
}

// Get returns the max count configured for role.
func (p Positions) Get(role Role) int {
	switch role {
	case RoleDesigner:
		return p.Designer
	case RoleBackend:
		return p.Backend
	case RoleFrontend:
		return p.Frontend
	case RoleManager:
		return p.Manager
	}
	return 0
}

// With returns a copy of p with role set to n.
func (p Positions) With(role Role, n int) Positions {
	switch role {
	case RoleDesigner:
		p.Designer = n
	case RoleBackend:
		p.Backend = n
	case RoleFrontend:
		p.Frontend = n
	case RoleManager:
		p.Manager = n
	}
	return p
}

// Validate ensures every role count is within bounds.
func (p Positions) Validate() error {
	for _, role := range Roles {
		n := p.Get(role)
		if n < 0 || n > MaxPositionsPerRole {
			return Errorf(KindInvalidArgument, "%s positions must be between 0 and %d", strings.ToLower(string(role)), MaxPositionsPerRole)
		}
	}
	return nil
}

// Team is a project group recruiting members per role.
type Team struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Positions    Positions  `json:"positions"`
	IsRecruiting bool       `json:"is_recruiting"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultURL    string     `json:"result_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Completed reports whether the team project has ended.
func (t Team) Completed() bool {
	return t.CompletedAt != nil
}

// AcceptsOffers reports whether new applications or scouting offers may target the team.
func (t Team) AcceptsOffers() bool {
	return t.IsRecruiting && !t.Completed()
}
