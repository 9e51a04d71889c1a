package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates the store rejected malformed input.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrActiveMembershipExists indicates a second PROGRESS membership for one individual.
	ErrActiveMembershipExists = errors.New("repository: active membership exists")
	// ErrMembershipEnded indicates an update to a membership that is no longer PROGRESS.
	ErrMembershipEnded = errors.New("repository: membership already ended")
)
