package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure.
type Kind string

const (
	KindNoVacancy         Kind = "NO_VACANCY"
	KindAlreadyOnTeam     Kind = "ALREADY_ON_TEAM"
	KindAlreadyDecided    Kind = "ALREADY_DECIDED"
	KindNotAuthorized     Kind = "NOT_AUTHORIZED"
	KindNotLeader         Kind = "NOT_LEADER"
	KindCannotFireSelf    Kind = "CANNOT_FIRE_SELF"
	KindLeaderCannotLeave Kind = "LEADER_CANNOT_LEAVE"
	KindCapacityConflict  Kind = "CAPACITY_CONFLICT"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
)

// Error is a caller-facing validation failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so detailed errors satisfy errors.Is against the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNoVacancy         = &Error{Kind: KindNoVacancy, Message: "no vacancy for role"}
	ErrAlreadyOnTeam     = &Error{Kind: KindAlreadyOnTeam, Message: "individual already has a current team"}
	ErrAlreadyDecided    = &Error{Kind: KindAlreadyDecided, Message: "offer already decided"}
	ErrNotAuthorized     = &Error{Kind: KindNotAuthorized, Message: "not authorized for this offer"}
	ErrNotLeader         = &Error{Kind: KindNotLeader, Message: "only the team leader may do this"}
	ErrCannotFireSelf    = &Error{Kind: KindCannotFireSelf, Message: "leader cannot fire themselves"}
	ErrLeaderCannotLeave = &Error{Kind: KindLeaderCannotLeave, Message: "leader must complete the project instead of leaving"}
	ErrCapacityConflict  = &Error{Kind: KindCapacityConflict, Message: "max count below occupied seats"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// KindOf extracts the business kind of err, or "" for infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
