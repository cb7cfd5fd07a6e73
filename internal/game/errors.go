package game

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable cause of a rejected action.
type Reason string

const (
	ReasonFull      Reason = "full"
	ReasonDuplicate Reason = "duplicate"
	ReasonNotFound  Reason = "not_found"
	ReasonLimit     Reason = "limit"
	ReasonOccupied  Reason = "occupied"
	ReasonBlocked   Reason = "blocked"
	ReasonDead      Reason = "dead"
	ReasonNotActive Reason = "not_active"
	ReasonOver      Reason = "over"
	ReasonInvalid   Reason = "invalid"
)

// RejectError is returned for actions that were refused without mutating state.
type RejectError struct {
	Reason  Reason
	Message string
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	return e.Message
}

// Is reports whether target is a RejectError with the same reason.
func (e *RejectError) Is(target error) bool {
	var t *RejectError
	if errors.As(target, &t) {
		return e.Reason == t.Reason
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrFull      = &RejectError{Reason: ReasonFull, Message: "session full"}
	ErrDuplicate = &RejectError{Reason: ReasonDuplicate, Message: "player already in session"}
	ErrNotFound  = &RejectError{Reason: ReasonNotFound, Message: "entity not found"}
	ErrLimit     = &RejectError{Reason: ReasonLimit, Message: "weapon limit reached"}
	ErrOccupied  = &RejectError{Reason: ReasonOccupied, Message: "cell occupied"}
	ErrBlocked   = &RejectError{Reason: ReasonBlocked, Message: "cell blocked"}
	ErrDead      = &RejectError{Reason: ReasonDead, Message: "player has no lives left"}
	ErrNotActive = &RejectError{Reason: ReasonNotActive, Message: "session not active"}
	ErrOver      = &RejectError{Reason: ReasonOver, Message: "session is over"}
	ErrInvalid   = &RejectError{Reason: ReasonInvalid, Message: "invalid request"}
)

// ErrTemplateNotFound is returned by a MapStore for unknown template, chain or group ids.
var ErrTemplateNotFound = errors.New("map template not found")

func reject(reason Reason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from err, or "" when err is not a rejection.
func ReasonOf(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
