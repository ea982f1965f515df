package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the short machine-checkable part of every caller-facing error.
type ErrorKind string

const (
	KindUnauthenticated      ErrorKind = "unauthenticated"
	KindAlreadyOnTeam        ErrorKind = "already_on_team"
	KindNotAMember           ErrorKind = "not_a_member"
	KindNotCaptain           ErrorKind = "not_captain"
	KindCannotRemoveSelf     ErrorKind = "cannot_remove_self"
	KindCaptaincyViaTransfer ErrorKind = "captaincy_via_transfer"
	KindCaptainMustTransfer  ErrorKind = "captain_must_transfer"
	KindTeamFull             ErrorKind = "team_full"
	KindTeamNotRecruiting    ErrorKind = "team_not_recruiting"
	KindDuplicateRequest     ErrorKind = "duplicate_request"
	KindAlreadyResolved      ErrorKind = "already_resolved"
	KindRequestNotFound      ErrorKind = "request_not_found"
	KindTeamNotFound         ErrorKind = "team_not_found"
	KindPlayerNotFound       ErrorKind = "player_not_found"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindStoreUnavailable     ErrorKind = "store_unavailable"
)

// Error pairs a kind with a display message. Two errors match under
// errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Message: "no authenticated player"}
	ErrAlreadyOnTeam        = &Error{Kind: KindAlreadyOnTeam, Message: "player is already a member of a team"}
	ErrNotAMember           = &Error{Kind: KindNotAMember, Message: "player is not a member of this team"}
	ErrNotCaptain           = &Error{Kind: KindNotCaptain, Message: "only the team captain can perform this action"}
	ErrCannotRemoveSelf     = &Error{Kind: KindCannotRemoveSelf, Message: "the captain cannot remove themselves; transfer captaincy first"}
	ErrCaptaincyViaTransfer = &Error{Kind: KindCaptaincyViaTransfer, Message: "the IGL role only changes hands through a captaincy transfer"}
	ErrCaptainMustTransfer  = &Error{Kind: KindCaptainMustTransfer, Message: "the captain must transfer captaincy before leaving"}
	ErrTeamFull             = &Error{Kind: KindTeamFull, Message: "the team already has 5 members"}
	ErrTeamNotRecruiting    = &Error{Kind: KindTeamNotRecruiting, Message: "this team is not recruiting"}
	ErrDuplicateRequest     = &Error{Kind: KindDuplicateRequest, Message: "a pending request for this team already exists"}
	ErrAlreadyResolved      = &Error{Kind: KindAlreadyResolved, Message: "this request has already been processed"}
	ErrRequestNotFound      = &Error{Kind: KindRequestNotFound, Message: "join request not found"}
	ErrTeamNotFound         = &Error{Kind: KindTeamNotFound, Message: "team not found"}
	ErrPlayerNotFound       = &Error{Kind: KindPlayerNotFound, Message: "player not found"}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
)

func invalidInput(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// storeFailure keeps caller-facing errors as they are and wraps anything else
// as store_unavailable.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindStoreUnavailable, Message: op, Err: err}
}

// KindOf extracts the kind of err; unknown errors are store failures.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStoreUnavailable
}

// MessageOf returns the display message of err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrStoreUnavailable.Message
}
