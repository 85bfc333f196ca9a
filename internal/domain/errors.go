package domain

import "errors"

var (
	ErrAlreadyInSession  = errors.New("already in session")
	ErrNotInQueue        = errors.New("not in queue")
	ErrNotInSession      = errors.New("not in session")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrRoleMismatch      = errors.New("role mismatch")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrUserNotFound      = errors.New("user not found")

	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrUserIDTooLong      = errors.New("user id too long")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInSession, "already_in_session"},
	{ErrNotInQueue, "not_in_queue"},
	{ErrNotInSession, "not_in_session"},
	{ErrSessionClosed, "session_closed"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrRoleMismatch, "role_mismatch"},
	{ErrUnexpectedMessage, "unexpected_message"},
	{ErrUserNotFound, "user_not_found"},
	{ErrDisplayNameTooLong, "display_name_too_long"},
	{ErrUserIDTooLong, "user_id_too_long"},
}

// Code maps err to the stable identifier sent to clients.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
