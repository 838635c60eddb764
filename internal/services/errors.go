package services

import "errors"

// ValidationError reports a malformed input field. Field names the
// offending request field so a client can highlight it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrInvalidCredentials is the single generic login failure. Unknown email
// and wrong password return the same value so accounts cannot be enumerated.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidToken is returned for a missing, malformed, expired, or
// badly signed session token.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrEmailTaken is returned when registering an email that already has
// an account.
var ErrEmailTaken = errors.New("email already registered")
