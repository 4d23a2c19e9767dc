package auth

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and wrong
	// signing methods.
	ErrInvalidToken     = errors.New("approval token is not valid")
	ErrTokenExpired     = errors.New("approval token has expired")
	ErrSecretTooShort   = errors.New("approval secret is shorter than the minimum length")
	ErrApproverRequired = errors.New("approval token needs an approver")
	// ErrRunNotAuthorized means the token is scoped to a different run.
	ErrRunNotAuthorized = errors.New("approval token is scoped to another run")
)
