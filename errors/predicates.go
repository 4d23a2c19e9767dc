package errors

import (
	"errors"

	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsAuthError reports a missing, invalid or expired approval token.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return isAny(err, ErrNotAuthenticated, ErrTokenExpired, auth.ErrInvalidToken, auth.ErrTokenExpired, approval.ErrUnauthorized) ||
		mentions(err, unauthorized)
}

// IsConnectionError reports refused, unresolvable, TLS and timed out
// connections.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectionFailed) ||
		mentions(err, connectionMarkers) || mentions(err, tlsMarkers) || mentions(err, timeoutMarkers)
}

// IsPermissionError reports a valid token used for the wrong run.
func IsPermissionError(err error) bool {
	return err != nil && isAny(err, ErrPermissionDenied, auth.ErrRunNotAuthorized, approval.ErrForbidden)
}

func IsRunUnavailable(err error) bool {
	return err != nil && isAny(err, ErrRunUnavailable, runner.ErrUnresumable, runner.ErrRunBusy, runner.ErrRunCompleted)
}
