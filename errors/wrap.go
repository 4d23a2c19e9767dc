package errors

import (
	"errors"

	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/config"
	"github.com/dpetrovic89/agentic-dev-pipeline/git"
	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
)

func newCLIError(category, cause error, msg, suggestion, details string) *CLIError {
	return &CLIError{Err: category, Cause: cause, Message: msg, Suggestion: suggestion, Details: details}
}

// WrapRunError explains why runID cannot be continued.
func WrapRunError(err error, runID string, opts ...Option) error {
	if err == nil {
		return nil
	}
	m := messengerFrom(opts)
	var msg, hint string
	switch {
	case errors.Is(err, runner.ErrUnresumable):
		msg, hint = m.UnresumableMessage(runID)
	case errors.Is(err, runner.ErrRunBusy):
		msg, hint = m.RunBusyMessage(runID)
	case errors.Is(err, runner.ErrRunCompleted):
		msg, hint = m.RunCompletedMessage(runID)
	default:
		return err
	}
	return newCLIError(ErrRunUnavailable, err, msg, hint, err.Error())
}

// WrapConfigError covers invalid settings and missing credentials. The
// original message names the keys and is kept as details.
func WrapConfigError(err error, opts ...Option) error {
	if err == nil {
		return nil
	}
	m := messengerFrom(opts)
	var msg, hint string
	switch {
	case errors.Is(err, config.ErrMissingCredential):
		msg, hint = m.MissingCredentialMessage()
	case errors.Is(err, config.ErrInvalidSetting), errors.Is(err, config.ErrUnknownKey):
		msg, hint = m.InvalidSettingMessage()
	default:
		return err
	}
	return newCLIError(ErrBadConfig, err, msg, hint, err.Error())
}

// WrapAuthError covers approval token failures, local or reported by a
// remote approval endpoint.
func WrapAuthError(err error, runID string, opts ...Option) error {
	if err == nil {
		return nil
	}
	m := messengerFrom(opts)
	var category error
	var msg, hint string
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		category = ErrTokenExpired
		msg, hint = m.TokenExpiredMessage()
	case errors.Is(err, auth.ErrRunNotAuthorized), errors.Is(err, approval.ErrForbidden):
		category = ErrPermissionDenied
		msg, hint = m.PermissionDeniedMessage(runID)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, approval.ErrUnauthorized), mentions(err, unauthorized):
		category = ErrNotAuthenticated
		msg, hint = m.AuthErrorMessage()
	default:
		return err
	}
	return newCLIError(category, err, msg, hint, "")
}

// WrapConnectionError recognizes refused, unresolvable, TLS and timed out
// connections to target.
func WrapConnectionError(err error, target string, opts ...Option) error {
	if err == nil {
		return nil
	}
	if target == "" {
		target = "the remote service"
	}
	m := messengerFrom(opts)
	switch {
	case mentions(err, connectionMarkers):
		msg, hint := m.ConnectionErrorMessage(target)
		return newCLIError(ErrConnectionFailed, err, msg, hint, "")
	case mentions(err, tlsMarkers):
		msg, hint := m.TLSErrorMessage(target)
		return newCLIError(ErrConnectionFailed, err, msg, hint, err.Error())
	case mentions(err, timeoutMarkers):
		msg, hint := m.TimeoutErrorMessage(target)
		return newCLIError(ErrConnectionFailed, err, msg, hint, "")
	}
	return err
}

// WrapGitError explains a missing repository.
func WrapGitError(err error, opts ...Option) error {
	if err == nil || !errors.Is(err, git.ErrNotRepository) {
		return err
	}
	return NewNotInGitRepoError(opts...)
}

// NewNotInGitRepoError is for commands that need a repository.
func NewNotInGitRepoError(opts ...Option) error {
	msg, hint := messengerFrom(opts).NotInGitRepoMessage()
	return newCLIError(ErrNotInGitRepo, git.ErrNotRepository, msg, hint, "")
}
