package errors

import (
	"errors"
	"strings"
)

// CLIError is what the command line prints: a category sentinel, the
// original cause and text written for a person.
type CLIError struct {
	Err        error // category, one of the sentinels in this package
	Cause      error
	Message    string
	Details    string
	Suggestion string
}

// Error renders the message, details on the next line, then a blank line
// and the suggestion.
func (e *CLIError) Error() string {
	out := e.Message
	if e.Details != "" {
		out += "\n" + e.Details
	}
	if e.Suggestion != "" {
		out += "\n\n" + e.Suggestion
	}
	return out
}

func (e *CLIError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Err, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Target names what the failing command acted on.
type Target struct {
	RunID string
	URL   string // remote service, for connection errors
}

// ForCLI classifies err for display. Errors that are already a *CLIError,
// or match no category, come back unchanged.
func ForCLI(err error, target Target, opts ...Option) error {
	var done *CLIError
	if err == nil || errors.As(err, &done) {
		return err
	}
	for _, wrap := range []func(error) error{
		func(e error) error { return WrapRunError(e, target.RunID, opts...) },
		func(e error) error { return WrapConfigError(e, opts...) },
		func(e error) error { return WrapAuthError(e, target.RunID, opts...) },
		func(e error) error { return WrapConnectionError(e, target.URL, opts...) },
		func(e error) error { return WrapGitError(e, opts...) },
	} {
		if wrapped := wrap(err); wrapped != err {
			return wrapped
		}
	}
	return err
}

var (
	connectionMarkers = []string{"connection refused", "no such host", "network is unreachable", "dial tcp"}
	tlsMarkers        = []string{"certificate", "tls", "x509"}
	timeoutMarkers    = []string{"timeout", "deadline exceeded"}
	unauthorized      = []string{"unauthorized", "401"}
)

// mentions reports whether the lowercased message of err contains any of
// markers.
func mentions(err error, markers []string) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
