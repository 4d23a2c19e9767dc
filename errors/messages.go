package errors

import "fmt"

// ErrorMessenger supplies the message and suggestion for each category.
// Embed DefaultMessenger to override only some of them.
type ErrorMessenger interface {
	AuthErrorMessage() (message, suggestion string)
	TokenExpiredMessage() (message, suggestion string)
	PermissionDeniedMessage(runID string) (message, suggestion string)

	ConnectionErrorMessage(target string) (message, suggestion string)
	TLSErrorMessage(target string) (message, suggestion string)
	TimeoutErrorMessage(target string) (message, suggestion string)

	NotInGitRepoMessage() (message, suggestion string)

	UnresumableMessage(runID string) (message, suggestion string)
	RunBusyMessage(runID string) (message, suggestion string)
	RunCompletedMessage(runID string) (message, suggestion string)

	MissingCredentialMessage() (message, suggestion string)
	InvalidSettingMessage() (message, suggestion string)
}

// DefaultMessenger is the pipeline command's wording.
type DefaultMessenger struct{}

func (DefaultMessenger) AuthErrorMessage() (string, string) {
	return "The approval token was missing or rejected.",
		"Issue one with 'pipeline token issue --approver <name>' and pass it with --token."
}

func (DefaultMessenger) TokenExpiredMessage() (string, string) {
	return "The approval token has expired.", "Issue a fresh token and retry."
}

func (DefaultMessenger) PermissionDeniedMessage(runID string) (string, string) {
	if runID == "" {
		return "The approval token is scoped to a different run.",
			"Issue a token for this run with 'pipeline token issue --run <id>'."
	}
	return fmt.Sprintf("The approval token does not cover run %s.", runID),
		fmt.Sprintf("Issue one with 'pipeline token issue --run %s'.", runID)
}

func (DefaultMessenger) ConnectionErrorMessage(target string) (string, string) {
	return "Cannot connect to " + target,
		"Make sure the service is up, the address is right and the network is reachable."
}

func (DefaultMessenger) TLSErrorMessage(target string) (string, string) {
	return "TLS/certificate error talking to " + target,
		"The server certificate could not be verified."
}

func (DefaultMessenger) TimeoutErrorMessage(target string) (string, string) {
	return "Request to " + target + " timed out",
		"The service may be overloaded. Retry shortly."
}

func (DefaultMessenger) NotInGitRepoMessage() (string, string) {
	return "No git repository found.",
		"Run from the repository the pipeline works on, or set repo_path."
}

func (DefaultMessenger) UnresumableMessage(runID string) (string, string) {
	return fmt.Sprintf("Run %s cannot be resumed.", runID),
		"Its checkpoint is missing or corrupt. See 'pipeline runs list' or start a new run."
}

func (DefaultMessenger) RunBusyMessage(runID string) (string, string) {
	return fmt.Sprintf("Run %s is already executing.", runID),
		"Wait for the other invocation to finish."
}

func (DefaultMessenger) RunCompletedMessage(runID string) (string, string) {
	return fmt.Sprintf("Run %s has already completed.", runID),
		fmt.Sprintf("Its result is shown by 'pipeline status %s'.", runID)
}

func (DefaultMessenger) MissingCredentialMessage() (string, string) {
	return "A required credential is not configured.",
		"Set it with 'pipeline config set <key> <value>' or PIPELINE_<KEY>, or run with --offline."
}

func (DefaultMessenger) InvalidSettingMessage() (string, string) {
	return "The configuration is invalid.",
		"Check the values with 'pipeline config get'."
}

// Option customizes the Wrap functions.
type Option func(*wrapOptions)

type wrapOptions struct {
	messenger ErrorMessenger
}

// WithMessenger replaces DefaultMessenger.
func WithMessenger(m ErrorMessenger) Option {
	return func(o *wrapOptions) { o.messenger = m }
}

func messengerFrom(opts []Option) ErrorMessenger {
	o := wrapOptions{messenger: DefaultMessenger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o.messenger
}
