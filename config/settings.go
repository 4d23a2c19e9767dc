package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidSetting is wrapped by every validation failure.
var ErrInvalidSetting = errors.New("invalid setting")

// ErrMissingCredential reports a live run without the credentials its
// backends need.
var ErrMissingCredential = errors.New("missing credential")

// Settings is the typed view of a resolved configuration.
type Settings struct {
	MaxTicketRetries  int
	MaxGraphLoops     int
	MaxParallelCoders int
	OfflineMode       bool
	MergeOnApproval   bool

	StateDir string
	LogDir   string
	RepoPath string
	Remote   string

	LLMBackend      string
	AnthropicAPIKey string
	Model           string
	MaxDiffLines    int

	Tester      string
	TestCommand string

	Notifier        string
	SlackToken      string
	SlackChannel    string
	SlackWebhookURL string
	WebhookURL      string

	GitToken string

	CheckpointStore string
	RedisURL        string

	ApprovalSecret  string
	ApprovalAddr    string
	ApprovalDir     string
	ApprovalChannel string
	NATSURL         string
	NATSToken       string
}

// Settings parses and validates the resolved values. All problems are
// reported together.
func (c *Resolved) Settings() (Settings, error) {
	p := parser{c: c}
	s := Settings{
		MaxTicketRetries:  p.int(KeyMaxTicketRetries, 0),
		MaxGraphLoops:     p.int(KeyMaxGraphLoops, 1),
		MaxParallelCoders: p.int(KeyMaxParallelCoders, 1),
		OfflineMode:       p.bool(KeyOfflineMode),
		MergeOnApproval:   p.bool(KeyMergeOnApproval),

		StateDir: p.required(KeyStateDir),
		LogDir:   c.Get(KeyLogDir),
		RepoPath: p.required(KeyRepoPath),
		Remote:   p.required(KeyRemote),

		LLMBackend:      p.oneOf(KeyLLMBackend, BackendAnthropic, BackendClaudeCLI),
		AnthropicAPIKey: c.Get(KeyAnthropicAPIKey),
		Model:           c.Get(KeyModel),
		MaxDiffLines:    p.int(KeyMaxDiffLines, 1),

		Tester:      p.oneOf(KeyTester, TesterLLM, TesterLocal),
		TestCommand: c.Get(KeyTestCommand),

		Notifier:        p.oneOf(KeyNotifier, NotifierLog, NotifierSlack, NotifierSlackWebhook, NotifierWebhook),
		SlackToken:      c.Get(KeySlackToken),
		SlackChannel:    c.Get(KeySlackChannel),
		SlackWebhookURL: c.Get(KeySlackWebhookURL),
		WebhookURL:      c.Get(KeyWebhookURL),

		GitToken: c.Get(KeyGitToken),

		CheckpointStore: p.oneOf(KeyCheckpointStore, StoreFile, StoreSQLite, StoreRedis, StoreMemory),
		RedisURL:        c.Get(KeyRedisURL),

		ApprovalSecret:  c.Get(KeyApprovalSecret),
		ApprovalAddr:    c.Get(KeyApprovalAddr),
		ApprovalDir:     c.Get(KeyApprovalDir),
		ApprovalChannel: c.Get(KeyApprovalChannel),
		NATSURL:         c.Get(KeyNATSURL),
		NATSToken:       c.Get(KeyNATSToken),
	}
	if s.Tester == TesterLocal && strings.TrimSpace(s.TestCommand) == "" {
		p.fail(KeyTestCommand, "required when tester is local")
	}
	return s, errors.Join(p.errs...)
}

// ValidateLive checks that a live run has the credentials its configured
// backends need. Offline runs need none.
func (s Settings) ValidateLive() error {
	if s.OfflineMode {
		return nil
	}
	var missing []string
	if s.LLMBackend == BackendAnthropic && s.AnthropicAPIKey == "" {
		missing = append(missing, KeyAnthropicAPIKey)
	}
	switch s.Notifier {
	case NotifierSlack:
		if s.SlackToken == "" {
			missing = append(missing, KeySlackToken)
		}
		if s.SlackChannel == "" {
			missing = append(missing, KeySlackChannel)
		}
	case NotifierSlackWebhook:
		if s.SlackWebhookURL == "" {
			missing = append(missing, KeySlackWebhookURL)
		}
	case NotifierWebhook:
		if s.WebhookURL == "" {
			missing = append(missing, KeyWebhookURL)
		}
	}
	if s.MergeOnApproval && s.GitToken == "" {
		missing = append(missing, KeyGitToken)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

type parser struct {
	c    *Resolved
	errs []error
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("%w: %s: %s", ErrInvalidSetting, key, msg))
}

func (p *parser) int(key string, min int) int {
	raw := p.c.Get(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, fmt.Sprintf("%q is not an integer", raw))
		return 0
	}
	if n < min {
		p.fail(key, fmt.Sprintf("must be >= %d, got %d", min, n))
	}
	return n
}

func (p *parser) bool(key string) bool {
	raw := p.c.Get(key)
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, fmt.Sprintf("%q is not a boolean", raw))
	}
	return b
}

func (p *parser) oneOf(key string, allowed ...string) string {
	v := strings.TrimSpace(p.c.Get(key))
	if !slices.Contains(allowed, v) {
		p.fail(key, fmt.Sprintf("%q is not one of %s", v, strings.Join(allowed, ", ")))
	}
	return v
}

func (p *parser) required(key string) string {
	v := strings.TrimSpace(p.c.Get(key))
	if v == "" {
		p.fail(key, "must not be empty")
	}
	return v
}
