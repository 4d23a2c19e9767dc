package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/llmkit/model"

	"github.com/dpetrovic89/agentic-dev-pipeline/agent"
	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
	"github.com/dpetrovic89/agentic-dev-pipeline/artifact"
	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/config"
	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/git"
	"github.com/dpetrovic89/agentic-dev-pipeline/notify"
	"github.com/dpetrovic89/agentic-dev-pipeline/pr"
	"github.com/dpetrovic89/agentic-dev-pipeline/prompt"
	"github.com/dpetrovic89/agentic-dev-pipeline/task"
	"github.com/dpetrovic89/agentic-dev-pipeline/workflow"
)

// Approval source kinds accepted by Services.ApprovalSource.
const (
	SourceRedis = "redis"
	SourceNATS  = "nats"
	SourceHTTP  = "http"
	SourceDir   = "dir"
)

// ErrUnknownSource is returned for an unsupported approval source kind.
var ErrUnknownSource = errors.New("unknown approval source")

// Services holds everything a Driver needs, built from settings.
type Services struct {
	Settings  config.Settings
	Repo      *git.Repo // nil when the repository is not needed or not found
	Store     checkpoint.Store
	Events    eventlog.Sink
	Artifacts *artifact.Manager
	Alerts    notify.Notifier
	PRs       pr.Provider // nil without a git token
	Workers   agent.Workers
	Logger    *slog.Logger

	closers []func() error
}

// NewServices validates settings and connects every configured backend.
// Offline runs use canned workers and never touch the network.
func NewServices(ctx context.Context, s config.Settings, logger *slog.Logger) (_ *Services, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := s.ValidateLive(); err != nil {
		return nil, err
	}

	svc := &Services{Settings: s, Logger: logger}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	if svc.Store, err = svc.openStore(ctx); err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	if svc.Events, err = svc.eventSink(); err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	svc.Artifacts = artifact.NewManager(artifact.Config{BaseDir: s.StateDir})
	if svc.Alerts, err = svc.notifier(); err != nil {
		return nil, fmt.Errorf("configure notifier: %w", err)
	}

	if s.OfflineMode {
		svc.Workers = agent.Offline()
		return svc, nil
	}

	if err := svc.openRepo(ctx); err != nil {
		return nil, err
	}
	if svc.Workers, err = svc.liveWorkers(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Close releases store and source connections.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// WorkflowConfig is the run bounds taken from settings.
func (s *Services) WorkflowConfig() workflow.Config {
	return workflow.Config{
		MaxTicketRetries:  s.Settings.MaxTicketRetries,
		MaxGraphLoops:     s.Settings.MaxGraphLoops,
		MaxParallelCoders: s.Settings.MaxParallelCoders,
		OfflineMode:       s.Settings.OfflineMode,
		MergeOnApproval:   s.Settings.MergeOnApproval,
	}
}

// Stages binds the workers to the workflow.
func (s *Services) Stages() (*workflow.Stages, error) {
	opts := []workflow.Option{
		workflow.WithEventSink(s.Events),
		workflow.WithLogger(s.Logger),
	}
	if s.PRs != nil {
		opts = append(opts, workflow.WithPRProvider(s.PRs))
	}
	return workflow.NewStages(s.WorkflowConfig(), s.Workers, opts...)
}

// Driver builds a Driver over the configured store, artifacts and alerts.
func (s *Services) Driver(opts ...Option) (*Driver, error) {
	stages, err := s.Stages()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithArtifacts(s.Artifacts),
		WithAlerts(s.Alerts),
		WithDriverLogger(s.Logger),
	}
	return NewDriver(stages, s.Store, append(base, opts...)...)
}

// ApprovalSource creates the approval source of the given kind.
func (s *Services) ApprovalSource(kind string) (approval.Source, error) {
	switch kind {
	case SourceRedis:
		src, err := approval.NewRedisSource(s.Settings.RedisURL, s.Settings.ApprovalChannel)
		if err != nil {
			return nil, err
		}
		src.Logger = s.Logger
		s.closers = append(s.closers, src.Close)
		return src, nil
	case SourceNATS:
		src, err := approval.NewNATSSource(s.Settings.NATSURL, s.Settings.ApprovalChannel, s.Settings.NATSToken)
		if err != nil {
			return nil, err
		}
		src.Logger = s.Logger
		s.closers = append(s.closers, src.Close)
		return src, nil
	case SourceHTTP:
		if s.Settings.ApprovalSecret == "" {
			return nil, fmt.Errorf("%w: %s", config.ErrMissingCredential, config.KeyApprovalSecret)
		}
		return &approval.HTTPSource{
			Addr:   s.Settings.ApprovalAddr,
			Tokens: s.TokenConfig(),
			Logger: s.Logger,
		}, nil
	case SourceDir:
		return &approval.DirSource{Dir: s.Settings.ApprovalDir, Logger: s.Logger}, nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s)", ErrUnknownSource, kind,
			strings.Join([]string{SourceRedis, SourceNATS, SourceHTTP, SourceDir}, ", "))
	}
}

// TokenConfig is the approval token configuration.
func (s *Services) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{Secret: []byte(s.Settings.ApprovalSecret)}
}

func (s *Services) openStore(ctx context.Context) (checkpoint.Store, error) {
	dir := s.Settings.StateDir
	switch s.Settings.CheckpointStore {
	case config.StoreMemory:
		return checkpoint.NewMemoryStore(), nil
	case config.StoreRedis:
		store, err := checkpoint.NewRedisStore(s.Settings.RedisURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case config.StoreSQLite:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		store, err := checkpoint.OpenSQLite(ctx, filepath.Join(dir, "checkpoints.db"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	default:
		return checkpoint.NewFileStore(filepath.Join(dir, "checkpoints"))
	}
}

func (s *Services) eventSink() (eventlog.Sink, error) {
	sinks := eventlog.MultiSink{eventlog.NewSlogSink(s.Logger)}
	if s.Settings.LogDir != "" {
		file, err := eventlog.NewFileSink(s.Settings.LogDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, file)
	}
	return sinks, nil
}

// notifier builds the delivery channel. Offline runs only log; live runs
// log every notification and deliver it to the configured channel.
func (s *Services) notifier() (notify.Notifier, error) {
	set := s.Settings
	logged := notify.NewLogNotifier(s.Logger)
	if set.OfflineMode {
		return logged, nil
	}

	var channel notify.Notifier
	switch set.Notifier {
	case config.NotifierSlack:
		slack, err := notify.NewSlackNotifier(set.SlackToken, set.SlackChannel)
		if err != nil {
			return nil, err
		}
		channel = slack
	case config.NotifierSlackWebhook:
		var opts []notify.SlackOption
		if set.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(set.SlackChannel))
		}
		channel = notify.NewSlackWebhookNotifier(set.SlackWebhookURL, opts...)
	case config.NotifierWebhook:
		channel = notify.NewWebhookNotifier(set.WebhookURL, nil)
	default:
		return logged, nil
	}

	multi := notify.NewMultiNotifier(logged, channel)
	multi.Logger = s.Logger
	return multi, nil
}

// openRepo opens the repository and, given a git token, the pull request
// provider for its remote. Both are required only by the local tester and
// merging; otherwise failures are logged and the run continues without
// them.
func (s *Services) openRepo(ctx context.Context) error {
	set := s.Settings
	needRepo := set.Tester == config.TesterLocal || set.MergeOnApproval

	repo, err := git.Open(ctx, set.RepoPath)
	if err != nil {
		if needRepo {
			return fmt.Errorf("open repository %s: %w", set.RepoPath, err)
		}
		s.Logger.Warn("repository unavailable, pull request statistics disabled", "path", set.RepoPath, "error", err)
		return nil
	}
	s.Repo = repo

	if set.GitToken == "" {
		return nil
	}
	remoteURL, err := repo.RemoteURL(ctx, set.Remote)
	if err == nil {
		s.PRs, err = pr.Open(remoteURL, set.GitToken)
	}
	if err != nil {
		if set.MergeOnApproval {
			return fmt.Errorf("pull request provider: %w", err)
		}
		s.Logger.Warn("pull request provider unavailable", "remote", set.Remote, "error", err)
	}
	return nil
}

func (s *Services) liveWorkers() (agent.Workers, error) {
	set := s.Settings

	var completer agent.Completer
	switch set.LLMBackend {
	case config.BackendClaudeCLI:
		completer = agent.NewClaudeCLICompleter(set.RepoPath)
	default:
		c, err := agent.NewAnthropicCompleter(set.AnthropicAPIKey)
		if err != nil {
			return agent.Workers{}, err
		}
		completer = c
	}

	var selectorOpts []model.SelectorOption
	if set.Model != "" {
		m, err := parseModel(set.Model)
		if err != nil {
			return agent.Workers{}, err
		}
		selectorOpts = append(selectorOpts, model.WithGlobalOverride(m))
	}

	llmOpts := []agent.LLMOption{
		agent.WithSelector(task.NewSelector(selectorOpts...)),
		agent.WithMaxDiffLines(set.MaxDiffLines),
		agent.WithLogger(s.Logger),
	}
	if s.PRs != nil {
		llmOpts = append(llmOpts, agent.WithPRProvider(s.PRs))
	}
	llm := agent.NewLLM(completer, prompt.NewLoader(set.RepoPath), llmOpts...)

	var tester agent.Tester
	if set.Tester == config.TesterLocal {
		tester = agent.NewLocalTester(s.Repo,
			agent.WithTestCommand(set.TestCommand),
			agent.WithRemote(set.Remote),
			agent.WithTesterLogger(s.Logger),
		)
	}

	channel := set.SlackChannel
	if channel == "" {
		channel = set.Notifier
	}
	notifier := agent.NewChannelNotifier(s.Alerts,
		agent.WithComposer(llm),
		agent.WithChannel(channel),
		agent.WithNotifierLogger(s.Logger),
	)
	return llm.Workers(tester, notifier), nil
}

// parseModel accepts a model family name for the global override.
func parseModel(name string) (model.ModelName, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "opus":
		return model.ModelOpus, nil
	case "sonnet":
		return model.ModelSonnet, nil
	case "haiku":
		return model.ModelHaiku, nil
	default:
		var none model.ModelName
		return none, fmt.Errorf("%w: %s: %q is not one of opus, sonnet, haiku", config.ErrInvalidSetting, config.KeyModel, name)
	}
}
