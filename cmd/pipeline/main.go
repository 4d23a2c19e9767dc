// Command pipeline runs the ticket delivery workflow: plan a spec into
// tickets, code, test and review them, wait for a human approval and send
// the summary.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dpetrovic89/agentic-dev-pipeline/config"
	clierrors "github.com/dpetrovic89/agentic-dev-pipeline/errors"
	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
	"github.com/dpetrovic89/agentic-dev-pipeline/telemetry"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// app carries the streams and global flags shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	paths  config.Paths

	verbose   bool
	jsonOut   bool
	stateDir  string
	logDir    string
	store     string
	overrides []string

	logger *slog.Logger
	// exit is set by commands that finish with a run outcome.
	exit int
	// target names the run or server an error refers to.
	target clierrors.Target
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		paths:  config.Paths{ErrWriter: stderr},
		logger: slog.Default(),
	}
}

// execute runs the command line and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	defer telemetry.Shutdown(context.WithoutCancel(ctx))

	if err := root.ExecuteContext(ctx); err != nil {
		a.printError(err)
		return int(runner.ExitError)
	}
	return a.exit
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Plan, build, test and review a spec ticket by ticket",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
			return telemetry.Init(cmd.Context(), "pipeline", version)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.jsonOut, "json", false, "Print machine-readable JSON")
	flags.StringVar(&a.stateDir, "state-dir", "", "Directory for checkpoints and artifacts")
	flags.StringVar(&a.logDir, "log-dir", "", "Directory for the JSONL event log")
	flags.StringVar(&a.store, "store", "", "Checkpoint store: file, sqlite, redis or memory")
	flags.StringArrayVar(&a.overrides, "set", nil, "Override a config key (key=value, repeatable)")

	root.AddCommand(
		a.runCmd(),
		a.resumeCmd(),
		a.approveCmd(),
		a.statusCmd(),
		a.runsCmd(),
		a.listenCmd(),
		a.tokenCmd(),
		a.configCmd(),
	)
	return root
}

// flagValues collects the config keys set on the command line.
func (a *app) flagValues(extra map[string]string) (map[string]string, error) {
	values := map[string]string{
		config.KeyStateDir:        a.stateDir,
		config.KeyLogDir:          a.logDir,
		config.KeyCheckpointStore: a.store,
	}
	for _, kv := range a.overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: --set %q: want key=value", config.ErrInvalidSetting, kv)
		}
		key = strings.TrimSpace(key)
		if !config.IsKnown(key) {
			return nil, fmt.Errorf("%w: %s", config.ErrUnknownKey, key)
		}
		values[key] = value
	}
	for k, v := range extra {
		values[k] = v
	}
	return values, nil
}

func (a *app) settings(extra map[string]string) (config.Settings, error) {
	flags, err := a.flagValues(extra)
	if err != nil {
		return config.Settings{}, err
	}
	return config.NewResolver(a.paths).Resolve(flags).Settings()
}

// services resolves settings and connects the configured backends. The
// caller closes the result.
func (a *app) services(ctx context.Context, extra map[string]string) (*runner.Services, error) {
	s, err := a.settings(extra)
	if err != nil {
		return nil, err
	}
	return runner.NewServices(ctx, s, a.logger)
}

func (a *app) printError(err error) {
	err = clierrors.ForCLI(err, a.target)
	fmt.Fprintf(a.stderr, "%s %s\n", failStyle.Render(iconFail), err)
}
