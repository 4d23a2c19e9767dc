package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpetrovic89/agentic-dev-pipeline/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write configuration",
		Long: `Read and write configuration.

Values resolve in this order, later winning: built-in defaults, the global
file (~/.config/agentic-pipeline/config.yaml), .pipeline.yaml in the git
root, PIPELINE_* environment variables, then flags.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print a resolved value and where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsKnown(key) {
				return fmt.Errorf("%w: %s", config.ErrUnknownKey, key)
			}
			flags, err := a.flagValues(nil)
			if err != nil {
				return err
			}
			value, src := config.NewResolver(a.paths).Resolve(flags).GetWithSource(key)
			fmt.Fprintf(a.stdout, "%s %s\n", displayValue(key, value), mutedStyle.Render("("+string(src)+")"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every resolved value",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			flags, err := a.flagValues(nil)
			if err != nil {
				return err
			}
			resolved := config.NewResolver(a.paths).Resolve(flags)
			if a.jsonOut {
				out := resolved.All()
				for k, v := range out {
					out[k] = displayValue(k, v)
				}
				return writeJSON(a.stdout, out)
			}
			for _, key := range config.Keys() {
				value, src := resolved.GetWithSource(key)
				fmt.Fprintf(a.stdout, "%s = %s %s\n",
					keyStyle.Render(key), displayValue(key, value), mutedStyle.Render("("+string(src)+")"))
			}
			return nil
		},
	})

	var scope string
	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write a value to the global or local config file",
		Long: `Write a value to the global or local config file.

An empty VALUE removes the key. Secrets can only be written to the global
file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			r := config.NewResolver(a.paths)
			if err := r.Save(config.Scope(scope), args[0], args[1]); err != nil {
				return err
			}
			path := r.GlobalPath()
			if config.Scope(scope) == config.ScopeLocal {
				path = r.LocalPath()
			}
			fmt.Fprintf(a.stdout, "%s %s saved to %s\n", passStyle.Render(iconPass), args[0], path)
			return nil
		},
	}
	set.Flags().StringVar(&scope, "scope", string(config.ScopeGlobal), "File to write: global or local")
	cmd.AddCommand(set)

	return cmd
}

func displayValue(key, value string) string {
	if config.IsSecret(key) {
		return config.Mask(value)
	}
	return value
}
