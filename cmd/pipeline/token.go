package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
	"github.com/dpetrovic89/agentic-dev-pipeline/config"
)

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage approval tokens",
	}

	var approver, runID string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue --approver NAME",
		Short: "Issue a signed approval token",
		Long: `Issue a signed approval token for "pipeline approve --remote".

The token is signed with approval_secret. --run scopes it to one run;
without it the token may approve any run until it expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings(nil)
			if err != nil {
				return err
			}
			if s.ApprovalSecret == "" {
				return fmt.Errorf("%w: %s", config.ErrMissingCredential, config.KeyApprovalSecret)
			}
			token, err := auth.IssueApprovalToken(auth.TokenConfig{
				Secret: []byte(s.ApprovalSecret),
				TTL:    ttl,
			}, approver, runID)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, token)
			return nil
		},
	}
	issue.Flags().StringVar(&approver, "approver", "", "Name the token approves as")
	issue.Flags().StringVar(&runID, "run", "", "Restrict the token to one run")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default 24h)")
	_ = issue.MarkFlagRequired("approver")

	cmd.AddCommand(issue)
	return cmd
}
