package main

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var allowEmpty bool

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record the staging area as a new commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				c, err := r.Commit(ctx, repo.CommitOptions{Message: message, AllowEmpty: allowEmpty})
				if err != nil {
					return err
				}
				branch, err := r.CurrentBranch()
				if err != nil {
					return err
				}
				if branch == "" {
					branch = "detached HEAD"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, c.ID().Short(), c.Subject())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (defaults to the stored merge message while merging)")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "commit even when nothing is staged")
	return cmd
}
