package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var noFF, abort bool
	var message string

	cmd := &cobra.Command{
		Use:   "merge <rev> | merge --abort",
		Short: "Join another line of history into the current branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				out := cmd.OutOrStdout()
				if abort {
					if len(args) > 0 {
						return fmt.Errorf("merge --abort takes no arguments")
					}
					if err := r.MergeAbort(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "merge aborted")
					return nil
				}
				if len(args) != 1 {
					return fmt.Errorf("merge takes exactly one revision")
				}

				target, err := r.ResolveCommit(args[0])
				if err != nil {
					return err
				}
				res, err := r.Merge(ctx, target, repo.MergeOptions{Message: message, NoFastForward: noFF})
				if err != nil {
					return reportConflicts(out, err, "fix the conflicts, \"geograft add\" them and run \"geograft commit\"")
				}
				switch {
				case res.UpToDate:
					fmt.Fprintln(out, "already up to date")
				case res.FastForward:
					fmt.Fprintf(out, "fast-forward %s..%s\n", res.Ours.Short(), res.Commit.Short())
				default:
					fmt.Fprintf(out, "merged %s into %s as %s\n", res.Theirs.Short(), res.Ours.Short(), res.Commit.Short())
					s := res.Stats
					fmt.Fprintf(out, "%d unconflicted, %d identical, %d merged\n", s.Unconflicted, s.Identical, s.Merged)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noFF, "no-ff", false, "always create a merge commit")
	cmd.Flags().StringVarP(&message, "message", "m", "", "merge commit message")
	cmd.Flags().BoolVar(&abort, "abort", false, "abandon a conflicted merge and restore the pre-merge state")
	return cmd
}

// reportConflicts lists the paths of a *repo.ConflictsError before
// returning it.
func reportConflicts(out io.Writer, err error, hint string) error {
	var ce *repo.ConflictsError
	if !errors.As(err, &ce) {
		return err
	}
	for _, c := range ce.Conflicts {
		fmt.Fprintf(out, "CONFLICT %s\n", c.Path)
	}
	fmt.Fprintln(out, hint)
	return err
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [prefix]",
		Short: "List unresolved conflicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = trimPaths(args)[0]
			}
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				cs, err := r.Conflicts(prefix)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range cs {
					fmt.Fprintf(out, "%s\tancestor %s\tours %s\ttheirs %s\n", c.Path, c.Ancestor.Short(), c.Ours.Short(), c.Theirs.Short())
				}
				return nil
			})
		},
	}
}
