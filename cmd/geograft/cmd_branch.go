package main

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var del bool

	cmd := &cobra.Command{
		Use:   "branch [name [start]]",
		Short: "List, create or delete branches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				out := cmd.OutOrStdout()
				if del {
					if len(args) != 1 {
						return fmt.Errorf("branch -d takes exactly one branch name")
					}
					if err := r.DeleteBranch(args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "deleted branch %s\n", args[0])
					return nil
				}

				if len(args) == 0 {
					names, err := r.ListBranches()
					if err != nil {
						return err
					}
					current, err := r.CurrentBranch()
					if err != nil {
						return err
					}
					for _, name := range names {
						marker := " "
						if name == current {
							marker = "*"
						}
						fmt.Fprintf(out, "%s %s\n", marker, name)
					}
					return nil
				}

				start, err := resolveTarget(r, args, 1)
				if err != nil {
					return fmt.Errorf("cannot resolve start point: %w", err)
				}
				return r.CreateBranch(args[0], start)
			})
		},
	}

	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a branch")
	return cmd
}

func newCheckoutCmd() *cobra.Command {
	var newBranch bool

	cmd := &cobra.Command{
		Use:   "checkout <branch|rev>",
		Short: "Switch branches or detach HEAD at a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				if newBranch {
					head, err := r.ResolveCommit(repo.HeadRef)
					if err != nil {
						return err
					}
					if err := r.CreateBranch(target, head); err != nil {
						return err
					}
				}
				if err := r.Checkout(ctx, target); err != nil {
					return err
				}
				branch, err := r.CurrentBranch()
				if err != nil {
					return err
				}
				if branch == "" {
					head, err := r.ResolveCommit(repo.HeadRef)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", head.Short())
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "switched to branch %s\n", branch)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&newBranch, "branch", "b", false, "create the branch at HEAD before switching")
	return cmd
}
