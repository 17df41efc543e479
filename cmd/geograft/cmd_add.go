package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [path...]",
		Short: "Stage working tree changes",
		Long:  "Stages the given paths, or everything when none are given. Staging a\nconflicted path marks its conflict resolved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := trimPaths(args)
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				n, err := r.Add(ctx, paths...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "staged %s %s\n", humanize.Comma(int64(n)), plural(n, "feature", "features"))
				return nil
			})
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove working tree features that were never staged",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = trimPaths(args)[0]
			}
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				n, err := r.Clean(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s untracked %s\n", humanize.Comma(int64(n)), plural(n, "feature", "features"))
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var hard bool

	cmd := &cobra.Command{
		Use:   "reset [path...] | reset --hard [rev]",
		Short: "Unstage changes, or move HEAD and discard local changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				if hard {
					if len(args) > 1 {
						return fmt.Errorf("reset --hard takes at most one revision")
					}
					target, err := resolveTarget(r, args, 0)
					if err != nil {
						return err
					}
					if err := r.ResetHard(ctx, target); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", target.Short())
					return nil
				}
				n, err := r.Reset(ctx, trimPaths(args)...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unstaged %s %s\n", humanize.Comma(int64(n)), plural(n, "feature", "features"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "reset HEAD, the staging area and the working tree")
	return cmd
}

func trimPaths(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, strings.Trim(a, "/"))
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
