package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newGcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete objects no ref, tree or pending operation can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				s, err := r.GC(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reachable %s, pruned %s\n", humanize.Comma(int64(s.Reachable)), humanize.Comma(int64(s.Pruned)))
				return nil
			})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the HEAD, staging and working trees for damage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				n, err := r.Verify(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "verified %d %s\n", n, plural(n, "tree", "trees"))
				return nil
			})
		},
	}
}

func newRebuildGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-graph",
		Short: "Discard and rebuild the commit graph index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				n, err := r.RebuildGraph(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %s %s\n", humanize.Comma(int64(n)), plural(n, "commit", "commits"))
				return nil
			})
		},
	}
}

func newReflogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show the update history of a ref",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				entries, err := r.ReadReflog(ref, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					when := humanize.Time(time.Unix(e.Timestamp, 0))
					fmt.Fprintf(out, "%s %s -> %s %s (%s)\n", e.Ref, e.OldID.Short(), e.NewID.Short(), e.Reason, when)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of entries shown")
	return cmd
}
