package main

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

const rebaseHint = "fix the conflicts, \"geograft add\" them and run \"geograft rebase --continue\""

func newRebaseCmd() *cobra.Command {
	var onto, message string
	var squash, cont, skip, abort bool

	cmd := &cobra.Command{
		Use:   "rebase <upstream> | rebase --continue | --skip | --abort",
		Short: "Replay the current branch on top of another commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				out := cmd.OutOrStdout()
				var (
					res *repo.RebaseResult
					err error
				)
				switch {
				case cont:
					res, err = r.RebaseContinue(ctx)
				case skip:
					res, err = r.RebaseSkip(ctx)
				case abort:
					if err := r.RebaseAbort(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "rebase aborted")
					return nil
				default:
					if len(args) != 1 {
						return fmt.Errorf("rebase takes exactly one upstream revision")
					}
					opts := repo.RebaseOptions{Squash: squash, SquashMessage: message}
					if opts.Upstream, err = r.ResolveCommit(args[0]); err != nil {
						return err
					}
					if onto != "" {
						if opts.Onto, err = r.ResolveCommit(onto); err != nil {
							return err
						}
					}
					res, err = r.Rebase(ctx, opts)
				}
				if err != nil {
					return reportConflicts(out, err, rebaseHint)
				}

				switch {
				case res.NoOp:
					fmt.Fprintln(out, "current branch is up to date")
				case res.FastForward:
					fmt.Fprintf(out, "fast-forwarded to %s\n", res.NewHead.Short())
				default:
					fmt.Fprintf(out, "replayed %d %s, HEAD is now at %s\n", res.Replayed, plural(res.Replayed, "commit", "commits"), res.NewHead.Short())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&onto, "onto", "", "graft the replayed commits onto this commit instead of upstream")
	cmd.Flags().BoolVar(&squash, "squash", false, "collapse the replayed commits into one")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message of the squashed commit")
	cmd.Flags().BoolVar(&cont, "continue", false, "resume after resolving conflicts")
	cmd.Flags().BoolVar(&skip, "skip", false, "drop the paused commit and resume")
	cmd.Flags().BoolVar(&abort, "abort", false, "restore the branch as it was before the rebase")
	cmd.MarkFlagsMutuallyExclusive("continue", "skip", "abort")
	return cmd
}
