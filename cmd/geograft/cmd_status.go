package main

import (
	"context"
	"fmt"
	"io"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

var statusMarkers = map[diff.ChangeType]string{
	diff.Added:    "+",
	diff.Removed:  "-",
	diff.Modified: "~",
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged, unstaged and conflicted features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				st, err := r.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				switch {
				case st.Branch != "" && st.Head.IsNull():
					fmt.Fprintf(out, "on %s (no commits yet)\n", st.Branch)
				case st.Branch != "":
					fmt.Fprintf(out, "on %s\n", st.Branch)
				default:
					fmt.Fprintf(out, "HEAD detached at %s\n", st.Head.Short())
				}
				if st.Merging {
					fmt.Fprintln(out, "merge in progress (use \"geograft commit\" to conclude or \"geograft merge --abort\")")
				}
				if st.Rebasing {
					state, err := r.RebaseState()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "rebase %s (use \"geograft rebase --continue\", \"--skip\" or \"--abort\")\n", state)
				}

				if len(st.Conflicts) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "conflicts:")
					for _, c := range st.Conflicts {
						fmt.Fprintf(out, "  ! %s\n", c.Path)
					}
				}
				printEntries(out, "staged:", st.Staged)
				printEntries(out, "unstaged:", st.Unstaged)
				if st.IsClean() && !st.Merging && !st.Rebasing {
					fmt.Fprintln(out, "nothing to commit, working tree clean")
				}
				return nil
			})
		},
	}
}

func printEntries(out io.Writer, title string, entries []diff.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, title)
	for _, e := range entries {
		fmt.Fprintf(out, "  %s %s\n", statusMarkers[e.Type()], e.Path())
	}
}
