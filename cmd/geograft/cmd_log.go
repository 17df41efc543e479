package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev]",
		Short: "Show first-parent commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				start, err := resolveTarget(r, args, 0)
				if err != nil {
					return fmt.Errorf("cannot resolve start of history: %w", err)
				}
				decorations, err := logDecorations(r)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				n := 0
				for c, err := range r.Log(ctx, start) {
					if err != nil {
						return err
					}
					if limit > 0 && n >= limit {
						break
					}
					n++

					decoration := ""
					if names := decorations[c.ID()]; len(names) > 0 {
						decoration = " (" + strings.Join(names, ", ") + ")"
					}
					if oneline {
						fmt.Fprintf(out, "%s%s %s\n", c.ID().Short(), decoration, c.Subject())
						continue
					}
					fmt.Fprintf(out, "commit %s%s\n", c.ID(), decoration)
					if c.NumParents() > 1 {
						parents := make([]string, 0, c.NumParents())
						for _, p := range c.Parents() {
							parents = append(parents, p.Short())
						}
						fmt.Fprintf(out, "Merge: %s\n", strings.Join(parents, " "))
					}
					author := c.Author()
					fmt.Fprintf(out, "Author: %s <%s>\n", author.Name, author.Email)
					fmt.Fprintf(out, "Date:   %s (%s)\n", author.Time().Format("2006-01-02 15:04:05 -0700"), humanize.Time(author.Time()))
					fmt.Fprintln(out)
					for _, line := range strings.Split(c.Message(), "\n") {
						fmt.Fprintf(out, "    %s\n", line)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "show one line per commit")
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits shown")
	return cmd
}

// logDecorations maps commit ids to the branch and tag names pointing at
// them.
func logDecorations(r *repo.Repo) (map[object.ObjectID][]string, error) {
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}
	out := make(map[object.ObjectID][]string)
	for name, id := range refs {
		if branch, ok := strings.CutPrefix(name, "heads/"); ok {
			out[id] = append(out[id], branch)
			continue
		}
		if tag, ok := strings.CutPrefix(name, "tags/"); ok {
			if t, err := object.ReadTag(r.Store, id); err == nil {
				id = t.CommitID()
			}
			out[id] = append(out[id], "tag: "+tag)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out, nil
}
