package main

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var message string
	var del, force bool

	cmd := &cobra.Command{
		Use:   "tag [name [target]]",
		Short: "List, create or delete tags",
		Long:  "A message makes the tag annotated; otherwise the tag is a plain ref.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				out := cmd.OutOrStdout()
				switch {
				case del:
					if len(args) != 1 {
						return fmt.Errorf("tag -d takes exactly one tag name")
					}
					if err := r.DeleteTag(args[0]); err != nil {
						return err
					}
					fmt.Fprintf(out, "deleted tag %s\n", args[0])
					return nil
				case len(args) == 0:
					names, err := r.ListTags()
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(out, name)
					}
					return nil
				}

				target, err := resolveTarget(r, args, 1)
				if err != nil {
					return fmt.Errorf("cannot resolve tag target: %w", err)
				}
				id, err := r.CreateTag(args[0], target, repo.TagOptions{Message: message, Force: force})
				if err != nil {
					return err
				}
				if message != "" {
					fmt.Fprintf(out, "tagged %s as %s (tag object %s)\n", target.Short(), args[0], id.Short())
				} else {
					fmt.Fprintf(out, "tagged %s as %s\n", target.Short(), args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "create an annotated tag with this message")
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id|rev>",
		Short: "Print the contents of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				id, err := object.ParseID(args[0])
				if err != nil {
					if id, err = r.ResolveCommit(args[0]); err != nil {
						return fmt.Errorf("not an object id or revision: %s", args[0])
					}
				}
				obj, err := r.Store.Get(id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), object.FormatText(obj))
				return nil
			})
		},
	}
}
