package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var cached bool
	var stat bool
	var nameOnly bool
	var paths []string

	cmd := &cobra.Command{
		Use:   "diff [old [new]]",
		Short: "Show feature changes between trees",
		Long: "Without arguments, compares the staging area with the working tree.\n" +
			"With --cached, compares HEAD with the staging area. One revision is\n" +
			"compared with the working tree; two revisions with each other. Revisions\n" +
			"may be commit-ish or WORK_HEAD/STAGE_HEAD.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				oldID, newID, err := diffEndpoints(r, cached, args)
				if err != nil {
					return err
				}
				opts := diff.Options{Paths: trimPaths(paths), BucketsPerTier: r.Config.Thresholds().BucketsPerTier}
				out := cmd.OutOrStdout()

				if stat {
					c, err := diff.Count(ctx, r.Store, oldID, newID, opts)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s changed: %s added, %s removed, %s modified\n",
						humanize.Comma(int64(c.Total())), humanize.Comma(int64(c.Added)),
						humanize.Comma(int64(c.Removed)), humanize.Comma(int64(c.Modified)))
					return nil
				}

				for e, err := range diff.Trees(ctx, r.Store, oldID, newID, opts) {
					if err != nil {
						return err
					}
					fmt.Fprintln(out, diff.FormatEntry(e))
					if nameOnly || !e.IsFeature() {
						continue
					}
					if err := writeAttributeDiff(out, r.Store, e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "compare HEAD with the staging area")
	cmd.Flags().BoolVar(&stat, "stat", false, "print only change counts")
	cmd.Flags().BoolVar(&nameOnly, "name-only", false, "omit attribute-level changes")
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "restrict the diff to these paths")
	return cmd
}

func diffEndpoints(r *repo.Repo, cached bool, args []string) (object.ObjectID, object.ObjectID, error) {
	if cached {
		if len(args) > 0 {
			return object.NullID, object.NullID, fmt.Errorf("diff --cached takes no revisions")
		}
		head, err := r.HeadTree()
		if err != nil {
			return object.NullID, object.NullID, err
		}
		stage, err := r.StageTree()
		return head, stage, err
	}

	oldRev, newRev := repo.StageHeadRef, repo.WorkHeadRef
	switch len(args) {
	case 1:
		oldRev = args[0]
	case 2:
		oldRev, newRev = args[0], args[1]
	}
	oldID, err := r.ResolveTree(oldRev)
	if err != nil {
		return object.NullID, object.NullID, fmt.Errorf("resolve %s: %w", oldRev, err)
	}
	newID, err := r.ResolveTree(newRev)
	if err != nil {
		return object.NullID, object.NullID, fmt.Errorf("resolve %s: %w", newRev, err)
	}
	return oldID, newID, nil
}

func writeAttributeDiff(w io.Writer, store object.Store, e diff.Entry) error {
	var before, after *object.RevFeature
	var oldType, newType object.RevFeatureType
	var err error
	if e.Old != nil {
		f, err := object.ReadFeature(store, e.Old.ObjectID())
		if err != nil {
			return err
		}
		before = &f
		if oldType, err = object.ReadFeatureType(store, e.Old.MetadataID()); err != nil {
			return err
		}
	}
	if e.New != nil {
		f, err := object.ReadFeature(store, e.New.ObjectID())
		if err != nil {
			return err
		}
		after = &f
		if newType, err = object.ReadFeatureType(store, e.New.MetadataID()); err != nil {
			return err
		}
	}
	if e.Old == nil {
		oldType = newType
	}
	if e.New == nil {
		newType = oldType
	}
	_, err = io.WriteString(w, diff.FormatFeatureDiff(diff.Features(e.Path(), before, after, oldType, newType)))
	return err
}
