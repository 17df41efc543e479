package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/odvcencio/geograft/pkg/tree"
	"github.com/spf13/cobra"
)

func newFeatureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Insert, remove or show features",
	}
	cmd.AddCommand(newFeaturePutCmd())
	cmd.AddCommand(newFeatureRmCmd())
	cmd.AddCommand(newFeatureShowCmd())
	return cmd
}

func newFeaturePutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <path> <attr=value>...",
		Short: "Insert or replace a feature in the working tree",
		Long: "Values are parsed according to the layer's feature type: WKT for\n" +
			"geometries, RFC 3339 for times and hex for bytes. Unassigned attributes\n" +
			"are left empty.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.Trim(args[0], "/")
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				ft, err := r.FeatureTypeAt(ctx, object.ParentPath(path))
				if err != nil {
					return err
				}
				f, err := parseFeature(ft, args[1:])
				if err != nil {
					return err
				}
				if err := r.InsertFeature(ctx, path, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", f.ID().Short(), path)
				return nil
			})
		},
	}
}

func newFeatureRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove features from the working tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				for _, p := range args {
					if err := r.RemoveFeature(ctx, strings.Trim(p, "/")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newFeatureShowCmd() *cobra.Command {
	var rev string

	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print a feature's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.Trim(args[0], "/")
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				f, ft, err := r.Feature(ctx, rev, path)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "feature %s\n", f.ID())
				fmt.Fprintf(out, "type    %s %s\n", ft.Name(), ft.ID().Short())
				if b := f.Bounds(); b != nil {
					fmt.Fprintf(out, "bounds  %g %g %g %g\n", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
				}
				fmt.Fprintln(out)
				for i, d := range ft.Descriptors() {
					var v any
					if i < f.Len() {
						v = f.Value(i)
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", d.Name, d.Type, object.FormatValue(v))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rev, "rev", repo.WorkHeadRef, "revision to read from (a commit-ish, WORK_HEAD or STAGE_HEAD)")
	return cmd
}

func newLsCmd() *cobra.Command {
	var rev string
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List trees and features",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = strings.Trim(args[0], "/")
			}
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				root, err := r.ResolveTree(rev)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				depth := strings.Count(prefix, "/") + 1
				if prefix == "" {
					depth = 0
				}
				for ref, err := range tree.Walk(ctx, r.Store, root, tree.WalkOptions{IncludeTrees: true, Prefix: prefix}) {
					if err != nil {
						return err
					}
					p := ref.Path()
					if p == prefix {
						continue
					}
					if !recursive && strings.Count(p, "/") > depth {
						continue
					}
					kind := "feature"
					if ref.IsTree() {
						kind = "tree"
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", kind, ref.ObjectID().Short(), p)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rev, "rev", repo.WorkHeadRef, "revision to list (a commit-ish, WORK_HEAD or STAGE_HEAD)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list everything below the path")
	return cmd
}
