package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newLayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layer",
		Short: "Create or remove feature trees in the working tree",
	}
	cmd.AddCommand(newLayerCreateCmd())
	cmd.AddCommand(newLayerRmCmd())
	return cmd
}

func newLayerCreateCmd() *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "create <path> <name:type>...",
		Short: "Create a feature tree with a feature type",
		Long: "Attribute types are bool, int, float, string, bytes, time and geometry.\n" +
			"A trailing ? makes an attribute nillable; geometry attributes may name\n" +
			"their CRS, e.g. geom:geometry(EPSG:4326).",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.Trim(args[0], "/")
			descriptors := make([]object.AttributeDescriptor, 0, len(args)-1)
			for _, a := range args[1:] {
				d, err := parseDescriptor(a)
				if err != nil {
					return err
				}
				descriptors = append(descriptors, d)
			}
			name := typeName
			if name == "" {
				name = object.NodeFromPath(path)
			}
			ft, err := object.NewFeatureType(name, descriptors...)
			if err != nil {
				return err
			}

			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				if err := r.CreateTree(ctx, path, ft); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created layer %s (feature type %s %s)\n", path, ft.Name(), ft.ID().Short())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type-name", "", "feature type name (defaults to the last path segment)")
	return cmd
}

func newLayerRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a feature tree and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				return r.RemoveTree(ctx, strings.Trim(args[0], "/"))
			})
		},
	}
}
