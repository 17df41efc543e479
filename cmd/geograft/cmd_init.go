package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/geograft/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var userName, userEmail string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty geograft repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globals.dir
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			cfg := repo.DefaultConfig()
			cfg.User.Name = userName
			cfg.User.Email = userEmail
			r, err := repo.Init(abs, &cfg, repo.WithLogger(newLogger(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty geograft repository in %s\n", r.Dir+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().StringVar(&userName, "user-name", "", "set user.name in the new repository")
	cmd.Flags().StringVar(&userEmail, "user-email", "", "set user.email in the new repository")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [key [value]]",
		Short: "Get or set repository configuration",
		Long: "With no arguments every key is listed. With a key its value is printed;\n" +
			"with a key and a value the value is stored in .geograft/config.toml.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(ctx context.Context, r *repo.Repo) error {
				out := cmd.OutOrStdout()
				switch len(args) {
				case 0:
					for _, key := range r.Config.Keys() {
						v, err := r.Config.Get(key)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "%s=%s\n", key, v)
					}
					return nil
				case 1:
					v, err := r.Config.Get(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(out, v)
					return nil
				default:
					return r.SetConfig(args[0], args[1])
				}
			})
		},
	}
}
