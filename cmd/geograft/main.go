package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "geograft",
		Short:         "Version control for geospatial feature data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "log operation details to stderr")
	root.PersistentFlags().BoolVar(&globals.stats, "stats", false, "print object store counters after the command")
	root.PersistentFlags().StringVarP(&globals.dir, "dir", "C", ".", "run as if started in this directory")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newLayerCmd())
	root.AddCommand(newFeatureCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newTagCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newRebaseCmd())
	root.AddCommand(newConflictsCmd())
	root.AddCommand(newCatCmd())
	root.AddCommand(newReflogCmd())
	root.AddCommand(newGcCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newRebuildGraphCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "geograft "+version)
		},
	}
}
