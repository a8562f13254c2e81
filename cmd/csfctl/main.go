// Command csfctl inspects the CSF controls demo stack without deploying it.
//
// Usage:
//
//	csfctl plan                      Print the declaration plan as YAML
//	csfctl graph -f mermaid          Draw the dependency graph
//	csfctl render stub-status        Print the rendered monitoring config
//	csfctl audit --region us-east-1  Check a deployed stack
//	csfctl version                   Show version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "csfctl",
		Short:         "Plan, draw and audit the CSF controls demo stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log lookups and decisions to stderr")

	rootCmd.AddCommand(
		newPlanCmd(),
		newGraphCmd(),
		newRenderCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "csfctl %s\n", getVersion())
		},
	}
}
