package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "skillradar",
		Short:         "Track the skills.sh leaderboard and report daily trends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(initCmd())
	root.AddCommand(collectCmd())
	root.AddCommand(trendsCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(snapshotsCmd())
	root.AddCommand(categoriesCmd())
	root.AddCommand(moversCmd())
	root.AddCommand(cleanupCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context())
		},
	}
}

func collectCmd() *cobra.Command {
	var (
		dryRun     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch the leaderboard once, store a snapshot and send the digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), dryRun, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without writing or notifying")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func trendsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show the diff between the two latest snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrends(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func historyCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history <skill>",
		Short: "Show the daily rank and installs of a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), args[0], days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "history window in days")
	return cmd
}

func snapshotsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max snapshots to show")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories [date]",
		Short: "Count skills per category on a day (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategories(cmd.Context(), optionalArg(args))
		},
	}
}

func moversCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "movers [date]",
		Short: "Show the biggest rank gains and losses on a day (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMovers(cmd.Context(), optionalArg(args), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "max entries per direction")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshots and history older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), days)
		},
	}

	cmd.Flags().IntVar(&days, "days", -1, "retention in days (default: from config)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
