package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pevans/repocrawl/config"
	"github.com/pevans/repocrawl/store"
	"github.com/spf13/cobra"
)

var runsState string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded crawl runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("state") {
			cfg.State.DSN = runsState
		}
		if cfg.State.DSN == "" {
			return fmt.Errorf("no state database configured (use --state or REPOCRAWL_STATE_DSN)")
		}

		stateStore, err := store.NewStateStore(cfg.State.DSN)
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
		defer stateStore.Close()

		runs, err := stateStore.ListRuns()
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tRECORDS\tFAILURES\tSEED")
		for _, run := range runs {
			status := "unfinished"
			if run.IsFinished() {
				status = "finished"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				run.RunID,
				run.StartedAt.Local().Format(time.DateTime),
				status,
				run.Records,
				run.Failures,
				run.SeedURL,
			)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsState, "state", "", "SQLite state database (or REPOCRAWL_STATE_DSN)")
	rootCmd.AddCommand(runsCmd)
}
