package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kgas-labs/kgas/internal/store"
)

var (
	opsToolID string
	opsSince  string
	opsUntil  string
	opsLimit  int
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List recorded operations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.OperationFilter{ToolID: opsToolID, Limit: opsLimit}
		if opsSince != "" {
			t, err := time.Parse(time.RFC3339, opsSince)
			if err != nil {
				return eris.Wrap(err, "parse --since")
			}
			filter.Since = t
		}
		if opsUntil != "" {
			t, err := time.Parse(time.RFC3339, opsUntil)
			if err != nil {
				return eris.Wrap(err, "parse --until")
			}
			filter.Until = t
		}

		recs, err := env.Tracker.QueryOperations(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

var opsChainCmd = &cobra.Command{
	Use:   "chain <operation-id>",
	Short: "Show the call chain of an operation, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		chain, err := env.Tracker.OperationChain(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(chain)
	},
}

func init() {
	opsCmd.Flags().StringVar(&opsToolID, "tool", "", "filter by tool id")
	opsCmd.Flags().StringVar(&opsSince, "since", "", "RFC3339 lower bound on creation time")
	opsCmd.Flags().StringVar(&opsUntil, "until", "", "RFC3339 upper bound on creation time")
	opsCmd.Flags().IntVar(&opsLimit, "limit", 100, "maximum records returned")
	opsCmd.AddCommand(opsChainCmd)
	rootCmd.AddCommand(opsCmd)
}
