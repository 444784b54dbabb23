package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kgas-labs/kgas/internal/quality"
)

var (
	assessMethod string
	assessFormat string
)

var assessCmd = &cobra.Command{
	Use:   "assess <ref>",
	Short: "Assess the composite quality of an artifact reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		qa, err := env.Assessor.Assess(ctx, args[0], assessMethod)
		if err != nil {
			return err
		}
		return emit(qa, assessFormat)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <ref>...",
	Short: "Batch quality report over artifact references",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Assessor.Report(ctx, args)
		if err != nil {
			return err
		}
		return emit(report, assessFormat)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessMethod, "method", quality.MethodAutomatic, "aggregation method (automatic|minimum|mean)")
	assessCmd.Flags().StringVarP(&assessFormat, "output", "o", "json", "output format (json|yaml)")
	reportCmd.Flags().StringVarP(&assessFormat, "output", "o", "json", "output format (json|yaml)")
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(reportCmd)
}
