package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kgas-labs/kgas/internal/calibration"
)

var (
	calibrateEvidence    string
	calibrateGroundTruth float64
	calibrateFormat      string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <contextual> <bayesian>",
	Short: "Reconcile a contextual and a Bayesian confidence estimate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextual, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return eris.Wrap(err, "parse contextual estimate")
		}
		bayesian, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return eris.Wrap(err, "parse bayesian estimate")
		}

		protocol := calibration.NewProtocol(cfg.Calibration)
		res := protocol.Calibrate(contextual, bayesian, calibrateEvidence)

		var groundTruth *float64
		if cmd.Flags().Changed("ground-truth") {
			groundTruth = &calibrateGroundTruth
		}
		out := struct {
			calibration.Result
			MutualConsistency float64 `json:"mutual_consistency"`
		}{
			Result:            res,
			MutualConsistency: protocol.MutualConsistency(res.Contextual, res.Bayesian, groundTruth),
		}
		return emit(out, calibrateFormat)
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateEvidence, "evidence", "", "evidence text used for marker-density weighting")
	calibrateCmd.Flags().Float64Var(&calibrateGroundTruth, "ground-truth", 0, "known outcome for consistency scoring")
	calibrateCmd.Flags().StringVarP(&calibrateFormat, "output", "o", "json", "output format (json|yaml)")
	rootCmd.AddCommand(calibrateCmd)
}
