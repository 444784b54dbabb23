package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kgas-labs/kgas/internal/provenance"
)

var (
	lineageDirection string
	lineageDepth     int
	lineageFormat    string
	lineageGraph     bool
)

var lineageCmd = &cobra.Command{
	Use:   "lineage <ref>",
	Short: "Walk the provenance graph of an artifact reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var out any
		if lineageGraph {
			out, err = env.Tracker.ExportGraph(ctx, args[0])
		} else {
			out, err = env.Tracker.Lineage(ctx, args[0], lineageDirection, lineageDepth)
		}
		if err != nil {
			return err
		}

		return emit(out, lineageFormat)
	},
}

var derivedCmd = &cobra.Command{
	Use:   "derived <ref>",
	Short: "Compute provenance-derived confidence for a reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		confidence, err := env.Tracker.DerivedConfidence(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%.4f\n", confidence)
		return nil
	},
}

// emit writes v to stdout in the requested format.
func emit(v any, format string) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "marshal yaml")
		}
		_, err = os.Stdout.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}

func init() {
	lineageCmd.Flags().StringVar(&lineageDirection, "direction", provenance.DirectionBackward, "traversal direction (backward|forward)")
	lineageCmd.Flags().IntVar(&lineageDepth, "depth", 10, "maximum traversal depth")
	lineageCmd.Flags().StringVarP(&lineageFormat, "output", "o", "json", "output format (json|yaml)")
	lineageCmd.Flags().BoolVar(&lineageGraph, "graph", false, "export as node/edge graph")
	rootCmd.AddCommand(lineageCmd)
	rootCmd.AddCommand(derivedCmd)
}
