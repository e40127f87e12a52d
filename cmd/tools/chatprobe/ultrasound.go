package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pcoscare/companion/internal/service/analysis"
	"github.com/pcoscare/companion/internal/upstream"
)

var predictEndpoint string

var ultrasoundCmd = &cobra.Command{
	Use:   "ultrasound <image>",
	Short: "Classify an ultrasound image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()

		endpoint := predictEndpoint
		if endpoint == "" {
			endpoint = cfg.Upstream.PredictURL
		}
		svc := analysis.NewService(endpoint, cfg.Analysis.ConfidenceThreshold, upstream.NewClient(cfg.Upstream.Timeout))

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		prediction, err := svc.Analyze(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), renderPrediction(prediction))
		return nil
	},
}

func init() {
	ultrasoundCmd.Flags().StringVar(&predictEndpoint, "endpoint", "", "Classifier endpoint URL (default: PREDICT_ENDPOINT)")
	rootCmd.AddCommand(ultrasoundCmd)
}
