package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pcoscare/companion/internal/config"
)

var (
	verbose bool
	timeout time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chatprobe",
	Short: "Talk to the PCOS assessment chat and classifier from a terminal",
	Long: `chatprobe sends utterances to the assessment chat endpoint, streams the
reply as it arrives and can export the resulting transcript. It can also
submit an ultrasound image to the classifier.

Endpoints default to the same environment variables the API server reads
(CHAT_ENDPOINT, PREDICT_ENDPOINT); a .env file in the working directory is
loaded first.

Quick Start:
  chatprobe ask "I have irregular periods" "What should I track?"
  chatprobe ask --export transcript.yaml "Is acne related to PCOS?"
  chatprobe ultrasound scan.png`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			log.SetOutput(io.Discard)
		}
		_ = godotenv.Load()

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show internal log output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout for one command")
}
