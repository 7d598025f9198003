package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clickstream/api/tracker"
)

var rootCmd = &cobra.Command{
	Use:           "trackctl",
	Short:         "Collection agent for the clickstream API",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", "http://localhost:8080/api/v1/events", "Ingestion endpoint")
	rootCmd.PersistentFlags().String("state", ".trackctl.json", "File holding the persisted session id")
	rootCmd.PersistentFlags().Int("batch-size", tracker.DefaultBatchSize, "Maximum events per request")
	rootCmd.PersistentFlags().Duration("flush-interval", tracker.DefaultFlushInterval, "Periodic flush interval")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log every batch")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sessionCmd)
}

// agentConfig builds a tracker configuration from the persistent flags.
func agentConfig(cmd *cobra.Command) (tracker.Config, error) {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	state, _ := cmd.Flags().GetString("state")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	interval, _ := cmd.Flags().GetDuration("flush-interval")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if endpoint == "" {
		return tracker.Config{}, fmt.Errorf("--endpoint is required")
	}

	level := tracker.LogLevelWarn
	if verbose {
		level = tracker.LogLevelDebug
	}

	return tracker.Config{
		Endpoint:      endpoint,
		BatchSize:     batchSize,
		FlushInterval: interval,
		Storage:       tracker.NewFileStorage(state),
		Logger:        tracker.NewPrintLogger(level),
	}, nil
}
