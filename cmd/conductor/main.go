package main

import (
	"fmt"
	"os"

	"conductor/internal/config"
	"conductor/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor - decision coaching turn orchestrator",
	Long: `conductor answers conversational turns about a decision graph.

Each turn is routed either straight to a tool (run analysis, generate brief,
draft a graph) or through a language model that may call those tools. Remote
analysis calls are retried once within the turn budget, and repeated turns
with the same client_turn_id are answered from the idempotency cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := cfg.Logging.ToLogging()
		if verbose {
			logCfg.DebugMode = true
		}
		logger, err = logging.Initialize(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "conductor.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(phrasesCmd)
	rootCmd.AddCommand(tracesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
