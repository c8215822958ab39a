// Command palaver is a simulated conversational agent: a deterministic
// decision pipeline over a construction catalog, an append-only episode
// log, and an offline learning loop that feeds episode outcomes back into
// construction ranking.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"palaver/internal/config"
	"palaver/internal/logging"
)

var (
	verbose    bool
	configPath string
	dataDir    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "palaver",
	Short: "A conversational agent that learns which phrasings work",
	Long: `palaver runs every turn through a staged decision pipeline:
situation building, dialogue act selection, message planning, risk
scoring, internal approval, construction selection, and self-critique.
Every turn is logged as an episode; the offline learning loop aggregates
feedback from the log and re-ranks the construction catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
			logger, err = zcfg.Build()
		}
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}

		return logging.Initialize(cfg.DataDir, logging.Options{
			Enabled:    cfg.Logging.FileLogging,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.palaver)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(patternsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
