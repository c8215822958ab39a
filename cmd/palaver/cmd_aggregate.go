package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one feedback aggregation pass",
	Long: `Scans episodes logged since the last watermark, folds their
feedback into per-construction statistics, and advances the watermark.
Safe to run repeatedly; each episode is counted exactly once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.aggregator.Aggregate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("consumed %d episodes, updated %d constructions, watermark %d\n",
			result.EpisodesConsumed, result.ConstructionsUpdated, result.Watermark)
		return nil
	},
}
