package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"palaver/internal/learning"
)

var (
	patternsWindow  int
	patternsPromote bool
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Distill candidate constructions from successful episodes",
	Long: `Clusters recent successful episodes by similarity, distills one
template per cluster, and scores each candidate with the MDL gate. By
default this only reports; --promote inserts the promotable candidates
into the catalog as learned constructions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		eps, err := a.episodes.GetRecent(cmd.Context(), patternsWindow)
		if err != nil {
			return err
		}

		promoter := learning.NewPromoter(learning.DefaultPromoterConfig(), a.similarity(), a.evaluator(), a.logger)
		candidates := promoter.Promote(eps, a.catalog.All())
		if len(candidates) == 0 {
			fmt.Println("no candidate patterns; need at least two similar successful episodes")
			return nil
		}

		promoted := 0
		for _, cand := range candidates {
			marker := " "
			if cand.Promotable {
				marker = "*"
			}
			fmt.Printf("%s %.3f  %-12s  %q  (%d episodes, risk %.2f)\n",
				marker, cand.Score.Final, cand.Pattern.Act,
				truncate(cand.Pattern.Content, 60),
				len(cand.Cluster), cand.Score.RiskPenalty)

			if patternsPromote && cand.Promotable {
				id := a.catalog.Add(cand.ToConstruction())
				fmt.Println("  promoted as", id)
				promoted++
			}
		}
		if !patternsPromote {
			fmt.Println("re-run with --promote to insert starred candidates")
			return nil
		}
		fmt.Printf("promoted %d of %d candidates\n", promoted, len(candidates))
		if promoted > 0 && a.cfg.Pipeline.CatalogPath != "" {
			if err := a.catalog.Save(a.cfg.Pipeline.CatalogPath); err != nil {
				return fmt.Errorf("saving catalog: %w", err)
			}
		}
		return nil
	},
}

func init() {
	patternsCmd.Flags().IntVar(&patternsWindow, "window", 200, "Recent episodes to consider")
	patternsCmd.Flags().BoolVar(&patternsPromote, "promote", false, "Insert promotable candidates into the catalog")
}
