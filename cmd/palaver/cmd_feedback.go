package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <episode-id> <up|down|neutral>",
	Short: "Attach explicit feedback to an episode",
	Long: `Records a thumbs up or down against a logged episode. Feedback is
accepted within the correction window after the turn; the next
aggregation pass folds it into the construction's score.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var score int
		switch args[1] {
		case "up", "+1", "+":
			score = 1
		case "down", "-1", "-":
			score = -1
		case "neutral", "0":
			score = 0
		default:
			return fmt.Errorf("feedback must be up, down, or neutral, got %q", args[1])
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.episodes.AttachExplicitFeedback(cmd.Context(), args[0], score); err != nil {
			return err
		}
		fmt.Println("feedback recorded for", args[0])
		return nil
	},
}
