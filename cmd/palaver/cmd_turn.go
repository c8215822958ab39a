package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"palaver/internal/dialogue"
)

var (
	turnSessionID string
	turnJSON      bool
)

var turnCmd = &cobra.Command{
	Use:   "turn [text...]",
	Short: "Process one turn and print the response",
	Long: `Runs a single message through the full pipeline and prints the
response. With --json the complete turn trace is printed instead: the
situation, plan, risk assessment, approval, and episode id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := turnSessionID
		if sessionID == "" {
			sessionID = "cli"
		}

		result, err := a.pipeline.Process(cmd.Context(), dialogue.TurnInput{
			Text:      strings.Join(args, " "),
			SessionID: sessionID,
		})
		if err != nil {
			// The response may still exist; report the logging failure but
			// keep going.
			fmt.Fprintln(os.Stderr, "warning:", err)
		}
		if result == nil {
			return fmt.Errorf("no result produced")
		}

		if turnJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		fmt.Println(result.Output)
		if result.Episode != nil {
			fmt.Fprintln(os.Stderr, "episode:", result.Episode.ID)
		}
		return nil
	},
}

func init() {
	turnCmd.Flags().StringVar(&turnSessionID, "session", "", "Session id (default: cli)")
	turnCmd.Flags().BoolVar(&turnJSON, "json", false, "Print the full turn trace as JSON")
}
