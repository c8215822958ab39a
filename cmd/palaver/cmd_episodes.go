package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"palaver/internal/episode"
)

var (
	episodesLimit   int
	episodesSession string
	episodesJSON    bool
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List logged episodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var eps []*episode.EpisodeLog
		if episodesSession != "" {
			eps, err = a.episodes.GetBySession(cmd.Context(), episodesSession)
		} else {
			eps, err = a.episodes.GetRecent(cmd.Context(), episodesLimit)
		}
		if err != nil {
			return err
		}
		if len(eps) == 0 {
			fmt.Println("no episodes logged yet")
			return nil
		}

		if episodesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(eps)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tINTENT\tACT\tAPPROVAL\tOUTPUT")
		for _, ep := range eps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				ep.ID,
				ep.Timestamp.Format("01-02 15:04"),
				ep.IntentPrimary,
				ep.PrimaryAct(),
				ep.Approval,
				truncate(ep.OutputText, 50))
		}
		return w.Flush()
	},
}

func init() {
	episodesCmd.Flags().IntVar(&episodesLimit, "limit", 20, "Number of episodes to show")
	episodesCmd.Flags().StringVar(&episodesSession, "session", "", "Show one session's episodes in order")
	episodesCmd.Flags().BoolVar(&episodesJSON, "json", false, "Print full episodes as JSON")
}
