package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rankLimit int

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Show constructions ranked by feedback score",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		top, err := a.stats.TopRated(cmd.Context(), rankLimit)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			fmt.Println("no feedback aggregated yet; run `palaver aggregate` after some turns")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONSTRUCTION\tUSES\tEXPLICIT\tIMPLICIT\tSCORE\tADJUSTMENT")
		for _, st := range top {
			template := st.ConstructionID
			if cons, ok := a.catalog.Get(st.ConstructionID); ok {
				template = truncate(cons.Form.Template, 40)
			}
			fmt.Fprintf(w, "%s\t%d\t+%d/-%d\t+%d/-%d\t%.3f\t%.3f\n",
				template, st.TotalUses,
				st.ExplicitPos, st.ExplicitNeg,
				st.ImplicitPos, st.ImplicitNeg,
				a.scorer.FeedbackMean(st),
				a.scorer.Adjustment(st))
		}
		return w.Flush()
	},
}

// truncate caps s at n runes with an ellipsis, never splitting a multi-byte
// rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func init() {
	rankCmd.Flags().IntVar(&rankLimit, "limit", 20, "Number of constructions to show")
}
