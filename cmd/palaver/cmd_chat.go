package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"palaver/internal/tui"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Opens the terminal chat interface. Alongside the UI, the catalog
watcher hot-reloads construction edits and the feedback aggregator runs
periodically so ratings given with /good and /bad influence selection
within the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := chatSessionID
		if sessionID == "" {
			sessionID = fmt.Sprintf("sess_%d", time.Now().UnixNano())
		}

		g, gctx := errgroup.WithContext(ctx)
		if a.watcher != nil {
			g.Go(func() error {
				a.watcher.Run(gctx)
				return nil
			})
		}
		g.Go(func() error {
			a.aggregator.RunPeriodic(gctx, time.Minute)
			return nil
		})
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, sessionID, a.pipeline, a.episodes)
		})
		return g.Wait()
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume or name a session")
}
