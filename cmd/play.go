package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/campfire/internal/tui"
)

var playHeadless bool

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [album-url...]",
	Short: "Play the queue in the terminal UI",
	Long: `Restore the saved queue, enqueue the given album or track pages and
start playback in the terminal UI.

The TUI includes:
- Now playing display with title, artist and album
- Progress bar showing playback position
- The queue, the discover results and recently played tracks

Keys: space play/pause, n next, p previous, s shuffle, d more discover
results, a add the next discover result, arrows seek, +/- volume, q quit.

With --headless the session plays through the queue without a UI until
interrupted; logs go to stderr.`,
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().BoolVar(&playHeadless, "headless", false, "Play without the terminal UI")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(logFile, logLevel, !playHeadless)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if playHeadless {
		logger.Info().Str("version", version).Msg("Starting campfire")
		return a.runSession(args, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
	}

	return a.runSession(args, func(ctx context.Context) error {
		ui := tui.New(tui.DefaultConfig(), a.session, logger)
		if err := ui.Run(ctx); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})
}
