package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/campfire/internal/console"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell [album-url...]",
	Short: "Control playback from a command prompt",
	Long: `Start a session and read commands from standard input.

Type "help" at the prompt for the command list. Discover and search
results are numbered; "add 3" enqueues the third one.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(logFile, logLevel, true)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.runSession(args, func(ctx context.Context) error {
		return console.New(a.session, cmd.OutOrStdout(), logger).Run(ctx, os.Stdin)
	})
}
