package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/campfire/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Show or change settings in ~/.config/campfire/config.yaml.

Settings can also be overridden with CAMPFIRE_* environment variables,
for example CAMPFIRE_AUDIO_BACKEND=mpd.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configSetCmd represents the config set command
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", filepath.Join(config.GetConfigDir(), "config.yaml"))
	values := cfg.Values()
	for _, key := range config.Keys() {
		fmt.Fprintf(out, "%s = %v\n", key, values[key])
	}
	return nil
}
