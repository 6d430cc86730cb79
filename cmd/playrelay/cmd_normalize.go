package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/link"
)

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.Flags().String("player", "", "player base URL (defaults to the configured one)")
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <url>",
	Short: "Print the playback URL derived from a video link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("player")
		if base == "" {
			base = loadConfig().Player.URL
		}
		if base == "" {
			return fmt.Errorf("no player URL configured (PLAYER_URL or --player)")
		}
		playback, err := link.New(base).Normalize(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", link.UserMessage(err), err)
		}
		fmt.Fprintln(os.Stdout, playback)
		return nil
	},
}
