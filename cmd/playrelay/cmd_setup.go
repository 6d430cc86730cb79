package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/config"
	"github.com/user/playrelay/internal/destination"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("playrelay setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token", cfg.Telegram.Token)
		cfg.Player.URL = prompt(scanner, "Player base URL (https)", cfg.Player.URL)
		cfg.Telegram.AdminID = prompt(scanner, "Admin user id", cfg.Telegram.AdminID)

		current := make([]string, 0, len(cfg.Destinations))
		for _, d := range cfg.Destinations {
			current = append(current, d.ID+":"+d.Name)
		}
		dests := prompt(scanner, "Destinations (id:name,...)", strings.Join(current, ","))
		if dests != "" {
			cfg.Destinations = cfg.Destinations[:0]
			for _, d := range destination.Parse(dests).All() {
				cfg.Destinations = append(cfg.Destinations, config.DestinationConfig{ID: string(d.ID), Name: d.Name})
			}
		}

		cfg.Telegram.WebhookURL = prompt(scanner, "Webhook URL (empty for long polling)", cfg.Telegram.WebhookURL)
		cfg.Autopost.ContentRoot = prompt(scanner, "Autopost content root (optional)", cfg.Autopost.ContentRoot)

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
