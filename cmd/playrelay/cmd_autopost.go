package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/autopost"
	"github.com/user/playrelay/internal/link"
	"github.com/user/playrelay/internal/telegram"
	"github.com/user/playrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(autopostCmd)
}

// discardSink drops inbound events; one-off commands never receive updates.
type discardSink struct{}

func (discardSink) HandleInbound(context.Context, *types.InboundEvent) error { return nil }

var autopostCmd = &cobra.Command{
	Use:   "autopost <destination>",
	Short: "Publish the next queued item for a destination now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Autopost.ContentRoot == "" {
			return fmt.Errorf("no content root configured (CONTENT_ROOT)")
		}

		registry := cfg.Registry()
		dest, ok := registry.Get(types.DestinationID(args[0]))
		if !ok {
			return fmt.Errorf("unknown destination %q", args[0])
		}

		adapter, err := telegram.New(cfg.Telegram.Token, discardSink{}, telegram.Options{})
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		engine := newEngine(cfg, adapter, registry)
		poster := autopost.NewPoster(cfg.Autopost.ContentRoot, engine, link.New(cfg.Player.URL))

		res, err := poster.Run(cmd.Context(), dest.ID)
		switch {
		case errors.Is(err, autopost.ErrNoContent):
			fmt.Fprintf(os.Stdout, "Nothing queued for %s.\n", dest.Name)
			return nil
		case res.Item.TextPath == "" && err != nil:
			return err
		}

		if res.Attempt.OK() {
			fmt.Fprintf(os.Stdout, "Posted %s to %s.\n", filepath.Base(res.Item.TextPath), dest.Name)
		} else {
			fmt.Fprintf(os.Stdout, "Failed to post %s to %s: %v\n", filepath.Base(res.Item.TextPath), dest.Name, res.Attempt.Err)
		}
		for _, a := range res.Archived {
			fmt.Fprintf(os.Stdout, "Archived %s\n", a)
		}
		return err
	},
}
