package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/autopost"
)

func init() {
	rootCmd.AddCommand(destinationsCmd)
}

var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "List configured destinations and their queued autopost content",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry := cfg.Registry()
		if registry.Len() == 0 {
			fmt.Println("No destinations configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tQUEUED TEXTS\tQUEUED IMAGES")
		for _, d := range registry.All() {
			texts, images := "-", "-"
			if cfg.Autopost.ContentRoot != "" {
				if inv, err := autopost.Scan(autopost.ContentDir(cfg.Autopost.ContentRoot, d.ID)); err == nil {
					texts = fmt.Sprint(len(inv.Texts))
					images = fmt.Sprint(len(inv.Images))
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, texts, images)
		}
		return w.Flush()
	},
}
