package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect autopost schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List autopost schedules and their next run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		schedules := cfg.Schedules()
		if len(schedules) == 0 {
			fmt.Println("No schedules configured.")
			return nil
		}
		registry := cfg.Registry()
		now := time.Now()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DESTINATION\tSCHEDULE\tNEXT RUN")
		for _, s := range schedules {
			next := "invalid"
			if t, err := scheduler.Next(s.Expr, now); err == nil {
				next = t.Format("2006-01-02 15:04:05")
			}
			if _, ok := registry.Get(s.Destination); !ok {
				next = "unknown destination"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Destination, s.Expr, next)
		}
		return w.Flush()
	},
}
