package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/playrelay/internal/config"
	xlog "github.com/user/playrelay/internal/log"
)

var (
	cfgPath   string
	envFile   string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:          "playrelay",
	Short:        "Telegram relay that turns image + video link submissions into clean channel posts",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".playrelay", "config.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human-readable log output")
}

// loadConfig loads the configuration or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	xlog.Configure(xlog.Config{
		Level:  cfg.LogLevel,
		Output: os.Stderr,
		Pretty: logPretty || cfg.LogPretty,
	})
}
