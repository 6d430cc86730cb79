// Package config loads the relay configuration from defaults, an optional
// YAML file, a .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/playrelay/internal/destination"
	"github.com/user/playrelay/internal/types"
)

var (
	ErrMissingToken     = errors.New("bot token is required (BOT_TOKEN)")
	ErrInvalidPlayerURL = errors.New("player URL must be an absolute https URL (PLAYER_URL)")
)

// DestinationConfig is one configured broadcast target.
type DestinationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// ScheduleConfig binds a cron expression to a destination.
type ScheduleConfig struct {
	Destination string `yaml:"destination"`
	Cron        string `yaml:"cron"`
}

type Config struct {
	DataDir       string `yaml:"data_dir"`
	LogLevel      string `yaml:"log_level"`
	LogPretty     bool   `yaml:"log_pretty"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Telegram      struct {
		Token         string `yaml:"token" secret:"true"`
		AdminID       string `yaml:"admin_id"`
		WebhookURL    string `yaml:"webhook_url"`
		WebhookSecret string `yaml:"webhook_secret" secret:"true"`
	} `yaml:"telegram"`
	Player struct {
		URL        string `yaml:"url"`
		ButtonText string `yaml:"button_text"`
		Caption    string `yaml:"caption"`
	} `yaml:"player"`
	Publish struct {
		Delay             time.Duration `yaml:"delay"`
		MaxBroadcasts     int           `yaml:"max_broadcasts"`
		ClearAfterPublish bool          `yaml:"clear_after_publish"`
	} `yaml:"publish"`
	Session struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"session"`
	Destinations []DestinationConfig `yaml:"destinations"`
	Autopost     struct {
		ContentRoot string           `yaml:"content_root"`
		Schedules   []ScheduleConfig `yaml:"schedules"`
	} `yaml:"autopost"`
	HTTP struct {
		Port      int    `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
		RateLimit int    `yaml:"rate_limit"`
	} `yaml:"http"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".playrelay"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.Player.ButtonText = "▶️ Play Video"
	cfg.Player.Caption = " "
	cfg.Publish.Delay = 500 * time.Millisecond
	cfg.Publish.MaxBroadcasts = 2
	cfg.Session.TTL = time.Hour
	cfg.Session.SweepInterval = time.Hour
	cfg.HTTP.Port = 3000
	cfg.HTTP.RateLimit = 120
	return cfg
}

// Load reads path if it exists, then envFiles (".env" when none are given),
// then the environment. Missing files are not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. Variables with legacy
// aliases are listed primary first.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Telegram.Token, "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	str(&cfg.Telegram.AdminID, "ADMIN_USER_ID")
	str(&cfg.Telegram.WebhookURL, "WEBHOOK_URL")
	str(&cfg.Telegram.WebhookSecret, "WEBHOOK_SECRET")
	str(&cfg.Player.URL, "PLAYER_URL")
	str(&cfg.Autopost.ContentRoot, "CONTENT_ROOT")
	str(&cfg.HTTP.StaticDir, "STATIC_DIR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.DataDir, "PLAYRELAY_DATA_DIR")

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.HTTP.Port = port
	}

	if v, ok := lookup("DESTINATIONS"); ok && v != "" {
		cfg.Destinations = fromRegistry(destination.Parse(v))
	} else if v, ok := lookup("CHANNEL_IDS"); ok && v != "" {
		cfg.Destinations = fromRegistry(destination.ParseIDs(v))
	}

	if v, ok := lookup("AUTOPOST_SCHEDULES"); ok && v != "" {
		var out []ScheduleConfig
		for _, s := range destination.ParseSchedules(v) {
			out = append(out, ScheduleConfig{Destination: string(s.Destination), Cron: s.Expr})
		}
		cfg.Autopost.Schedules = out
	}
	return nil
}

func fromRegistry(r *destination.Registry) []DestinationConfig {
	all := r.All()
	out := make([]DestinationConfig, 0, len(all))
	for _, d := range all {
		out = append(out, DestinationConfig{ID: string(d.ID), Name: d.Name})
	}
	return out
}

// Validate reports the first configuration error that prevents startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if !isHTTPS(c.Player.URL) {
		return ErrInvalidPlayerURL
	}
	if c.Telegram.WebhookURL != "" && !isHTTPS(c.Telegram.WebhookURL) {
		return fmt.Errorf("webhook URL must be an absolute https URL: %q", c.Telegram.WebhookURL)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.HTTP.Port)
	}
	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session ttl and sweep_interval must be positive")
	}
	return nil
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

// Registry builds the destination registry in configured order.
func (c *Config) Registry() *destination.Registry {
	dests := make([]destination.Destination, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		dests = append(dests, destination.Destination{ID: types.DestinationID(d.ID), Name: name})
	}
	return destination.NewRegistry(dests...)
}

// Schedules returns the autopost schedules.
func (c *Config) Schedules() []destination.Schedule {
	out := make([]destination.Schedule, 0, len(c.Autopost.Schedules))
	for _, s := range c.Autopost.Schedules {
		out = append(out, destination.Schedule{Destination: types.DestinationID(s.Destination), Expr: s.Cron})
	}
	return out
}

// Listen is the HTTP listen address.
func (c *Config) Listen() string {
	return ":" + strconv.Itoa(c.HTTP.Port)
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a nested map keyed by YAML field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg flattened to dot-separated keys, with secrets
// masked when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue reads a single dot-separated key from the file at path.
func GetValue(path, key string) (any, error) {
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-separated key in the file at path. raw is parsed as
// a YAML scalar, so "16" becomes a number and "true" a boolean.
func SetValue(path, key, raw string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		v = raw
	}
	flat := Flatten(m)
	flat[key] = v
	data, err := yaml.Marshal(Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
