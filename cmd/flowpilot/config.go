package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	cli "github.com/urfave/cli/v3"
)

// Config holds flowpilot runtime configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr    string        `json:"listen_addr"`
	DataDir       string        `json:"data_dir"`
	DBPath        string        `json:"db_path"`
	LogLevel      string        `json:"log_level"`
	Debug         bool          `json:"debug"`
	DownloadPath  string        `json:"download_path"`
	Headless      bool          `json:"headless"`
	DriverTimeout time.Duration `json:"driver_timeout"`
	Tracing       bool          `json:"tracing"`
}

// AppSettings are user preferences persisted next to the config.
type AppSettings struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	DownloadPath  string `json:"downloadPath"`
	DebugMode     bool   `json:"debugMode"`
}

// settingsFile is the on-disk shape of settings.json.
type settingsFile struct {
	Config
	App AppSettings `json:"app"`
}

func defaultConfig() Config {
	dir := flowpilotDir()
	return Config{
		ListenAddr:    ":4200",
		DataDir:       filepath.Join(dir, "automations"),
		DBPath:        filepath.Join(dir, "flowpilot.db"),
		LogLevel:      "info",
		DownloadPath:  filepath.Join(dir, "downloads"),
		Headless:      true,
		DriverTimeout: 30 * time.Second,
	}
}

func defaultAppSettings() AppSettings {
	return AppSettings{
		Theme:         "system",
		Notifications: true,
		DownloadPath:  filepath.Join(flowpilotDir(), "downloads"),
	}
}

func flowpilotDir() string {
	if v := os.Getenv("FLOWPILOT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowpilot"
	}
	return filepath.Join(home, ".flowpilot")
}

func settingsPath() string {
	return filepath.Join(flowpilotDir(), "settings.json")
}

func readSettings(path string) (settingsFile, error) {
	sf := settingsFile{Config: defaultConfig(), App: defaultAppSettings()}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sf, nil
	}
	if err != nil {
		return sf, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("parse %s: %w", path, err)
	}
	return sf, nil
}

// loadConfig layers settings.json over the defaults, then applies every
// flag the user set. Flags carry FLOWPILOT_* env sources, so env vars land
// through the same path.
func loadConfig(cmd *cli.Command) (Config, error) {
	sf, err := readSettings(settingsPath())
	if err != nil {
		return Config{}, err
	}
	cfg := sf.Config
	if sf.App.DownloadPath != "" {
		cfg.DownloadPath = sf.App.DownloadPath
	}
	if sf.App.DebugMode {
		cfg.Debug = true
	}
	if cmd == nil {
		return finishConfig(cfg), nil
	}

	if cmd.IsSet("listen-addr") {
		cfg.ListenAddr = cmd.String("listen-addr")
	}
	if cmd.IsSet("data-dir") {
		cfg.DataDir = cmd.String("data-dir")
	}
	if cmd.IsSet("db-path") {
		cfg.DBPath = cmd.String("db-path")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("debug") {
		cfg.Debug = cmd.Bool("debug")
	}
	if cmd.IsSet("download-path") {
		cfg.DownloadPath = cmd.String("download-path")
	}
	if cmd.IsSet("headless") {
		cfg.Headless = cmd.Bool("headless")
	}
	if cmd.IsSet("driver-timeout") {
		cfg.DriverTimeout = cmd.Duration("driver-timeout")
	}
	if cmd.IsSet("tracing") {
		cfg.Tracing = cmd.Bool("tracing")
	}
	return finishConfig(cfg), nil
}

func finishConfig(cfg Config) Config {
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

// loadAppSettings returns the stored app settings, or the defaults.
func loadAppSettings() (AppSettings, error) {
	sf, err := readSettings(settingsPath())
	return sf.App, err
}

// saveAppSettings rewrites settings.json keeping the stored config block.
func saveAppSettings(app AppSettings) error {
	path := settingsPath()
	sf, err := readSettings(path)
	if err != nil {
		return err
	}
	sf.App = app

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Set changes one setting by its JSON name.
func (a *AppSettings) Set(key, value string) error {
	switch key {
	case "theme":
		switch value {
		case "light", "dark", "system":
			a.Theme = value
		default:
			return fmt.Errorf("theme must be light, dark or system, got %q", value)
		}
	case "notifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notifications: %w", err)
		}
		a.Notifications = b
	case "downloadPath":
		a.DownloadPath = value
	case "debugMode":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("debugMode: %w", err)
		}
		a.DebugMode = b
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
