package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func withHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FLOWPILOT_HOME", dir)
	return dir
}

// configFrom runs a command carrying the global flags and returns the
// config it loaded.
func configFrom(t *testing.T, args ...string) Config {
	t.Helper()
	var cfg Config
	cmd := &cli.Command{
		Name:  "flowpilot",
		Flags: globalFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"flowpilot"}, args...)))
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := withHome(t)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, "automations"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "flowpilot.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.DriverTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.json"), []byte(`{
		"data_dir": "/srv/automations",
		"log_level": "warn",
		"headless": false,
		"app": {"downloadPath": "/tmp/shots"}
	}`), 0o600))

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/automations", cfg.DataDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "/tmp/shots", cfg.DownloadPath)
	assert.Equal(t, filepath.Join(home, "flowpilot.db"), cfg.DBPath)
}

func TestLoadConfig_BadSettingsFile(t *testing.T) {
	home := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.json"), []byte(`{nope`), 0o600))

	_, err := loadConfig(nil)
	assert.Error(t, err)
}

func TestLoadConfig_EnvThenFlags(t *testing.T) {
	home := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.json"),
		[]byte(`{"data_dir": "/from/file", "db_path": "/from/file.db"}`), 0o600))
	t.Setenv("FLOWPILOT_DATA_DIR", "/from/env")
	t.Setenv("FLOWPILOT_DB_PATH", "/from/env.db")

	cfg := configFrom(t, "--db-path", "/from/flag.db", "--driver-timeout", "5s")
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, "/from/flag.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.DriverTimeout)
}

func TestLoadConfig_DebugForcesDebugLevel(t *testing.T) {
	withHome(t)

	cfg := configFrom(t, "--debug", "--log-level", "error")
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_AppDebugMode(t *testing.T) {
	withHome(t)
	require.NoError(t, saveAppSettings(AppSettings{Theme: "dark", DebugMode: true}))

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestAppSettings_SaveKeepsConfig(t *testing.T) {
	home := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.json"),
		[]byte(`{"listen_addr": ":9000"}`), 0o600))

	app, err := loadAppSettings()
	require.NoError(t, err)
	assert.Equal(t, "system", app.Theme)
	assert.True(t, app.Notifications)

	require.NoError(t, app.Set("theme", "dark"))
	require.NoError(t, app.Set("notifications", "false"))
	require.NoError(t, saveAppSettings(app))

	got, err := loadAppSettings()
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Theme)
	assert.False(t, got.Notifications)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
}

func TestAppSettings_SetRejects(t *testing.T) {
	var app AppSettings
	assert.Error(t, app.Set("theme", "neon"))
	assert.Error(t, app.Set("notifications", "maybe"))
	assert.Error(t, app.Set("debugMode", "x"))
	assert.Error(t, app.Set("volume", "11"))

	require.NoError(t, app.Set("downloadPath", "/tmp/x"))
	assert.Equal(t, "/tmp/x", app.DownloadPath)
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"user=ada", " pid =42", "empty=", "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user": "ada", "pid": "42", "empty": "", "eq": "a=b"}, got)

	_, err = parsePairs([]string{"novalue"})
	assert.Error(t, err)
	_, err = parsePairs([]string{"=x"})
	assert.Error(t, err)
}
