package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/backtester/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsMissingExplicitFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err) // explicit path that doesn't exist is an error, unlike the silent default-search path

	_ = cfg
}

func TestLoadSilentlyMissingDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "./var", cfg.VarDir)
	require.Equal(t, "10000", cfg.DefaultInitialCapital.String())
}

func TestLoadReadsExplicitYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backtester.yaml")
	require.NoError(t, os.WriteFile(path, []byte("var_dir: /tmp/custom-var\ndefault_initial_capital: \"25000\"\nlog_level: debug\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-var", cfg.VarDir)
	require.Equal(t, "25000", cfg.DefaultInitialCapital.String())
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsNonPositiveCapital(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backtester.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_initial_capital: \"0\"\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsValidNotifyEmails(t *testing.T) {
	require.NoError(t, os.Setenv("FROM_EMAIL", "alerts@example.com"))
	require.NoError(t, os.Setenv("TO_EMAIL", "trader@example.com"))
	defer os.Unsetenv("FROM_EMAIL")
	defer os.Unsetenv("TO_EMAIL")

	dir := t.TempDir()
	path := filepath.Join(dir, "backtester.yaml")
	require.NoError(t, os.WriteFile(path, []byte("var_dir: /tmp/custom-var\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "alerts@example.com", cfg.NotifyFromEmail)
	require.Equal(t, "trader@example.com", cfg.NotifyToEmail)
}

func TestLoadRejectsMalformedNotifyEmail(t *testing.T) {
	require.NoError(t, os.Setenv("FROM_EMAIL", "not-an-email"))
	defer os.Unsetenv("FROM_EMAIL")

	dir := t.TempDir()
	path := filepath.Join(dir, "backtester.yaml")
	require.NoError(t, os.WriteFile(path, []byte("var_dir: /tmp/custom-var\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
