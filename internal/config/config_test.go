package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, DefaultPort, cfg.Server.Port)
	require.Equal(t, DefaultDBPath, cfg.Database.Path)
	require.True(t, cfg.Database.WALMode)
	require.Equal(t, DefaultFunctionTimeout, cfg.Functions.Timeout)
	require.True(t, cfg.Scheduler.Enabled)
	require.Equal(t, DefaultSchedulerMaxConcurrent, cfg.Scheduler.MaxConcurrent)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "basalt.yaml")

	content := `
server:
  port: 9999
functions:
  dir: ./fns
  timeout: 10s
scheduler:
  max_concurrent: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "./fns", cfg.Functions.Dir)
	require.Equal(t, 10*time.Second, cfg.Functions.Timeout)
	require.Equal(t, 2, cfg.Scheduler.MaxConcurrent)

	// Untouched sections keep defaults
	require.Equal(t, DefaultDBPath, cfg.Database.Path)
	require.Equal(t, DefaultLogLevel, cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Functions.Timeout = 0
	cfg.Scheduler.MaxConcurrent = 0

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 3)
}

func TestExpandEnvInConfig(t *testing.T) {
	t.Setenv("BASALT_TEST_SECRET", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "basalt.yaml")
	content := `
auth:
  jwt_secret: ${BASALT_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}
