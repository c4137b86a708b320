package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/erpctl/internal/app"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
log_level = "warn"

[api]
base_url = "https://file.example.com/api"
timeout = "3s"

[auth]
storage = "env"
env_key = "FROM_FILE"

[gateway]
port = 5000
`)

	cfg, err := loadConfig(path, nil, environ(
		"ERPCTL_API__BASE_URL=https://env.example.com/api",
		"ERPCTL_AUTH__ENV_KEY=",
		"ERPCTL_TELEMETRY__EXPORTER=stdout",
		"UNRELATED=1",
	))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL, "env overrides file")
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "FROM_FILE", cfg.Auth.EnvKey, "empty env values do not shadow the file")
	assert.Equal(t, uint16(5000), cfg.Gateway.Port)
	assert.Equal(t, "stdout", cfg.Telemetry.Exporter)
	assert.Equal(t, app.DefaultConfigGatewayHost, cfg.Gateway.Host, "defaults fill the rest")
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	var got *app.Config
	cmd := &cli.Command{
		Name: "erpctl",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "api--base-url", Value: app.DefaultConfigAPIBaseURL},
			&cli.StringFlag{Name: "log-format", Value: "text"},
		},
		Commands: []*cli.Command{{
			Name: "gateway",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "gateway--port", Value: int(app.DefaultConfigGatewayPort)},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := loadConfig("", cmd, environ(
					"ERPCTL_API__BASE_URL=https://env.example.com/api",
					"ERPCTL_LOG_FORMAT=json",
				))
				got = cfg
				return err
			},
		}},
	}

	err := cmd.Run(context.Background(), []string{"erpctl", "--api--base-url", "https://flag.example.com/api", "gateway", "--gateway--port", "4242"})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "https://flag.example.com/api", got.API.BaseURL)
	assert.Equal(t, app.LogFormatJSON, got.LogFormat, "unset flags keep the env value")
	assert.Equal(t, uint16(4242), got.Gateway.Port)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig("", nil, environ("ERPCTL_AUTH__STORAGE=floppy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, environ())
	require.Error(t, err)
}
