package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/erpctl/internal/apiclient"
	"github.com/florianilch/erpctl/internal/app"
	"github.com/florianilch/erpctl/internal/observability"
)

// telemetryFlushTimeout bounds flushing exported logs on exit.
const telemetryFlushTimeout = 5 * time.Second

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "erpctl",
		Usage: "ERP API client with automatic session refresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "ERP API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "session storage (file|env|keyring|redis)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--namespace",
				Usage: "namespace the session is stored under",
				Value: app.DefaultConfigAuthNamespace,
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlphttp|otlpgrpc)",
				Value: app.DefaultConfigTelemetry,
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			revokeAllCommand(),
			sessionCommand(),
			customersCommand(),
			gatewayCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// withApp loads the configuration, sets up logging and runs fn against a
// ready App. Telemetry is flushed and storage released afterwards.
func withApp(ctx context.Context, cmd *cli.Command, fn func(context.Context, *app.App) error) (err error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		err = errors.Join(err, shutdown(flushCtx))
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close session storage", "error", cerr)
		}
	}()

	if err := fn(ctx, application); err != nil {
		if errors.Is(err, apiclient.ErrSessionExpired) {
			return fmt.Errorf("%w (run 'erpctl login' to start a new session)", err)
		}
		return err
	}
	return nil
}
