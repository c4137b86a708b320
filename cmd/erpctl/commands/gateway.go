package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/erpctl/internal/app"
)

func gatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "local HTTP gateway to the ERP API",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "serve the gateway until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "gateway--host",
						Usage: "gateway host",
						Value: app.DefaultConfigGatewayHost,
					},
					&cli.IntFlag{
						Name:  "gateway--port",
						Usage: "gateway port",
						Value: int(app.DefaultConfigGatewayPort),
					},
				},
				Action: gatewayStartAction,
			},
		},
	}
}

func gatewayStartAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
		if !a.Session().Get().IsAuthenticated {
			slog.WarnContext(ctx, "no active session, proxied calls will fail until 'erpctl login'")
		}

		slog.InfoContext(ctx, "starting")
		if err := a.Start(ctx); err != nil {
			return err
		}
		slog.InfoContext(ctx, "stopped gracefully")
		return nil
	})
}
