package main

import (
	"context"
	"fmt"

	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/server"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local event bridge and the scheduled job list reload",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Server port (overrides config)"},
			&cli.StringFlag{Name: "host", Usage: "Server host (overrides config)"},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	common.ApplyFlagOverrides(config, int(cmd.Int("port")), cmd.String("host"), "")

	logger := common.InitLogger(config)

	logger.Debug().
		Str("api", config.APIURL("")).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("reload_schedule", config.Jobs.ReloadSchedule).
		Msg("Resolved configuration (sanitized)")

	application, err := app.New(config, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize application: %v", err), 1)
	}
	defer application.Close()

	if err := application.StartScheduler(); err != nil {
		return cli.Exit(fmt.Sprintf("failed to start scheduler: %v", err), 1)
	}

	srv := server.New(application)
	if err := srv.Listen(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	common.PrintBanner(config, srv.Addr())

	logger.Info().
		Str("url", fmt.Sprintf("http://%s", srv.Addr())).
		Msg("Server ready - Press Ctrl+C to stop")

	if err := srv.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
