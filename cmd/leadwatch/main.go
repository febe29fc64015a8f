package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/urfave/cli/v3"
)

// Resolved in the root Before hook
var config *common.Config

// MessageSessionExpired is printed when the session layer asks for a new login
const MessageSessionExpired = "session expired: run `leadwatch login`"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer common.RecoverWithCrashFile()

	root := &cli.Command{
		Name:    "leadwatch",
		Usage:   "Session-aware client for lead verification and background jobs",
		Version: common.GetFullVersion(),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path (repeatable, later files override earlier ones)",
				Sources: cli.EnvVars("LEADWATCH_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "Backend base URL (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at the configured level instead of warnings only",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			whoamiCommand(),
			storeCommand(),
			jobsCommand(),
			leadsCommand(),
			serveCommand(),
			versionCommand(),
		},
	}

	// cli.Exit errors terminate inside Run with their own code
	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves defaults -> files -> env -> flags.
// Without -c, leadwatch.toml in the working directory is used when present.
func loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	paths := cmd.StringSlice("config")
	if len(paths) == 0 {
		if _, err := os.Stat("leadwatch.toml"); err == nil {
			paths = append(paths, "leadwatch.toml")
		}
	}

	cfg, err := common.LoadFromFiles(paths...)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("failed to load configuration: %v", err), 1)
	}
	common.ApplyFlagOverrides(cfg, 0, "", cmd.String("api"))
	if err := cfg.Validate(); err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}

	config = cfg
	common.InstallCrashHandler(common.LogDirectory(cfg))
	return ctx, nil
}

// openApp builds the application for a one-shot command. Logging is kept to
// warnings so it does not interleave with command output unless --verbose.
func openApp(cmd *cli.Command) (*app.App, error) {
	if !cmd.Bool("verbose") {
		config.Logging.Level = "warn"
	}
	logger := common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to initialize: %v", err), 1)
	}
	return application, nil
}

// withSession runs fn against a fresh app. A login-required event during fn
// cancels its context and turns the result into a non-zero exit.
func withSession(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var expired atomic.Bool
	unsubscribe, err := a.Session.OnLoginRequired(func(p interfaces.LoginRequiredPayload) {
		if p.Reason == "logout" {
			return
		}
		if expired.CompareAndSwap(false, true) {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	err = fn(ctx, a)
	// The event is delivered asynchronously; cleared credentials tell the same story
	if expired.Load() || (err != nil && a.Session.AccessToken(context.WithoutCancel(ctx)) == "") {
		return cli.Exit(MessageSessionExpired, 2)
	}
	return err
}

func parseLeadID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid lead id %q", value), 1)
	}
	return id, nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := common.GetVersionInfo()
			fmt.Printf("Leadwatch version %s (build: %s, commit: %s)\n", info.Version, info.Build, info.GitCommit)
			return nil
		},
	}
}
