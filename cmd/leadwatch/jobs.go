package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/urfave/cli/v3"
)

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List, cancel and follow background jobs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List active jobs",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Include finished jobs"},
					&cli.StringFlag{Name: "lead", Usage: "Only jobs of this lead id"},
				},
				Action: jobsListAction,
			},
			{
				Name:      "cancel",
				Usage:     "Request cancellation of a job",
				ArgsUsage: "<job-id>",
				Action:    jobsCancelAction,
			},
			{
				Name:      "watch",
				Usage:     "Follow a job's log until it finishes",
				ArgsUsage: "<job-id>",
				Action:    jobsWatchAction,
			},
		},
	}
}

func jobsListAction(ctx context.Context, cmd *cli.Command) error {
	return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
		if !cmd.Bool("all") && cmd.String("lead") == "" {
			if err := a.JobList.Load(ctx); err != nil {
				return cli.Exit(a.JobList.View().Error, 1)
			}
			return writeJobTable(os.Stdout, a.JobList.View().Jobs)
		}

		opts := models.JobListOptions{ActiveOnly: !cmd.Bool("all")}
		if lead := cmd.String("lead"); lead != "" {
			id, err := parseLeadID(lead)
			if err != nil {
				return err
			}
			opts.LeadID = &id
		}
		jobs, err := a.Jobs.ListJobs(ctx, opts)
		if err != nil {
			return cli.Exit(models.DisplayMessage(err, "Could not load jobs"), 1)
		}
		return writeJobTable(os.Stdout, jobs)
	})
}

func jobsCancelAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("expected exactly one <job-id>", 1)
	}
	jobID := cmd.Args().First()

	return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
		if err := a.JobList.Cancel(ctx, jobID); err != nil {
			return cli.Exit(a.JobList.View().Error, 1)
		}
		fmt.Printf("Cancellation requested for %s\n", jobID)
		return nil
	})
}

func jobsWatchAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("expected exactly one <job-id>", 1)
	}
	jobID := cmd.Args().First()

	return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
		printer := newSnapshotPrinter(os.Stdout)
		unsubscribe, err := followSnapshots(a, printer)
		if err != nil {
			return err
		}
		defer unsubscribe()

		m := a.NewLogMonitor()
		m.Watch(ctx, jobID)
		defer m.Stop()

		select {
		case <-m.Done():
		case <-ctx.Done():
			return nil
		}

		final := m.Snapshot()
		printer.Print(final)
		if err := final.Err(); err != nil {
			return cli.Exit(models.DisplayMessage(err, ""), 1)
		}
		return nil
	})
}

// followSnapshots routes job snapshots from the event bus to printer
func followSnapshots(a *app.App, printer *snapshotPrinter) (func(), error) {
	return a.EventService.Subscribe(interfaces.EventJobSnapshot, func(ctx context.Context, event interfaces.Event) error {
		if snap, ok := event.Payload.(monitor.Snapshot); ok {
			printer.Print(snap)
		}
		return nil
	})
}
