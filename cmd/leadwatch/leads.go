package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/urfave/cli/v3"
)

func leadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "leads",
		Usage: "Verify leads and read their verification logs",
		Commands: []*cli.Command{
			{
				Name:      "verify",
				Usage:     "Queue email verification and follow it to the end",
				ArgsUsage: "<lead-id>",
				Action:    leadsVerifyAction,
			},
			{
				Name:      "log",
				Usage:     "Open the verification log; commands on stdin: n(ext) p(rev) c(ancel) q(uit)",
				ArgsUsage: "<lead-id>",
				Action:    leadsLogAction,
			},
		},
	}
}

func leadArg(cmd *cli.Command) (int64, error) {
	if cmd.NArg() != 1 {
		return 0, cli.Exit("expected exactly one <lead-id>", 1)
	}
	return parseLeadID(cmd.Args().First())
}

func leadsVerifyAction(ctx context.Context, cmd *cli.Command) error {
	leadID, err := leadArg(cmd)
	if err != nil {
		return err
	}

	return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
		v := a.NewVerifier()
		defer v.Reset()

		messages := &messageLog{out: os.Stdout}
		v.OnChange(messages.Print)

		_ = v.Verify(ctx, leadID)
		select {
		case <-v.Settled():
		case <-ctx.Done():
			return nil
		}

		if messages.Failed() {
			return cli.Exit("", 1)
		}
		return nil
	})
}

// messageLog prints each distinct verification message once
type messageLog struct {
	mu     sync.Mutex
	out    io.Writer
	last   string
	failed bool
}

func (m *messageLog) Print(view monitor.VerifyView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if view.Message == "" || view.Message == m.last {
		return
	}
	m.last = view.Message
	if view.Message != monitor.MessageSucceeded && view.Message != monitor.MessageQueueing &&
		view.Message != monitor.MessageVerifying && view.Message != monitor.MessageCancelled {
		m.failed = true
	}
	fmt.Fprintln(m.out, view.Message)
}

func (m *messageLog) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

func leadsLogAction(ctx context.Context, cmd *cli.Command) error {
	leadID, err := leadArg(cmd)
	if err != nil {
		return err
	}

	return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
		modal := a.NewLogModal()
		defer modal.Close()

		printer := newSnapshotPrinter(os.Stdout)
		unsubscribe, err := followSnapshots(a, printer)
		if err != nil {
			return err
		}
		defer unsubscribe()

		if err := modal.Open(ctx, leadID); err != nil {
			return cli.Exit(modalHeader(modal.View()), 1)
		}
		fmt.Println(modalHeader(modal.View()))

		return runModal(ctx, modal, os.Stdin, os.Stdout)
	})
}

// runModal applies stdin commands to the modal until q, ctx cancellation or,
// once stdin is exhausted, the end of the current job
func runModal(ctx context.Context, modal *monitor.LogModal, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	var done <-chan struct{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				done = modal.Monitor().Done()
				continue
			}
			if quit := applyModalCommand(ctx, modal, line, out); quit {
				return nil
			}
		}
	}
}

func applyModalCommand(ctx context.Context, modal *monitor.LogModal, line string, out io.Writer) bool {
	switch strings.ToLower(line) {
	case "":
		return false
	case "q", "quit":
		return true
	case "c", "cancel":
		if !modal.View().CanCancel {
			fmt.Fprintln(out, "job can no longer be cancelled")
			return false
		}
		if err := modal.Cancel(ctx); err != nil {
			fmt.Fprintln(out, modalHeader(modal.View()))
			return false
		}
		fmt.Fprintln(out, "Cancellation requested")
		return false
	}

	dir, err := monitor.ParseDirection(strings.ToLower(line))
	if err != nil {
		fmt.Fprintf(out, "unknown command %q (n, p, c, q)\n", line)
		return false
	}
	if !modal.Navigate(dir) {
		fmt.Fprintln(out, "no more jobs in that direction")
		return false
	}
	fmt.Fprintln(out, modalHeader(modal.View()))
	return false
}
