package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/monitor"
)

// snapshotPrinter writes log lines as they arrive. Snapshots reach it through
// the async event bus, so anything older than the last printed version is dropped.
type snapshotPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	version uint64
	jobID   string
	printed int
	status  models.JobStatus
}

func newSnapshotPrinter(out io.Writer) *snapshotPrinter {
	return &snapshotPrinter{out: out}
}

func (p *snapshotPrinter) Print(snap monitor.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Version <= p.version {
		return
	}
	p.version = snap.Version

	if snap.JobID != p.jobID {
		p.jobID = snap.JobID
		p.printed = 0
		p.status = ""
	}
	if snap.Loading {
		return
	}

	// The log is replaced on every fetch; print only the new tail
	if len(snap.Lines) < p.printed {
		p.printed = 0
	}
	for _, line := range snap.Lines[p.printed:] {
		fmt.Fprintln(p.out, line)
	}
	p.printed = len(snap.Lines)

	if snap.Status != "" && snap.Status != p.status {
		p.status = snap.Status
		fmt.Fprintf(p.out, "[%s %d%%]\n", snap.Status, snap.Progress)
	}
	if snap.State == monitor.StateAborted {
		switch {
		case snap.Error != "":
			fmt.Fprintf(p.out, "[stopped: %s]\n", snap.Error)
		case snap.StopReason != "":
			fmt.Fprintf(p.out, "[stopped: %s]\n", snap.StopReason)
		}
	}
	if snap.JobError != "" && snap.State == monitor.StateTerminal {
		fmt.Fprintf(p.out, "[error: %s]\n", snap.JobError)
	}
}

func writeJobTable(out io.Writer, jobs []models.Job) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPROGRESS\tLEAD\tCREATED")
	for _, job := range jobs {
		lead := "-"
		if job.LeadID != nil {
			lead = fmt.Sprintf("%d", *job.LeadID)
		}
		created := "-"
		if job.CreatedAt != nil && !job.CreatedAt.IsZero() {
			created = job.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n", job.ID, job.Kind, job.Status, job.Progress, lead, created)
	}
	return w.Flush()
}

// writeEntryTable lists store entries; credential values only show their tail
func writeEntryTable(out io.Writer, path string, entries []interfaces.Entry) error {
	fmt.Fprintf(out, "store: %s\n", path)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tUPDATED")
	for _, e := range entries {
		value := e.Value
		if strings.HasSuffix(e.Key, "_token") {
			value = maskSecret(value)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, value, e.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func maskSecret(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return "****" + value[len(value)-4:]
}

func modalHeader(view monitor.ModalView) string {
	var b strings.Builder
	b.WriteString("== " + view.Title + " ==")
	if view.Error != "" {
		b.WriteString("\n" + view.Error)
	}
	return b.String()
}
