// -----------------------------------------------------------------------
// Job - read-only view of a server-side background job
// -----------------------------------------------------------------------

package models

import "strings"

// JobStatus is the lifecycle status reported by the backend.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition can occur.
// Unknown statuses are treated as non-terminal so polling continues.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether the backend accepts a cancel request in this status.
func (s JobStatus) IsCancellable() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// JobKind classifies what a job does.
type JobKind string

const (
	JobKindVerify JobKind = "verify"
	JobKindImport JobKind = "import"
	JobKindExport JobKind = "export"
)

// Job is a job descriptor as returned by the job listing endpoint.
// The client only ever reads jobs and requests cancellation.
type Job struct {
	ID        string     `json:"job_id"`
	Kind      JobKind    `json:"kind"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	LeadID    *int64     `json:"lead_id"`    // Parent entity; nil for jobs not tied to a lead
	CreatedAt *Timestamp `json:"created_at"` // Nil when the backend did not record it
}

// ShortID returns the first eight characters of the job id, used in titles.
func (j Job) ShortID() string {
	if len(j.ID) <= 8 {
		return j.ID
	}
	return j.ID[:8]
}

// SameParent reports whether both jobs belong to the same lead.
func (j Job) SameParent(other Job) bool {
	return j.LeadID != nil && other.LeadID != nil && *j.LeadID == *other.LeadID
}

// JobDetail is the payload of GET /jobs/{id}.
// Lines and Entries are the full log to date and replace any previous copy.
type JobDetail struct {
	ID       string         `json:"job_id"`
	Status   JobStatus      `json:"status"`
	Progress int            `json:"progress"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Lines    []string       `json:"log_lines"`
	Entries  []LogEntry     `json:"log_entries"`
}

// Normalize clamps progress to 0-100, lower-cases the status and replaces nil logs with empty slices.
func (d *JobDetail) Normalize() {
	d.Status = JobStatus(strings.ToLower(strings.TrimSpace(string(d.Status))))
	d.Progress = ClampProgress(d.Progress)
	if d.Lines == nil {
		d.Lines = []string{}
	}
	if d.Entries == nil {
		d.Entries = []LogEntry{}
	}
}

// ClampProgress bounds a progress value to the 0-100 range.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// JobListOptions filters GET /jobs.
type JobListOptions struct {
	LeadID     *int64
	ActiveOnly bool
}

// LeadLog is the payload of GET /leads/{id}/verification-log: the lead's most recent verification job.
type LeadLog struct {
	JobID     string     `json:"job_id"`
	Status    JobStatus  `json:"status"`
	Lines     []string   `json:"log_lines"`
	Entries   []LogEntry `json:"log_entries"`
	CreatedAt *Timestamp `json:"created_at"`
	Error     string     `json:"error,omitempty"`
}

// JobList is the payload of GET /jobs.
type JobList struct {
	Jobs []Job `json:"jobs"`
}

// CancelResult is the payload of POST /jobs/{id}/cancel.
type CancelResult struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// VerifyResult is the payload of POST /leads/{id}/verify.
type VerifyResult struct {
	JobID string `json:"job_id"`
}
