package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/leadwatch/internal/models"
)

// fakeAPI scripts job status sequences. The last status of a sequence repeats.
type fakeAPI struct {
	mu sync.Mutex

	statuses map[string][]models.JobStatus
	getErr   map[string]error
	calls    map[string]int
	returned map[string]int
	block    chan struct{}
	started  chan string

	jobs      []models.Job
	listErr   error
	listCalls []models.JobListOptions

	leadLogs map[int64]*models.LeadLog
	logErr   error

	cancelErr  error
	cancelled  []string
	cancelGate chan struct{} // when set, CancelJob waits for it
	cancelSeen chan string

	verifyJob string
	verifyErr error
	verified  []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		statuses: map[string][]models.JobStatus{},
		getErr:   map[string]error{},
		calls:    map[string]int{},
		returned: map[string]int{},
		leadLogs: map[int64]*models.LeadLog{},
		started:  make(chan string, 64),
	}
}

func (f *fakeAPI) script(jobID string, statuses ...models.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = statuses
}

func (f *fakeAPI) callCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[jobID]
}

func (f *fakeAPI) returnedCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.returned[jobID]
}

func (f *fakeAPI) GetJob(ctx context.Context, jobID string) (*models.JobDetail, error) {
	f.mu.Lock()
	n := f.calls[jobID]
	f.calls[jobID]++
	err := f.getErr[jobID]
	seq := f.statuses[jobID]
	block := f.block
	f.mu.Unlock()

	select {
	case f.started <- jobID:
	default:
	}
	if block != nil {
		<-block
	}

	defer func() {
		f.mu.Lock()
		f.returned[jobID]++
		f.mu.Unlock()
	}()

	if err != nil {
		return nil, err
	}

	status := models.JobStatusRunning
	if len(seq) > 0 {
		status = seq[min(n, len(seq)-1)]
	}
	detail := &models.JobDetail{ID: jobID, Status: status, Progress: min((n+1)*25, 100)}
	for i := 0; i <= n; i++ {
		detail.Lines = append(detail.Lines, fmt.Sprintf("%s line %d", jobID, i+1))
	}
	if status == models.JobStatusFailed {
		detail.Error = "smtp timeout"
	}
	detail.Normalize()
	return detail, nil
}

func (f *fakeAPI) ListJobs(ctx context.Context, opts models.JobListOptions) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	jobs := make([]models.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		if opts.ActiveOnly && !job.Status.IsCancellable() {
			continue
		}
		if opts.LeadID != nil && (job.LeadID == nil || *job.LeadID != *opts.LeadID) {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (f *fakeAPI) CancelJob(ctx context.Context, jobID string) (*models.CancelResult, error) {
	f.mu.Lock()
	gate, seen := f.cancelGate, f.cancelSeen
	f.mu.Unlock()
	if seen != nil {
		seen <- jobID
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, jobID)
	f.statuses[jobID] = []models.JobStatus{models.JobStatusCancelled}
	for i := range f.jobs {
		if f.jobs[i].ID == jobID {
			f.jobs[i].Status = models.JobStatusCancelled
		}
	}
	return &models.CancelResult{JobID: jobID, Status: models.JobStatusCancelled}, nil
}

func (f *fakeAPI) VerifyLead(ctx context.Context, leadID int64) (*models.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, leadID)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &models.VerifyResult{JobID: f.verifyJob}, nil
}

func (f *fakeAPI) LeadVerificationLog(ctx context.Context, leadID int64) (*models.LeadLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return nil, f.logErr
	}
	log, ok := f.leadLogs[leadID]
	if !ok {
		return nil, &models.BackendError{StatusCode: 404, Code: "NOT_FOUND", Message: "No verification job for this lead"}
	}
	return log, nil
}

func leadID(v int64) *int64 {
	return &v
}
