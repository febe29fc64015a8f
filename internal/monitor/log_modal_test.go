package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
)

func newTestModal(api *fakeAPI) *LogModal {
	m := newTestMonitor(api, 10*time.Millisecond, 0)
	return NewLogModal(context.Background(), api, m, arbor.NewLogger())
}

func leadJobs() []models.Job {
	return []models.Job{
		{ID: "v-3aaaaaaaaa", Kind: models.JobKindVerify, Status: models.JobStatusRunning, LeadID: leadID(7)},
		{ID: "v-2bbbbbbbbb", Kind: models.JobKindVerify, Status: models.JobStatusSucceeded, LeadID: leadID(7)},
		{ID: "v-1ccccccccc", Kind: models.JobKindVerify, Status: models.JobStatusFailed, LeadID: leadID(7)},
		{ID: "x-1", Kind: models.JobKindExport, Status: models.JobStatusRunning},
	}
}

func TestLogModalOpenByLead(t *testing.T) {
	api := newFakeAPI()
	api.jobs = leadJobs()
	api.leadLogs[7] = &models.LeadLog{JobID: "v-3aaaaaaaaa", Status: models.JobStatusRunning}
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	modal := newTestModal(api)
	defer modal.Close()

	require.NoError(t, modal.Open(context.Background(), 7))

	view := modal.View()
	assert.True(t, view.Open)
	assert.Equal(t, "Log — verify (v-3aaaaa…) 1/3", view.Title)
	assert.False(t, view.HasPrev)
	assert.True(t, view.HasNext)
	require.Eventually(t, func() bool { return modal.View().CanCancel }, waitFor, 5*time.Millisecond)

	require.Len(t, api.listCalls, 1)
	assert.False(t, api.listCalls[0].ActiveOnly)
	require.NotNil(t, api.listCalls[0].LeadID)
	assert.Equal(t, int64(7), *api.listCalls[0].LeadID)
}

func TestLogModalOpenWithoutJob(t *testing.T) {
	api := newFakeAPI()
	modal := newTestModal(api)

	err := modal.Open(context.Background(), 99)
	assert.True(t, models.IsBackendCode(err, "NOT_FOUND"))
	view := modal.View()
	assert.Equal(t, "No verification job for this lead", view.Error)
	assert.Equal(t, "Log", view.Title)
	assert.Empty(t, view.Snapshot.JobID)
}

func TestLogModalSiblingFailureKeepsSingleJob(t *testing.T) {
	api := newFakeAPI()
	api.listErr = &models.BackendError{StatusCode: 500, Code: "HTTP_500"}
	api.leadLogs[7] = &models.LeadLog{JobID: "v-3aaaaaaaaa"}
	api.script("v-3aaaaaaaaa", models.JobStatusSucceeded)
	modal := newTestModal(api)
	defer modal.Close()

	require.NoError(t, modal.Open(context.Background(), 7))
	view := modal.View()
	assert.Equal(t, "1/1", view.Position)
	assert.Empty(t, view.Error)
}

func TestLogModalNavigateTearsDownPrevious(t *testing.T) {
	api := newFakeAPI()
	jobs := leadJobs()
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	api.script("v-2bbbbbbbbb", models.JobStatusSucceeded)
	modal := newTestModal(api)
	defer modal.Close()

	modal.OpenJob(jobs[0], jobs)
	first := modal.Monitor().Done()
	require.Eventually(t, func() bool { return api.callCount("v-3aaaaaaaaa") >= 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "1/3", modal.View().Position, "jobs of other leads are excluded")

	assert.False(t, modal.Navigate(Prev), "no-op at the first job")

	require.True(t, modal.Navigate(Next))
	select {
	case <-first:
	default:
		t.Fatal("previous session still open")
	}
	waitDone(t, modal.Monitor())

	view := modal.View()
	assert.Equal(t, "v-2bbbbbbbbb", view.Snapshot.JobID)
	assert.Equal(t, models.JobStatusSucceeded, view.Snapshot.Status)
	assert.Equal(t, "Log — verify (v-2bbbbb…) 2/3", view.Title)

	calls := api.callCount("v-3aaaaaaaaa")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, calls, api.callCount("v-3aaaaaaaaa"))
}

func TestLogModalCancelRefetches(t *testing.T) {
	api := newFakeAPI()
	jobs := leadJobs()
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	modal := NewLogModal(context.Background(), api, newTestMonitor(api, time.Hour, 0), arbor.NewLogger())
	defer modal.Close()

	modal.OpenJob(jobs[0], jobs)
	require.Eventually(t, func() bool { return modal.View().CanCancel }, waitFor, 5*time.Millisecond)

	require.NoError(t, modal.Cancel(context.Background()))
	assert.Equal(t, []string{"v-3aaaaaaaaa"}, api.cancelled)

	view := modal.View()
	assert.Equal(t, models.JobStatusCancelled, view.Snapshot.Status)
	assert.False(t, view.CanCancel)
	assert.Equal(t, 2, api.callCount("v-3aaaaaaaaa"))
}

func TestLogModalCancelFailureKeepsPolling(t *testing.T) {
	api := newFakeAPI()
	jobs := leadJobs()
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	api.cancelErr = &models.BackendError{StatusCode: 409, Code: "INVALID_STATE", Message: "Cannot cancel job in state succeeded"}
	modal := newTestModal(api)
	defer modal.Close()

	modal.OpenJob(jobs[0], jobs)
	require.Eventually(t, func() bool { return modal.View().CanCancel }, waitFor, 5*time.Millisecond)

	err := modal.Cancel(context.Background())
	assert.Error(t, err)
	view := modal.View()
	assert.Equal(t, "Cannot cancel job in state succeeded", view.Error)
	assert.False(t, view.Cancelling)

	calls := api.callCount("v-3aaaaaaaaa")
	require.Eventually(t, func() bool { return api.callCount("v-3aaaaaaaaa") > calls }, waitFor, 5*time.Millisecond)
}

func TestLogModalCancelFailureAfterNavigateIsDropped(t *testing.T) {
	api := newFakeAPI()
	jobs := leadJobs()
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	api.script("v-2bbbbbbbbb", models.JobStatusRunning)
	api.cancelErr = &models.BackendError{StatusCode: 409, Code: "INVALID_STATE", Message: "Cannot cancel job in state succeeded"}
	api.cancelGate = make(chan struct{})
	api.cancelSeen = make(chan string, 1)
	modal := newTestModal(api)
	defer modal.Close()

	modal.OpenJob(jobs[0], jobs)
	require.Eventually(t, func() bool { return modal.View().CanCancel }, waitFor, 5*time.Millisecond)

	cancelled := make(chan error, 1)
	go func() { cancelled <- modal.Cancel(context.Background()) }()
	assert.Equal(t, "v-3aaaaaaaaa", <-api.cancelSeen)

	require.True(t, modal.Navigate(Next))
	close(api.cancelGate)
	assert.Error(t, <-cancelled)

	view := modal.View()
	assert.Empty(t, view.Error, "the failure belongs to the job left behind")
	assert.False(t, view.Cancelling)
	assert.Equal(t, "2/3", view.Position)
}

func TestLogModalCloseIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	jobs := leadJobs()
	api.script("v-3aaaaaaaaa", models.JobStatusRunning)
	modal := newTestModal(api)

	modal.OpenJob(jobs[0], jobs)
	modal.Close()
	modal.Close()

	view := modal.View()
	assert.False(t, view.Open)
	assert.Equal(t, StateIdle, view.Snapshot.State)
	assert.False(t, modal.Navigate(Next))
	require.NoError(t, modal.Cancel(context.Background()))
	assert.Empty(t, api.cancelled)
}
