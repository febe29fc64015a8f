package jobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
)

// passthroughDoer sends requests unauthenticated and records them
type passthroughDoer struct {
	requests []*http.Request
}

func (d *passthroughDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	return http.DefaultClient.Do(req.WithContext(ctx))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *passthroughDoer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	doer := &passthroughDoer{}
	return NewClient(doer, func(path string) string { return server.URL + "/v1" + path }, arbor.NewLogger()), doer
}

func TestGetJob(t *testing.T) {
	client, doer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs/abc", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"job_id":"abc","status":"running","progress":40,"log_lines":["start"],"log_entries":[{"created_at":"2025-01-02T03:04:05","message":"start"}]},"error":null}`)
	})

	detail, err := client.GetJob(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, detail.Status)
	assert.Equal(t, 40, detail.Progress)
	assert.Equal(t, []string{"start"}, detail.Lines)
	require.Len(t, detail.Entries, 1)
	assert.Equal(t, http.MethodGet, doer.requests[0].Method)

	_, err = client.GetJob(context.Background(), "")
	assert.Error(t, err)
}

func TestGetJobNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":null,"error":{"code":"NOT_FOUND","message":"Job not found","details":{"job_id":"x"}}}`)
	})

	_, err := client.GetJob(context.Background(), "x")
	assert.True(t, models.IsBackendCode(err, "NOT_FOUND"))
	assert.Equal(t, "Job not found", models.DisplayMessage(err, ""))
}

func TestListJobsFiltersByLead(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("active_only"))
		assert.Equal(t, "12", r.URL.Query().Get("lead_id"))
		_, _ = io.WriteString(w, `{"data":{"jobs":[
			{"job_id":"a","kind":"verify","status":"succeeded","progress":100,"lead_id":12,"created_at":"2025-01-02T03:04:05.123456"},
			{"job_id":"b","kind":"export","status":"running","progress":5,"lead_id":null,"created_at":null},
			{"job_id":"c","kind":"verify","status":"failed","progress":150,"lead_id":12,"created_at":"2025-01-01T00:00:00+00:00"},
			{"job_id":"d","kind":"verify","status":"queued","progress":0,"lead_id":13,"created_at":null}
		]},"error":null}`)
	})

	lead := int64(12)
	jobs, err := client.ListJobs(context.Background(), models.JobListOptions{LeadID: &lead})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "c", jobs[1].ID)
	assert.Equal(t, 100, jobs[1].Progress)
	require.NotNil(t, jobs[0].CreatedAt)
	assert.Equal(t, 2025, jobs[0].CreatedAt.Year())
}

func TestListActiveJobs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active_only"))
		assert.Empty(t, r.URL.Query().Get("lead_id"))
		_, _ = io.WriteString(w, `{"data":{"jobs":[]},"error":null}`)
	})

	jobs, err := client.ListJobs(context.Background(), models.JobListOptions{ActiveOnly: true})
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestCancelJob(t *testing.T) {
	client, doer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/jobs/ok/cancel":
			_, _ = io.WriteString(w, `{"data":{"job_id":"ok","status":"cancelled"},"error":null}`)
		default:
			_, _ = io.WriteString(w, `{"data":null,"error":{"code":"INVALID_STATE","message":"Cannot cancel job in state succeeded"}}`)
		}
	})

	result, err := client.CancelJob(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, result.Status)
	assert.Equal(t, http.MethodPost, doer.requests[0].Method)

	_, err = client.CancelJob(context.Background(), "done")
	assert.True(t, models.IsBackendCode(err, "INVALID_STATE"))
}

func TestVerifyLead(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/leads/5/verify":
			_, _ = io.WriteString(w, `{"data":{"job_id":"v-1","status":"queued"},"error":null}`)
		case "/v1/leads/6/verify":
			_, _ = io.WriteString(w, `{"data":{},"error":null}`)
		default:
			_, _ = io.WriteString(w, `{"data":null,"error":{"code":"NOT_FOUND","message":"Lead not found"}}`)
		}
	})

	result, err := client.VerifyLead(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "v-1", result.JobID)

	_, err = client.VerifyLead(context.Background(), 6)
	assert.True(t, models.IsBackendCode(err, "MALFORMED_RESPONSE"))

	_, err = client.VerifyLead(context.Background(), 7)
	assert.True(t, models.IsBackendCode(err, "NOT_FOUND"))
}

func TestLeadVerificationLog(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/leads/9/verification-log", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"job_id":"v-9","status":"succeeded","log_lines":["a","b"],"log_entries":[],"created_at":"2025-01-02T03:04:05","error":null},"error":null}`)
	})

	log, err := client.LeadVerificationLog(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "v-9", log.JobID)
	assert.Equal(t, models.JobStatusSucceeded, log.Status)
	assert.Equal(t, []string{"a", "b"}, log.Lines)
}
