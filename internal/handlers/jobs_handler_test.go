package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"github.com/ternarybob/leadwatch/internal/services/status"
)

type mockJobTable struct {
	mock.Mock
}

func (m *mockJobTable) View() monitor.JobListView {
	return m.Called().Get(0).(monitor.JobListView)
}

func (m *mockJobTable) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockJobTable) Cancel(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func TestListJobsHandler(t *testing.T) {
	table := &mockJobTable{}
	table.On("View").Return(monitor.JobListView{Jobs: []models.Job{{ID: "a", Status: models.JobStatusRunning}}})
	handler := NewJobsHandler(table, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view monitor.JobListView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, "a", view.Jobs[0].ID)
	table.AssertNotCalled(t, "Load", mock.Anything)

	rec = httptest.NewRecorder()
	handler.ListJobsHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListJobsHandlerReload(t *testing.T) {
	table := &mockJobTable{}
	table.On("Load", mock.Anything).Return(nil).Once()
	table.On("View").Return(monitor.JobListView{Jobs: []models.Job{}})
	handler := NewJobsHandler(table, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?reload=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	table.AssertExpectations(t)
}

func TestCancelJobHandler(t *testing.T) {
	table := &mockJobTable{}
	table.On("Cancel", mock.Anything, "job-1").Return(nil)
	table.On("Cancel", mock.Anything, "job-2").Return(&models.BackendError{StatusCode: 403, Code: "FORBIDDEN", Message: "nope"})
	table.On("View").Return(monitor.JobListView{Jobs: []models.Job{}, Error: monitor.MessageSuperadminOnly}).Maybe()
	handler := NewJobsHandler(table, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.CancelJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.CancelJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job-2/cancel", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, monitor.MessageSuperadminOnly, body["error"])

	rec = httptest.NewRecorder()
	handler.CancelJobHandler(rec, httptest.NewRequest(http.MethodPost, "/api/jobs//cancel", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	table.AssertNumberOfCalls(t, "Cancel", 2)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, ErrorStatus(models.ErrUnauthenticated))
	assert.Equal(t, http.StatusBadGateway, ErrorStatus(&models.NetworkError{Op: "GET", Err: context.Canceled}))
	assert.Equal(t, http.StatusConflict, ErrorStatus(&models.BackendError{StatusCode: 409, Code: "INVALID_STATE"}))
	assert.Equal(t, http.StatusForbidden, ErrorStatus(&models.BackendError{StatusCode: 200, Code: "FORBIDDEN"}))
	assert.Equal(t, http.StatusBadGateway, ErrorStatus(&models.BackendError{StatusCode: 500, Code: "HTTP_500"}))
	assert.Equal(t, http.StatusInternalServerError, ErrorStatus(assert.AnError))
}

func TestStatusHandler(t *testing.T) {
	handler := NewStatusHandler(fixedStatus{status.Status{State: status.StateSignedOut, WorkspaceID: "4", ActiveJobs: 2}}, nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.GetStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got status.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Authenticated)
	assert.Equal(t, "4", got.WorkspaceID)

	rec = httptest.NewRecorder()
	handler.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["authenticated"])
	assert.Equal(t, float64(2), health["active_jobs"])
	assert.Equal(t, float64(0), health["clients"])

	rec = httptest.NewRecorder()
	handler.VersionHandler(rec, httptest.NewRequest(http.MethodPost, "/api/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
