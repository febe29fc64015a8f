package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/leadwatch/internal/models"
)

func respond(t *testing.T, status int, body string) *http.Response {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	return resp
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var out models.VerifyResult
		require.NoError(t, DecodeEnvelope(respond(t, 200, `{"data":{"job_id":"j-1"},"error":null,"meta":{}}`), &out))
		assert.Equal(t, "j-1", out.JobID)
	})

	t.Run("error member on 200", func(t *testing.T) {
		err := DecodeEnvelope(respond(t, 200, `{"data":null,"error":{"code":"NOT_FOUND","message":"Job not found"}}`), &models.VerifyResult{})
		var be *models.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, 200, be.StatusCode)
		assert.Equal(t, "NOT_FOUND", be.Code)
		assert.Equal(t, "Job not found", be.Message)
	})

	t.Run("non-2xx with detail", func(t *testing.T) {
		err := DecodeEnvelope(respond(t, 403, `{"detail":"Superadmin only"}`), nil)
		var be *models.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "FORBIDDEN", be.Code)
		assert.Equal(t, "Superadmin only", be.Message)
	})

	t.Run("non-2xx plain text", func(t *testing.T) {
		err := DecodeEnvelope(respond(t, 502, `Bad Gateway`), nil)
		assert.True(t, models.IsBackendCode(err, "HTTP_502"))
	})

	t.Run("malformed body", func(t *testing.T) {
		err := DecodeEnvelope(respond(t, 200, `<html>`), &models.VerifyResult{})
		assert.True(t, models.IsBackendCode(err, "MALFORMED_RESPONSE"))
	})

	t.Run("missing data", func(t *testing.T) {
		err := DecodeEnvelope(respond(t, 200, `{"data":null,"error":null}`), &models.TokenResponse{})
		assert.True(t, models.IsBackendCode(err, "EMPTY_RESPONSE"))
	})
}

func TestNewJSONRequestIsReplayable(t *testing.T) {
	req, err := NewJSONRequest(context.Background(), http.MethodPost, "http://localhost/v1/auth/refresh", models.RefreshRequest{RefreshToken: "r"})
	require.NoError(t, err)
	require.NotNil(t, req.GetBody)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	for i := 0; i < 2; i++ {
		body, err := req.GetBody()
		require.NoError(t, err)
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"refresh_token":"r"}`, string(data))
	}
}
