package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/leadwatch/internal/models"
)

// maxBodySize bounds how much of a response is read into memory
const maxBodySize = 8 << 20

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewJSONRequest builds a request with a JSON body. The body is replayable via GetBody.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DrainAndClose discards the rest of the body so the connection can be reused
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}

// rawEnvelope also captures the "detail" member some error responses carry instead of an envelope
type rawEnvelope struct {
	models.Envelope
	Detail json.RawMessage `json:"detail"`
}

// DecodeEnvelope reads the response envelope into out and closes the body.
// An error member is a BackendError even on HTTP 200. A non-2xx status without
// an error member is a BackendError coded from the status.
func DecodeEnvelope(resp *http.Response, out any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &models.NetworkError{Op: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}

	var env rawEnvelope
	parseErr := json.Unmarshal(body, &env)

	if parseErr == nil && env.Error != nil {
		return env.Decode(resp.StatusCode, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &models.BackendError{
			StatusCode: resp.StatusCode,
			Code:       StatusCode(resp.StatusCode),
			Message:    errorMessage(env.Detail, body, resp.StatusCode),
		}
	}

	if parseErr != nil {
		if out == nil {
			return nil
		}
		return &models.BackendError{
			StatusCode: resp.StatusCode,
			Code:       "MALFORMED_RESPONSE",
			Message:    fmt.Sprintf("response is not valid JSON: %v", parseErr),
		}
	}

	return env.Decode(resp.StatusCode, out)
}

// StatusCode maps an HTTP status to the backend's error code vocabulary
func StatusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	return fmt.Sprintf("HTTP_%d", status)
}

func errorMessage(detail json.RawMessage, body []byte, status int) string {
	if len(detail) > 0 {
		var text string
		if err := json.Unmarshal(detail, &text); err == nil && text != "" {
			return text
		}
		return string(detail)
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 200 && !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	return http.StatusText(status)
}
