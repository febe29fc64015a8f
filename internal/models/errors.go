package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated means no usable credential exists and the user must log in again.
// It is always accompanied by a login-required event.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrJobTimeout means the client-side polling budget ran out before the job reached a terminal status.
// The job may still complete server-side.
var ErrJobTimeout = errors.New("job polling budget exhausted")

// NetworkError is a transport-level failure: no response was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// BackendError is a well-formed error response from the API.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s (status: %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status: %d)", msg, e.StatusCode)
}

// IsBackendCode reports whether err is a BackendError carrying the given code
func IsBackendCode(err error, code string) bool {
	var be *BackendError
	return errors.As(err, &be) && strings.EqualFold(be.Code, code)
}

// DisplayMessage maps an error to the single line shown to the user.
// fallback is used for backend errors without a message.
func DisplayMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	var ne *NetworkError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Session expired"
	case errors.Is(err, ErrJobTimeout):
		return "Timed out waiting for job"
	case errors.As(err, &ne):
		return "Network error"
	case errors.As(err, &be):
		if be.Message != "" {
			return be.Message
		}
		if be.Code != "" && fallback == "" {
			return be.Code
		}
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
