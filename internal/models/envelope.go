package models

import (
	"encoding/json"
	"fmt"
)

// Envelope is the standard API response: data, error and optional meta.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *EnvelopeError  `json:"error"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

// EnvelopeError is the error member of an Envelope
type EnvelopeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Decode unmarshals the data member into out.
// An error member, or a missing data member when out is non-nil, is reported as a BackendError.
func (e *Envelope) Decode(statusCode int, out any) error {
	if e.Error != nil {
		return &BackendError{
			StatusCode: statusCode,
			Code:       e.Error.Code,
			Message:    e.Error.Message,
			Details:    e.Error.Details,
		}
	}
	if out == nil {
		return nil
	}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return &BackendError{StatusCode: statusCode, Code: "EMPTY_RESPONSE", Message: "response carried no data"}
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
