package models

import (
	"fmt"
	"strings"
	"time"
)

// LogEntry represents a single line of a job log
type LogEntry struct {
	Timestamp *Timestamp `json:"created_at"`
	Message   string     `json:"message"`
}

// String renders the entry as "15:04:05 message", or just the message when no timestamp was recorded
func (e LogEntry) String() string {
	if e.Timestamp == nil || e.Timestamp.IsZero() {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Timestamp.Local().Format("15:04:05"), e.Message)
}

// Timestamp decodes the backend's ISO-8601 datetimes, which may or may not carry a zone offset.
// A JSON null decodes to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
