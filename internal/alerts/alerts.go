// Package alerts holds the posture alert event and the bounded buffer of
// recently received alerts shown by the dashboard.
package alerts

import (
	"fmt"
	"strings"
	"time"
)

// Marker is the substring every valid alert message carries.
const Marker = "ALERT"

// TimestampLayout is the wire format of Event timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Event is a threshold-crossing alert emitted by the wearable.
type Event struct {
	OccurredAt time.Time
	Message    string
}

// Payload is the JSON body exchanged between the relay and the alert endpoint.
type Payload struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// IsValid reports whether message is non-empty and carries the alert marker.
func IsValid(message string) bool {
	return message != "" && strings.Contains(message, Marker)
}

// Payload converts the event to its wire form.
func (e Event) Payload() Payload {
	return Payload{
		Timestamp: e.OccurredAt.Format(TimestampLayout),
		Message:   e.Message,
	}
}

// String renders the event the way it is printed on the operator console.
func (e Event) String() string {
	return Format(e.OccurredAt.Format(TimestampLayout), e.Message)
}

// Format builds the display string kept in the Buffer. Empty fields fall back
// to placeholders so a partial payload still renders.
func Format(timestamp, message string) string {
	if timestamp == "" {
		timestamp = "No Timestamp"
	}
	if message == "" {
		message = "No Message"
	}
	return fmt.Sprintf("[%s] %s", timestamp, message)
}
