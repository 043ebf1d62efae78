// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sonar-sensor/internal/rangefinder"
)

// Topic is the MQTT topic for range readings and classification changes.
const Topic = "sensors/sonar/range"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/sonar/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishRange sends a range event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishRange(event RangeEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Range event kinds.
const (
	// EventReport is a periodic range report.
	EventReport = "REPORT"

	// EventStatusChange marks a transition between OK, OUT_OF_RANGE and
	// HARDWARE_FAILURE.
	EventStatusChange = "STATUS_CHANGE"
)

// RangeEvent represents one published reading.
type RangeEvent struct {
	Timestamp  time.Time
	Event      string // EventReport or EventStatusChange
	DistanceCm int32  // sentinel values when Status is not OK
	Status     rangefinder.Status
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Sonar SonarPayload `json:"sonar"`
}

// SonarPayload contains the range event details. DistanceCm is present only
// when the status is OK; sentinel readings carry status alone.
type SonarPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Status     string `json:"status"`
	DistanceCm *int32 `json:"distance_cm,omitempty"`
}

// FormatRangePayload creates the JSON payload for a range event.
func FormatRangePayload(event RangeEvent) ([]byte, error) {
	payload := Payload{
		Sonar: SonarPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Status:    string(event.Status),
		},
	}
	if event.Status == rangefinder.StatusOK {
		d := event.DistanceCm
		payload.Sonar.DistanceCm = &d
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
