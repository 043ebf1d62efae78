// Package status provides a thread-safe status tracker for the sonar-sensor
// daemon. It is designed to be read by HTTP handlers and the MQTT lifecycle
// events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sonar-sensor/internal/rangefinder"
)

// NetworkInfo contains network state reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TriggerPin  int
	EchoPin     int
	PollMs      int64
	ReportMs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Counts tracks classification transitions since startup.
type Counts struct {
	OK              int
	OutOfRange      int
	HardwareFailure int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	DistanceCm    int32
	Status        rangefinder.Status
	Counts        Counts
	Device        rangefinder.Spec
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, device spec and config.
func NewTracker(startTime time.Time, device rangefinder.Spec, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			DistanceCm: rangefinder.OutOfRange,
			Status:     rangefinder.StatusOutOfRange,
			Device:     device,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// Update sets the latest reading. Called from the poll loop on every tick;
// transitions between classifications are counted.
func (t *Tracker) Update(distanceCm int32) {
	status := rangefinder.Classify(distanceCm)

	t.mu.Lock()
	if status != t.snap.Status {
		switch status {
		case rangefinder.StatusOK:
			t.snap.Counts.OK++
		case rangefinder.StatusOutOfRange:
			t.snap.Counts.OutOfRange++
		case rangefinder.StatusHardwareFailure:
			t.snap.Counts.HardwareFailure++
		}
	}
	t.snap.DistanceCm = distanceCm
	t.snap.Status = status
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
