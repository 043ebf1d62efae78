package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sonar-sensor/internal/rangefinder"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	SensorStatus  string       `json:"sensor_status"`
	DistanceCm    *int32       `json:"distance_cm,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"transition_counts"`
	Device        DeviceJSON   `json:"device"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of classification transition counts.
type CountsJSON struct {
	OK              int `json:"ok"`
	OutOfRange      int `json:"out_of_range"`
	HardwareFailure int `json:"hardware_failure"`
}

// DeviceJSON is the JSON representation of the detected device's parameters.
type DeviceJSON struct {
	MaxRangeCm         int32 `json:"max_range_cm"`
	ConeDeciDegrees    int32 `json:"cone_decidegrees"`
	ConeExtDeciDegrees int32 `json:"cone_extended_decidegrees"`
	RecommendedDelayMs int64 `json:"recommended_delay_ms"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TriggerPin  int    `json:"trigger_pin"`
	EchoPin     int    `json:"echo_pin"`
	PollMs      int64  `json:"poll_ms"`
	ReportMs    int64  `json:"report_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		SensorStatus:  string(snap.Status),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			OK:              snap.Counts.OK,
			OutOfRange:      snap.Counts.OutOfRange,
			HardwareFailure: snap.Counts.HardwareFailure,
		},
		Device: DeviceJSON{
			MaxRangeCm:         snap.Device.MaxRangeCm,
			ConeDeciDegrees:    snap.Device.DetectionConeDeciDegrees,
			ConeExtDeciDegrees: snap.Device.DetectionConeExtendedDeciDegrees,
			RecommendedDelayMs: snap.Device.DelayMs,
		},
		Config: ConfigJSON{
			TriggerPin:  snap.Config.TriggerPin,
			EchoPin:     snap.Config.EchoPin,
			PollMs:      snap.Config.PollMs,
			ReportMs:    snap.Config.ReportMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.Status == rangefinder.StatusOK {
		d := snap.DistanceCm
		inner.DistanceCm = &d
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
