package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/sonar-sensor/internal/clock"
	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/hcsr04"
	"github.com/sweeney/sonar-sensor/internal/mqtt"
	"github.com/sweeney/sonar-sensor/internal/rangefinder"
	"github.com/sweeney/sonar-sensor/internal/status"
)

// echoPort wraps a FakePort so the echo pin comes up with scripted levels,
// letting the presence probe see (or not see) a sensor.
type echoPort struct {
	*gpio.FakePort
	echoPin int
	levels  []bool
}

func (p *echoPort) ClaimInput(pin int) (gpio.InputPin, error) {
	in, err := p.FakePort.ClaimInput(pin)
	if err != nil {
		return nil, err
	}
	if pin == p.echoPin {
		in.(*gpio.FakeInputPin).Levels = p.levels
	}
	return in, nil
}

// detectWithEcho runs the presence probe against a fake sensor that answers
// the first trigger pulse, returning the driver and its fakes.
func detectWithEcho(t *testing.T, clk *clock.Fake) (*hcsr04.Driver, *gpio.FakePort, *gpio.FakeInputPin) {
	t.Helper()

	// One idle read for the precondition check, then the line goes high.
	port := &echoPort{
		FakePort: gpio.NewFakePort(),
		echoPin:  gpio.DefaultPinEcho,
		levels:   []bool{false, true},
	}

	dev, err := hcsr04.Detect(port, hcsr04.Config{
		TriggerPin: gpio.DefaultPinTrigger,
		EchoPin:    gpio.DefaultPinEcho,
		Clock:      clk,
	})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	echo := port.Inputs[gpio.DefaultPinEcho]
	if echo.Handler == nil {
		t.Fatal("expected edge handler installed after detection")
	}
	return dev, port.FakePort, echo
}

// measure simulates one poll cycle: fire a pulse, then deliver the echo's
// rising and falling edges travelUs apart.
func measure(clk *clock.Fake, dev *hcsr04.Driver, echo *gpio.FakeInputPin, travelUs int64) {
	clk.AdvanceMillis(100)
	dev.Update()
	clk.AdvanceMillis(2)
	rise := clk.Micros()
	echo.InjectEdge(true, rise)
	echo.InjectEdge(false, rise+travelUs)
}

// TestIntegrationFullFlow tests the complete flow from presence probe through
// measurement to MQTT using fakes. The sensor goes: nothing in range, then a
// target at 42 cm, then it stops answering, then a target at 100 cm.
func TestIntegrationFullFlow(t *testing.T) {
	clk := clock.NewFake(5_000_000)
	dev, _, echo := detectWithEcho(t, clk)

	publisher := mqtt.NewFakePublisher()
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	lastStatus := rangefinder.StatusOutOfRange
	poll := func(tick int) {
		distance := dev.Read()
		st := rangefinder.Classify(distance)
		if st == lastStatus {
			return
		}
		lastStatus = st
		event := mqtt.RangeEvent{
			Timestamp:  startTime.Add(time.Duration(tick) * 100 * time.Millisecond),
			Event:      mqtt.EventStatusChange,
			DistanceCm: distance,
			Status:     st,
		}
		if err := publisher.PublishRange(event); err != nil {
			t.Fatalf("tick %d: publish error: %v", tick, err)
		}
	}

	// Target appears at 42 cm.
	measure(clk, dev, echo, 42*59)
	poll(0)

	// Still at 42 cm: no transition.
	measure(clk, dev, echo, 42*59)
	poll(1)

	// Sensor stops answering: pulse fired, no echo, window expires.
	clk.AdvanceMillis(100)
	dev.Update()
	clk.AdvanceMillis(61)
	poll(2)

	// Sensor recovers with a target at 100 cm.
	measure(clk, dev, echo, 100*59)
	poll(3)

	// Verify published events
	if len(publisher.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(publisher.Events))
	}

	// Event 1: out of range -> OK at 42 cm
	if publisher.Events[0].Status != rangefinder.StatusOK {
		t.Errorf("event 0: expected OK, got %s", publisher.Events[0].Status)
	}
	if publisher.Events[0].DistanceCm != 42 {
		t.Errorf("event 0: expected 42 cm, got %d", publisher.Events[0].DistanceCm)
	}

	// Event 2: sensor timeout
	if publisher.Events[1].Status != rangefinder.StatusHardwareFailure {
		t.Errorf("event 1: expected HARDWARE_FAILURE, got %s", publisher.Events[1].Status)
	}
	if publisher.Events[1].DistanceCm != rangefinder.HardwareFailure {
		t.Errorf("event 1: expected sentinel %d, got %d", rangefinder.HardwareFailure, publisher.Events[1].DistanceCm)
	}

	// Event 3: recovery at 100 cm
	if publisher.Events[2].Status != rangefinder.StatusOK {
		t.Errorf("event 2: expected OK, got %s", publisher.Events[2].Status)
	}
	if publisher.Events[2].DistanceCm != 100 {
		t.Errorf("event 2: expected 100 cm, got %d", publisher.Events[2].DistanceCm)
	}

	// Verify JSON payloads
	for i, payload := range publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Errorf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Sonar.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if parsed.Sonar.Event != mqtt.EventStatusChange {
			t.Errorf("payload %d: expected STATUS_CHANGE, got %s", i, parsed.Sonar.Event)
		}
	}
}

// TestIntegrationNoEventsWhileOutOfRange verifies a sensor with nothing in
// range publishes nothing: its readings never leave the initial state.
func TestIntegrationNoEventsWhileOutOfRange(t *testing.T) {
	clk := clock.NewFake(5_000_000)
	dev, _, echo := detectWithEcho(t, clk)

	publisher := mqtt.NewFakePublisher()
	lastStatus := rangefinder.StatusOutOfRange

	for i := 0; i < 4; i++ {
		// Echoes come back, but past the 400 cm limit.
		measure(clk, dev, echo, 401*59)
		st := rangefinder.Classify(dev.Read())
		if st != lastStatus {
			lastStatus = st
			publisher.PublishRange(mqtt.RangeEvent{Event: mqtt.EventStatusChange, Status: st})
		}
	}

	if len(publisher.Events) != 0 {
		t.Errorf("expected no events while out of range, got %d", len(publisher.Events))
	}
}

// TestIntegrationDetectFailureThenRetry verifies a probe against a silent
// sensor releases the pins, so a later probe can claim them again.
func TestIntegrationDetectFailureThenRetry(t *testing.T) {
	clk := clock.NewFake(5_000_000)
	port := gpio.NewFakePort()

	cfg := hcsr04.Config{
		TriggerPin: gpio.DefaultPinTrigger,
		EchoPin:    gpio.DefaultPinEcho,
		Clock:      clk,
	}

	// Silent sensor: FakeInputPin's empty script reads as idle forever.
	if _, err := hcsr04.Detect(port, cfg); !errors.Is(err, hcsr04.ErrNotDetected) {
		t.Fatalf("expected ErrNotDetected, got %v", err)
	}
	if port.IsClaimed(cfg.TriggerPin) || port.IsClaimed(cfg.EchoPin) {
		t.Fatal("expected pins released after failed probe")
	}

	// Retry against a responding sensor on the same port.
	retryPort := &echoPort{FakePort: port, echoPin: cfg.EchoPin, levels: []bool{false, true}}
	dev, err := hcsr04.Detect(retryPort, cfg)
	if err != nil {
		t.Fatalf("retry detect: %v", err)
	}

	measure(clk, dev, port.Inputs[cfg.EchoPin], 200*59)
	if got := dev.Read(); got != 200 {
		t.Errorf("distance after retry: got %d, want 200", got)
	}
}

// TestIntegrationPayloadFormat verifies the exact JSON structure.
func TestIntegrationPayloadFormat(t *testing.T) {
	event := mqtt.RangeEvent{
		Timestamp:  time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:      mqtt.EventStatusChange,
		DistanceCm: 42,
		Status:     rangefinder.StatusOK,
	}

	publisher := mqtt.NewFakePublisher()
	publisher.PublishRange(event)

	expected := `{"sonar":{"timestamp":"2026-02-02T22:18:12Z","event":"STATUS_CHANGE","status":"OK","distance_cm":42}}`

	if string(publisher.Payloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(publisher.Payloads[0]), expected)
	}
}

// TestIntegrationSentinelPayloadFormat verifies sentinel readings publish
// status without a distance field.
func TestIntegrationSentinelPayloadFormat(t *testing.T) {
	event := mqtt.RangeEvent{
		Timestamp:  time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:      mqtt.EventStatusChange,
		DistanceCm: rangefinder.HardwareFailure,
		Status:     rangefinder.StatusHardwareFailure,
	}

	publisher := mqtt.NewFakePublisher()
	publisher.PublishRange(event)

	expected := `{"sonar":{"timestamp":"2026-02-02T22:18:12Z","event":"STATUS_CHANGE","status":"HARDWARE_FAILURE"}}`

	if string(publisher.Payloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(publisher.Payloads[0]), expected)
	}
}

// TestIntegrationShutdownEventSIGTERM verifies shutdown event on SIGTERM.
func TestIntegrationShutdownEventSIGTERM(t *testing.T) {
	publisher := mqtt.NewFakePublisher()

	shutdownTime := time.Date(2026, 2, 3, 15, 30, 0, 0, time.UTC)
	event := mqtt.SystemEvent{
		Timestamp: shutdownTime,
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	err := publisher.PublishSystem(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(publisher.SystemEvents))
	}

	if publisher.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN event, got %s", publisher.SystemEvents[0].Event)
	}
	if publisher.SystemEvents[0].Reason != "SIGTERM" {
		t.Errorf("expected SIGTERM reason, got %s", publisher.SystemEvents[0].Reason)
	}

	// Verify JSON payload structure
	var parsed mqtt.SystemPayload
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "SHUTDOWN" {
		t.Errorf("payload event: expected SHUTDOWN, got %s", parsed.System.Event)
	}
	if parsed.System.Reason != "SIGTERM" {
		t.Errorf("payload reason: expected SIGTERM, got %s", parsed.System.Reason)
	}
	if parsed.System.Timestamp != "2026-02-03T15:30:00Z" {
		t.Errorf("payload timestamp: expected 2026-02-03T15:30:00Z, got %s", parsed.System.Timestamp)
	}
}

// TestIntegrationShutdownPayloadFormat verifies the exact JSON structure for shutdown events.
func TestIntegrationShutdownPayloadFormat(t *testing.T) {
	publisher := mqtt.NewFakePublisher()

	event := mqtt.SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	publisher.PublishSystem(event)

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`

	if string(publisher.SystemPayloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(publisher.SystemPayloads[0]), expected)
	}
}

// TestIntegrationStartupSnapshot verifies the STARTUP event carries a full
// status snapshot built from the tracker.
func TestIntegrationStartupSnapshot(t *testing.T) {
	startTime := time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC)
	tracker := status.NewTracker(startTime, rangefinder.Spec{
		MaxRangeCm:                       hcsr04.MaxRangeCm,
		DetectionConeDeciDegrees:         hcsr04.DetectionConeDeciDegrees,
		DetectionConeExtendedDeciDegrees: hcsr04.DetectionConeExtendedDeciDegrees,
		DelayMs:                          hcsr04.RecommendedDelayMs,
	}, status.Config{
		TriggerPin:  23,
		EchoPin:     24,
		PollMs:      100,
		ReportMs:    1000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
	})

	publisher := mqtt.NewFakePublisher()
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}

	if err := publisher.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "STARTUP" {
		t.Errorf("payload event: expected STARTUP, got %s", parsed.Status.Event)
	}
	if parsed.Status.SensorStatus != "OUT_OF_RANGE" {
		t.Errorf("payload sensor_status: expected OUT_OF_RANGE, got %s", parsed.Status.SensorStatus)
	}
	if parsed.Status.DistanceCm != nil {
		t.Error("payload should omit distance_cm before the first in-range reading")
	}
	if parsed.Status.Device.MaxRangeCm != 400 {
		t.Errorf("payload max_range_cm: expected 400, got %d", parsed.Status.Device.MaxRangeCm)
	}
	if parsed.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("payload broker: expected tcp://192.168.1.200:1883, got %s", parsed.Status.Config.Broker)
	}
	if parsed.Status.Config.PollMs != 100 {
		t.Errorf("payload poll_ms: expected 100, got %d", parsed.Status.Config.PollMs)
	}
}

// TestIntegrationStartupThenShutdown verifies full lifecycle ordering.
func TestIntegrationStartupThenShutdown(t *testing.T) {
	publisher := mqtt.NewFakePublisher()

	startupEvent := mqtt.SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC),
		Event:     "STARTUP",
		Retained:  true,
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		t.Fatalf("startup publish error: %v", err)
	}

	rangeEvent := mqtt.RangeEvent{
		Timestamp:  time.Date(2026, 2, 3, 19, 6, 0, 0, time.UTC),
		Event:      mqtt.EventStatusChange,
		DistanceCm: 42,
		Status:     rangefinder.StatusOK,
	}
	if err := publisher.PublishRange(rangeEvent); err != nil {
		t.Fatalf("range publish error: %v", err)
	}

	shutdownEvent := mqtt.SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 10, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}
	if err := publisher.PublishSystem(shutdownEvent); err != nil {
		t.Fatalf("shutdown publish error: %v", err)
	}

	if len(publisher.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(publisher.SystemEvents))
	}
	if len(publisher.Events) != 1 {
		t.Fatalf("expected 1 range event, got %d", len(publisher.Events))
	}

	if publisher.SystemEvents[0].Event != "STARTUP" {
		t.Errorf("first system event should be STARTUP, got %s", publisher.SystemEvents[0].Event)
	}
	if publisher.SystemEvents[1].Event != "SHUTDOWN" {
		t.Errorf("second system event should be SHUTDOWN, got %s", publisher.SystemEvents[1].Event)
	}
	if publisher.SystemEvents[1].Reason != "SIGTERM" {
		t.Errorf("shutdown event should have reason SIGTERM, got %s", publisher.SystemEvents[1].Reason)
	}
}

// TestIntegrationShutdownPublishFailureLogsButContinues verifies graceful handling of publish errors.
func TestIntegrationShutdownPublishFailureLogsButContinues(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	publisher.PublishSystemError = errors.New("broker disconnected")

	event := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	err := publisher.PublishSystem(event)

	// Should return error but not panic
	if err == nil {
		t.Error("expected error from publish")
	}

	// Should not have recorded the event
	if len(publisher.SystemEvents) != 0 {
		t.Errorf("expected no system events on error, got %d", len(publisher.SystemEvents))
	}
}

// TestIntegrationTrackerFollowsReadings verifies the web status tracker and
// the driver agree over a measurement sequence.
func TestIntegrationTrackerFollowsReadings(t *testing.T) {
	clk := clock.NewFake(5_000_000)
	dev, _, echo := detectWithEcho(t, clk)

	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), dev.Spec(), status.Config{
		TriggerPin: gpio.DefaultPinTrigger,
		EchoPin:    gpio.DefaultPinEcho,
	})

	// In range, then timeout, then back in range.
	measure(clk, dev, echo, 42*59)
	tracker.Update(dev.Read())

	clk.AdvanceMillis(100)
	dev.Update()
	clk.AdvanceMillis(61)
	tracker.Update(dev.Read())

	measure(clk, dev, echo, 42*59)
	tracker.Update(dev.Read())

	snap := tracker.Snapshot()
	if snap.Status != rangefinder.StatusOK {
		t.Errorf("final status: got %s, want OK", snap.Status)
	}
	if snap.DistanceCm != 42 {
		t.Errorf("final distance: got %d, want 42", snap.DistanceCm)
	}
	if snap.Counts.OK != 2 {
		t.Errorf("Counts.OK: got %d, want 2", snap.Counts.OK)
	}
	if snap.Counts.HardwareFailure != 1 {
		t.Errorf("Counts.HardwareFailure: got %d, want 1", snap.Counts.HardwareFailure)
	}
}
