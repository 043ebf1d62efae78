// Command sonar-sensor drives an HC-SR04 ultrasonic rangefinder and publishes
// distance readings to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/sonar-sensor/internal/gpio"
	"github.com/sweeney/sonar-sensor/internal/hcsr04"
	"github.com/sweeney/sonar-sensor/internal/mqtt"
	"github.com/sweeney/sonar-sensor/internal/rangefinder"
	"github.com/sweeney/sonar-sensor/internal/status"
	"github.com/sweeney/sonar-sensor/internal/web"
)

func main() {
	chip := flag.String("chip", "gpiochip0", "GPIO character device")
	pinTrigger := flag.Int("pin-trigger", gpio.DefaultPinTrigger, "BCM pin number for the trigger line")
	pinEcho := flag.Int("pin-echo", gpio.DefaultPinEcho, "BCM pin number for the echo line")
	inverted := flag.Bool("inverted-trigger", false, "Invert trigger polarity for inverted wiring")
	detectAttempts := flag.Int("detect-attempts", hcsr04.DefaultDetectAttempts, "Trigger pulses fired by the presence probe before giving up")
	poll := flag.Duration("poll", time.Duration(hcsr04.RecommendedDelayMs)*time.Millisecond, "Sensor polling interval")
	report := flag.Duration("report", time.Second, "Periodic range report interval (0 to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	printDistance := flag.Bool("print-distance", false, "Print one distance reading and exit")

	flag.Parse()

	cfg := hcsr04.Config{
		TriggerPin:      *pinTrigger,
		EchoPin:         *pinEcho,
		InvertedTrigger: *inverted,
		DetectAttempts:  *detectAttempts,
	}

	if err := run(*chip, cfg, *poll, *report, *heartbeat, *broker, *httpAddr, *printDistance); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(chip string, cfg hcsr04.Config, poll, report, heartbeat time.Duration, broker, httpAddr string, printDistance bool) error {
	// Initialize GPIO and probe for the sensor
	port, err := gpio.NewRealPort(chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer port.Close()

	dev, err := hcsr04.Detect(port, cfg)
	if err != nil {
		if errors.Is(err, hcsr04.ErrNotDetected) {
			return fmt.Errorf("sensor not detected on trigger=%d echo=%d: %w", cfg.TriggerPin, cfg.EchoPin, err)
		}
		if errors.Is(err, gpio.ErrPinInUse) {
			return fmt.Errorf("pin conflict, is another process using the GPIO? %w", err)
		}
		return fmt.Errorf("detect sensor: %w", err)
	}
	defer dev.Close()
	log.Printf("sensor detected: trigger=%d echo=%d", cfg.TriggerPin, cfg.EchoPin)

	if err := dev.Init(); err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}

	// Print distance mode
	if printDistance {
		dev.Update()
		time.Sleep(time.Duration(dev.Spec().DelayMs) * time.Millisecond)
		distance := dev.Read()
		switch rangefinder.Classify(distance) {
		case rangefinder.StatusOK:
			fmt.Printf("%d cm\n", distance)
		default:
			fmt.Printf("%s\n", rangefinder.Classify(distance))
		}
		return nil
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), dev.Spec(), status.Config{
		TriggerPin:  cfg.TriggerPin,
		EchoPin:     cfg.EchoPin,
		PollMs:      poll.Milliseconds(),
		ReportMs:    report.Milliseconds(),
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      broker,
		HTTPAddr:    httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: poll=%v report=%v heartbeat=%v broker=%s", poll, report, heartbeat, broker)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(dev, publisher, publisher, tracker, report, heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(dev rangefinder.Device, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, report, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastStatus := rangefinder.StatusOutOfRange
	lastReport := startTime
	lastHeartbeat := startTime

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName(s),
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName(s))
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			dev.Update()
			distance := dev.Read()
			st := rangefinder.Classify(distance)

			if tracker != nil {
				tracker.Update(distance)
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			// Classification transitions are published immediately.
			if st != lastStatus {
				log.Printf("status: %s -> %s (distance=%d)", lastStatus, st, distance)
				lastStatus = st
				event := mqtt.RangeEvent{
					Timestamp:  t,
					Event:      mqtt.EventStatusChange,
					DistanceCm: distance,
					Status:     st,
				}
				if err := publisher.PublishRange(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			// Periodic range report.
			if report > 0 && t.Sub(lastReport) >= report {
				lastReport = t
				event := mqtt.RangeEvent{
					Timestamp:  t,
					Event:      mqtt.EventReport,
					DistanceCm: distance,
					Status:     st,
				}
				if err := publisher.PublishRange(event); err != nil {
					log.Printf("report publish error: %v", err)
				}
			}

			// Heartbeat with full status snapshot.
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					log.Printf("heartbeat: uptime=%v ok=%d oor=%d fail=%d",
						snap.Uptime().Truncate(time.Second), snap.Counts.OK, snap.Counts.OutOfRange, snap.Counts.HardwareFailure)
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
