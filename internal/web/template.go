package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sonar-sensor/internal/rangefinder"
	"github.com/sweeney/sonar-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"statusClass": func(s rangefinder.Status) string {
		switch s {
		case rangefinder.StatusOK:
			return "ok"
		case rangefinder.StatusHardwareFailure:
			return "fail"
		default:
			return "oor"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Sonar Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.oor { color: orange; }
.fail { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sonar Sensor</h1>

<h2>Reading</h2>
<table>
<tr><th>Status</th><td class="{{statusClass .Status}}">{{.Status}}</td></tr>
{{if .HasDistance}}<tr><th>Distance</th><td class="ok">{{.DistanceCm}} cm</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} / {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Transitions</h2>
<table>
<tr><th>OK</th><td>{{.Counts.OK}}</td></tr>
<tr><th>Out of range</th><td>{{.Counts.OutOfRange}}</td></tr>
<tr><th>Hardware failure</th><td>{{.Counts.HardwareFailure}}</td></tr>
</table>

<h2>Device</h2>
<table>
<tr><th>Max range</th><td>{{.Device.MaxRangeCm}} cm</td></tr>
<tr><th>Detection cone</th><td>{{.Device.DetectionConeDeciDegrees}} / {{.Device.DetectionConeExtendedDeciDegrees}} decideg</td></tr>
<tr><th>Trigger pin</th><td>BCM {{.Config.TriggerPin}}</td></tr>
<tr><th>Echo pin</th><td>BCM {{.Config.EchoPin}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Report</th><td>{{if eq .Config.ReportMs 0}}disabled{{else}}{{.Config.ReportMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		HasDistance bool
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		HasDistance: snap.Status == rangefinder.StatusOK,
	}
	indexTmpl.Execute(w, data)
}
