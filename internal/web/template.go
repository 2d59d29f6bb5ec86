package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/energy-monitor/internal/status"
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
	"link": func(up bool) string {
		if up {
			return "connected"
		}
		return "disconnected"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Energy Monitor{{if .Config.Name}} ({{.Config.Name}}){{end}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.alarm { color: red; font-weight: bold; }
img.screen { image-rendering: pixelated; border: 1px solid #444; }
</style>
</head>
<body>
<h1>Energy Monitor{{if .Config.Name}}: {{.Config.Name}}{{end}}</h1>

{{if .ShowScreen}}<p><img class="screen" src="/screen.png?scale=3" alt="display page {{.PageIndex}}"></p>{{end}}

<h2>Reading</h2>
{{if .HasReading}}<table>
<tr><th>Voltage</th><td>{{printf "%.1f" .Reading.Voltage}} V</td></tr>
<tr><th>Current</th><td>{{printf "%.3f" .Reading.Current}} A</td></tr>
<tr><th>Power</th><td>{{printf "%.1f" .Reading.Power}} W</td></tr>
<tr><th>Energy</th><td>{{printf "%.0f" .Reading.Energy}} Wh</td></tr>
<tr><th>Frequency</th><td>{{printf "%.1f" .Reading.Frequency}} Hz</td></tr>
<tr><th>Power factor</th><td>{{printf "%.2f" .Reading.PowerFactor}}</td></tr>
{{if .Reading.Alarm}}<tr><th>Alarm</th><td class="alarm">power threshold exceeded</td></tr>{{end}}
<tr><th>Read at</th><td>{{.Reading.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>
{{if .ShowReset}}<form method="post" action="/reset"><button type="submit">Reset energy</button></form>{{end}}
{{else}}<p>No reading yet.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>Sensor</th><td class="{{link .SensorConnected}}">{{link .SensorConnected}}</td></tr>
<tr><th>Serial</th><td>{{.Config.SerialDevice}}</td></tr>
<tr><th>MQTT</th><td class="{{link .MQTTConnected}}">{{link .MQTTConnected}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Samples</th><td>{{.Counters.Samples}}</td></tr>
<tr><th>Sample errors</th><td>{{.Counters.SampleErrors}}</td></tr>
<tr><th>Publishes</th><td>{{.Counters.Publishes}}</td></tr>
<tr><th>Publish errors</th><td>{{.Counters.PublishErrors}}</td></tr>
<tr><th>Renders</th><td>{{.Counters.Renders}} ({{.Counters.FullRenders}} full)</td></tr>
<tr><th>Page changes</th><td>{{.Counters.PageChanges}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Page</th><td>{{.PageIndex}} of {{.Config.PageCount}}</td></tr>
<tr><th>Sample interval</th><td>{{.Config.SampleIntervalMs}}ms</td></tr>
<tr><th>Render interval</th><td>{{.Config.RenderIntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, showScreen, showReset bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		ShowScreen bool
		ShowReset  bool
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		ShowScreen: showScreen,
		ShowReset:  showReset,
	}
	indexTmpl.Execute(w, data)
}
