package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/energy-monitor/internal/touch"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `name: solar
log_level: debug
mqtt:
  server: tcp://broker:1883
  user: meter
  password: secret
  topic: /esp32/Electricity/
  heartbeat: 5m
pzem:
  device: /dev/ttyAMA0
  address: 1
  read_timeout: 500ms
touch:
  source: gpio
  channels:
    - id: 0
      threshold: 20
      line: 17
    - id: 1
      threshold: 30
      line: 27
pages:
  next_channel: 1
  sample_interval: 2s
display:
  panel: ssd1306
  i2c_bus: "1"
influx:
  url: http://influx:8086
  org: home
  bucket: energy
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"name", cfg.Name, "solar"},
		{"log_level", cfg.LogLevel, "debug"},
		{"server", cfg.MQTT.Server, "tcp://broker:1883"},
		{"user", cfg.MQTT.User, "meter"},
		{"heartbeat", cfg.MQTT.Heartbeat, 5 * time.Minute},
		{"device", cfg.PZEM.Device, "/dev/ttyAMA0"},
		{"address", cfg.PZEM.Address, 1},
		{"read_timeout", cfg.PZEM.ReadTimeout, 500 * time.Millisecond},
		{"baud default", cfg.PZEM.BaudRate, 9600},
		{"touch source", cfg.Touch.Source, TouchGPIO},
		{"next channel", cfg.Pages.NextChannel, 1},
		{"sample interval", cfg.Pages.SampleInterval, 2 * time.Second},
		{"render default", cfg.Pages.RenderInterval, 200 * time.Millisecond},
		{"panel", cfg.Display.Panel, PanelSSD1306},
		{"influx bucket", cfg.Influx.Bucket, "energy"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
	assert.Equal(t, []touch.ChannelConfig{
		{ID: 0, Threshold: 20, Line: 17},
		{ID: 1, Threshold: 30, Line: 27},
	}, cfg.Touch.Channels)

	topics := cfg.Topics()
	assert.Equal(t, "/esp32/Electricity/solar", topics.Telemetry)
	assert.Equal(t, "/esp32/Electricity/solar/system", topics.System)

	pub := cfg.Publisher()
	assert.Equal(t, "meter", pub.Username)
	assert.Equal(t, "secret", pub.Password)

	assert.Equal(t, uint8(1), cfg.Serial().Address)
	assert.Equal(t, 2*time.Second, cfg.Scheduler().SampleInterval)
	assert.True(t, cfg.InfluxSink().Enabled())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "settings.json", `{"mqtt":{"server":"tcp://10.0.0.2:1883","topic":"/esp32/Electricity/"},"name":"house"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.MQTT.Server)
	assert.Equal(t, "house", cfg.Name)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.MQTT.Server, cfg.MQTT.Server)
	assert.Equal(t, 3, cfg.Pages.Count)
	assert.Equal(t, []int{1}, cfg.Pages.AlwaysFullRedraw)
	assert.Equal(t, TouchNone, cfg.Touch.Source)
	assert.Equal(t, 0xF8, cfg.PZEM.Address)
	assert.False(t, cfg.InfluxSink().Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EM_MQTT__SERVER", "tcp://env-broker:1883")
	t.Setenv("EM_PAGES__RENDER_INTERVAL", "400ms")
	t.Setenv("EM_NAME", "garage")

	path := writeFile(t, "config.yaml", "mqtt:\n  server: tcp://file-broker:1883\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.Server)
	assert.Equal(t, 400*time.Millisecond, cfg.Pages.RenderInterval)
	assert.Equal(t, "garage", cfg.Name)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "config.toml", "name = 'x'")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownPages(t *testing.T) {
	path := writeFile(t, "config.yaml", "pages:\n  count: 4\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "pages.count")
}

func TestLoadDefaultsTouchThreshold(t *testing.T) {
	path := writeFile(t, "config.yaml", `touch:
  source: gpio
  channels:
    - id: 0
      line: 17
    - id: 1
      line: 27
      threshold: 35
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Touch.Channels, 2)
	assert.Equal(t, touch.DefaultThreshold, cfg.Touch.Channels[0].Threshold)
	assert.Equal(t, 35, cfg.Touch.Channels[1].Threshold)

	// A GPIO pad reports RawTouched, which must read as touched.
	d := touch.NewDebouncer(cfg.Touch.Channels)
	assert.False(t, d.Poll(0, touch.RawTouched))
	assert.True(t, d.Poll(0, touch.RawTouched), "held pad should fire on the second poll")
}

func TestLoadSSDP(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "name": "solar",
  "web": {"addr": ":8080"},
  "ssdp": {"name": "Solar meter", "model_name": "PZEM-004T-100A"}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	ad := cfg.Advertisement()
	assert.Equal(t, "Solar meter", ad.Name)
	assert.Equal(t, "PZEM-004T-100A", ad.ModelName)
	assert.Equal(t, "aitchpea", ad.Manufacturer)
	assert.Equal(t, 8080, ad.Port)
	assert.Equal(t, 1800, ad.MaxAge)
}

func TestAdvertisementDefaultsToDeviceName(t *testing.T) {
	cfg := Default()
	cfg.Name = "garage"
	ad := cfg.Advertisement()
	assert.Equal(t, "garage", ad.Name)
	assert.Equal(t, 80, ad.Port)
}

func TestSSDPDisabledNeedsNoWeb(t *testing.T) {
	cfg := Default()
	cfg.SSDP.Enabled = false
	cfg.Web.Addr = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no name", func(c *Config) { c.Name = "" }, "name is required"},
		{"no server", func(c *Config) { c.MQTT.Server = "" }, "mqtt.server"},
		{"address zero", func(c *Config) { c.PZEM.Address = 0 }, "pzem.address"},
		{"no pages", func(c *Config) { c.Pages.Count = 0 }, "pages.count"},
		{"more pages than the renderer draws", func(c *Config) { c.Pages.Count = 4 }, "pages.count 4 out of range"},
		{"zero tick", func(c *Config) { c.Pages.Tick = 0 }, "must be positive"},
		{"full redraw out of range", func(c *Config) { c.Pages.AlwaysFullRedraw = []int{3} }, "always_full_redraw"},
		{"bad touch source", func(c *Config) { c.Touch.Source = "adc" }, "touch.source"},
		{"duplicate channel", func(c *Config) {
			c.Touch.Channels = []touch.ChannelConfig{{ID: 0, Threshold: 20}, {ID: 0, Threshold: 20}}
		}, "duplicate id"},
		{"negative threshold", func(c *Config) {
			c.Touch.Channels = []touch.ChannelConfig{{ID: 0, Threshold: -1}}
		}, "negative threshold"},
		{"unbound next channel", func(c *Config) {
			c.Touch.Channels = []touch.ChannelConfig{{ID: 2, Threshold: 20}}
		}, "pages.next_channel"},
		{"bad panel", func(c *Config) { c.Display.Panel = "epaper" }, "display.panel"},
		{"zero network check", func(c *Config) { c.Network.CheckInterval = 0 }, "network.check_interval"},
		{"influx without bucket", func(c *Config) { c.Influx.URL = "http://influx:8086" }, "influx.bucket"},
		{"ssdp without web", func(c *Config) { c.Web.Addr = "" }, "ssdp needs the web server"},
		{"ssdp bad port", func(c *Config) { c.Web.Addr = ":http-alt" }, "bad port"},
		{"ssdp zero max age", func(c *Config) { c.SSDP.MaxAge = 0 }, "ssdp.max_age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	def := Default()
	assert.NoError(t, def.Validate())
}
