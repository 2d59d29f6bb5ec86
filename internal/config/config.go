// Package config loads daemon settings from a YAML or JSON file with
// EM_ environment overrides.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sweeney/energy-monitor/internal/display"
	"github.com/sweeney/energy-monitor/internal/influx"
	"github.com/sweeney/energy-monitor/internal/mqtt"
	"github.com/sweeney/energy-monitor/internal/pages"
	"github.com/sweeney/energy-monitor/internal/pzem"
	"github.com/sweeney/energy-monitor/internal/ssdp"
	"github.com/sweeney/energy-monitor/internal/touch"
)

// EnvPrefix marks environment overrides: EM_MQTT__SERVER sets mqtt.server.
const EnvPrefix = "EM_"

// Touch sources.
const (
	TouchGPIO = "gpio"
	TouchNone = "none"
)

// Display panels.
const (
	PanelMemory  = "memory"
	PanelSSD1306 = "ssd1306"
)

// Config is the full daemon configuration.
type Config struct {
	Name     string        `koanf:"name"`
	LogLevel string        `koanf:"log_level"`
	MQTT     MQTTConfig    `koanf:"mqtt"`
	PZEM     PZEMConfig    `koanf:"pzem"`
	Touch    TouchConfig   `koanf:"touch"`
	Pages    PagesConfig   `koanf:"pages"`
	Display  DisplayConfig `koanf:"display"`
	Network  NetworkConfig `koanf:"network"`
	Web      WebConfig     `koanf:"web"`
	Influx   InfluxConfig  `koanf:"influx"`
	SSDP     SSDPConfig    `koanf:"ssdp"`
}

// MQTTConfig mirrors the mqtt block of the firmware settings file.
type MQTTConfig struct {
	Server         string        `koanf:"server"`
	User           string        `koanf:"user"`
	Password       string        `koanf:"password"`
	Topic          string        `koanf:"topic"`
	ClientID       string        `koanf:"client_id"`
	BufferSize     int           `koanf:"buffer_size"`
	QueueSize      int           `koanf:"queue_size"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	Heartbeat      time.Duration `koanf:"heartbeat"`
}

// PZEMConfig describes the serial link to the meter.
type PZEMConfig struct {
	Device       string        `koanf:"device"`
	BaudRate     int           `koanf:"baud_rate"`
	Address      int           `koanf:"address"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	ProbeBackoff time.Duration `koanf:"probe_backoff"`
}

// TouchConfig lists the touch pads.
type TouchConfig struct {
	Source   string                `koanf:"source"`
	Chip     string                `koanf:"chip"`
	Channels []touch.ChannelConfig `koanf:"channels"`
}

// PagesConfig holds the loop timing and page layout.
type PagesConfig struct {
	Count            int           `koanf:"count"`
	NextChannel      int           `koanf:"next_channel"`
	Tick             time.Duration `koanf:"tick"`
	SampleInterval   time.Duration `koanf:"sample_interval"`
	RenderInterval   time.Duration `koanf:"render_interval"`
	AlwaysFullRedraw []int         `koanf:"always_full_redraw"`
}

// DisplayConfig selects the panel.
type DisplayConfig struct {
	Panel   string `koanf:"panel"`
	I2CBus  string `koanf:"i2c_bus"`
	Width   int    `koanf:"width"`
	Height  int    `koanf:"height"`
	History int    `koanf:"history"`
}

// NetworkConfig controls the link watcher.
type NetworkConfig struct {
	EnvFile       string        `koanf:"env_file"`
	CheckInterval time.Duration `koanf:"check_interval"`
}

// WebConfig controls the HTTP server. An empty Addr disables it.
type WebConfig struct {
	Addr string `koanf:"addr"`
	CORS bool   `koanf:"cors"`
}

// InfluxConfig is the optional time-series sink. An empty URL disables it.
type InfluxConfig struct {
	URL    string `koanf:"url"`
	Token  string `koanf:"token"`
	Org    string `koanf:"org"`
	Bucket string `koanf:"bucket"`
}

// SSDPConfig mirrors the ssdp_name/ssdp_modelname settings of the firmware.
// An empty Name advertises the device name.
type SSDPConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Name            string        `koanf:"name"`
	ModelName       string        `koanf:"model_name"`
	ModelNumber     string        `koanf:"model_number"`
	Manufacturer    string        `koanf:"manufacturer"`
	ManufacturerURL string        `koanf:"manufacturer_url"`
	MaxAge          int           `koanf:"max_age"`
	Interval        time.Duration `koanf:"interval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Name:     mqtt.DefaultName,
		LogLevel: "info",
		MQTT: MQTTConfig{
			Server:         "tcp://192.168.1.200:1883",
			Topic:          mqtt.DefaultTopicPrefix,
			BufferSize:     mqtt.DefaultBufferSize,
			QueueSize:      mqtt.DefaultQueueSize,
			ConnectTimeout: mqtt.DefaultConnectTimeout,
			RetryInterval:  mqtt.DefaultRetryInterval,
			Heartbeat:      15 * time.Minute,
		},
		PZEM: PZEMConfig{
			Device:       "/dev/ttyUSB0",
			BaudRate:     pzem.DefaultBaudRate,
			Address:      pzem.GeneralAddress,
			ReadTimeout:  pzem.DefaultReadTimeout,
			ProbeBackoff: pzem.DefaultProbeBackoff,
		},
		Touch: TouchConfig{
			Source: TouchNone,
			Chip:   touch.DefaultChip,
		},
		Pages: PagesConfig{
			Count:            display.PageCount,
			NextChannel:      0,
			Tick:             50 * time.Millisecond,
			SampleInterval:   pages.DefaultSampleInterval,
			RenderInterval:   pages.DefaultRenderInterval,
			AlwaysFullRedraw: []int{display.PageChart},
		},
		Display: DisplayConfig{
			Panel:   PanelMemory,
			Width:   display.DefaultWidth,
			Height:  display.DefaultHeight,
			History: display.DefaultHistorySize,
		},
		Network: NetworkConfig{
			EnvFile:       "/run/pi-helper.env",
			CheckInterval: 5 * time.Second,
		},
		Web: WebConfig{
			Addr: ":80",
			CORS: true,
		},
		SSDP: SSDPConfig{
			Enabled:         true,
			ModelName:       "PZEM-004T",
			ModelNumber:     "v3",
			Manufacturer:    "aitchpea",
			ManufacturerURL: "https://aitchpea.com",
			MaxAge:          ssdp.DefaultMaxAge,
			Interval:        ssdp.DefaultInterval,
		},
	}
}

// Load reads path (YAML or JSON by extension) over the defaults, then
// applies EM_ environment overrides. An empty path uses defaults and
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyTouchDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyTouchDefaults gives channels without a threshold the pad default.
func (c *Config) applyTouchDefaults() {
	for i := range c.Touch.Channels {
		if c.Touch.Channels[i].Threshold == 0 {
			c.Touch.Channels[i].Threshold = touch.DefaultThreshold
		}
	}
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks ranges and cross references.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.MQTT.Server == "" {
		return fmt.Errorf("mqtt.server is required")
	}
	if c.PZEM.Address < 1 || c.PZEM.Address > 0xF8 {
		return fmt.Errorf("pzem.address %d out of range 1..248", c.PZEM.Address)
	}
	if c.Pages.Count < 1 || c.Pages.Count > display.PageCount {
		return fmt.Errorf("pages.count %d out of range 1..%d", c.Pages.Count, display.PageCount)
	}
	if c.Pages.Tick <= 0 || c.Pages.SampleInterval <= 0 || c.Pages.RenderInterval <= 0 {
		return fmt.Errorf("pages tick and intervals must be positive")
	}
	for _, p := range c.Pages.AlwaysFullRedraw {
		if p < 0 || p >= c.Pages.Count {
			return fmt.Errorf("pages.always_full_redraw: page %d out of range", p)
		}
	}
	switch c.Touch.Source {
	case TouchGPIO, TouchNone:
	default:
		return fmt.Errorf("touch.source %q: want %s or %s", c.Touch.Source, TouchGPIO, TouchNone)
	}
	seen := make(map[int]bool)
	for _, ch := range c.Touch.Channels {
		if seen[ch.ID] {
			return fmt.Errorf("touch.channels: duplicate id %d", ch.ID)
		}
		seen[ch.ID] = true
		if ch.Threshold < 0 {
			return fmt.Errorf("touch.channels: id %d has negative threshold", ch.ID)
		}
	}
	if len(c.Touch.Channels) > 0 && !seen[c.Pages.NextChannel] {
		return fmt.Errorf("pages.next_channel %d is not a configured touch channel", c.Pages.NextChannel)
	}
	switch c.Display.Panel {
	case PanelMemory, PanelSSD1306:
	default:
		return fmt.Errorf("display.panel %q: want %s or %s", c.Display.Panel, PanelMemory, PanelSSD1306)
	}
	if c.Network.CheckInterval <= 0 {
		return fmt.Errorf("network.check_interval must be positive")
	}
	if c.Influx.URL != "" && c.Influx.Bucket == "" {
		return fmt.Errorf("influx.bucket is required when influx.url is set")
	}
	if c.SSDP.Enabled {
		if _, err := c.webPort(); err != nil {
			return fmt.Errorf("ssdp needs the web server: %w", err)
		}
		if c.SSDP.MaxAge <= 0 || c.SSDP.Interval <= 0 {
			return fmt.Errorf("ssdp.max_age and ssdp.interval must be positive")
		}
	}
	return nil
}

func (c *Config) webPort() (int, error) {
	if c.Web.Addr == "" {
		return 0, fmt.Errorf("web.addr is empty")
	}
	_, p, err := net.SplitHostPort(c.Web.Addr)
	if err != nil {
		return 0, fmt.Errorf("web.addr: %w", err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("web.addr: bad port %q", p)
	}
	return port, nil
}

// Topics returns the resolved MQTT topics.
func (c *Config) Topics() mqtt.Topics {
	return mqtt.NewTopics(c.MQTT.Topic, c.Name)
}

// Publisher returns the broker settings.
func (c *Config) Publisher() mqtt.Config {
	return mqtt.Config{
		Broker:         c.MQTT.Server,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.User,
		Password:       c.MQTT.Password,
		Topics:         c.Topics(),
		BufferSize:     c.MQTT.BufferSize,
		ConnectTimeout: c.MQTT.ConnectTimeout,
		RetryInterval:  c.MQTT.RetryInterval,
	}
}

// Serial returns the meter link settings.
func (c *Config) Serial() pzem.SerialConfig {
	return pzem.SerialConfig{
		Device:       c.PZEM.Device,
		BaudRate:     c.PZEM.BaudRate,
		Address:      uint8(c.PZEM.Address),
		ReadTimeout:  c.PZEM.ReadTimeout,
		ProbeBackoff: c.PZEM.ProbeBackoff,
	}
}

// Scheduler returns the page scheduler settings.
func (c *Config) Scheduler() pages.Config {
	return pages.Config{
		PageCount:        c.Pages.Count,
		NextPageChannel:  c.Pages.NextChannel,
		SampleInterval:   c.Pages.SampleInterval,
		RenderInterval:   c.Pages.RenderInterval,
		AlwaysFullRedraw: c.Pages.AlwaysFullRedraw,
	}
}

// InfluxSink returns the InfluxDB settings.
func (c *Config) InfluxSink() influx.Config {
	return influx.Config{
		URL:    c.Influx.URL,
		Token:  c.Influx.Token,
		Org:    c.Influx.Org,
		Bucket: c.Influx.Bucket,
	}
}

// Advertisement returns the SSDP device settings.
func (c *Config) Advertisement() ssdp.Config {
	name := c.SSDP.Name
	if name == "" {
		name = c.Name
	}
	port, _ := c.webPort()
	return ssdp.Config{
		Name:            name,
		ModelName:       c.SSDP.ModelName,
		ModelNumber:     c.SSDP.ModelNumber,
		Manufacturer:    c.SSDP.Manufacturer,
		ManufacturerURL: c.SSDP.ManufacturerURL,
		Port:            port,
		MaxAge:          c.SSDP.MaxAge,
		Interval:        c.SSDP.Interval,
	}
}
