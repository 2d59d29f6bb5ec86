// Command energy-monitor reads a PZEM-004T power meter, publishes readings
// to MQTT and shows them on a paged display driven by touch pads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/energy-monitor/internal/config"
	"github.com/sweeney/energy-monitor/internal/display"
	"github.com/sweeney/energy-monitor/internal/influx"
	"github.com/sweeney/energy-monitor/internal/logger"
	"github.com/sweeney/energy-monitor/internal/metrics"
	"github.com/sweeney/energy-monitor/internal/mqtt"
	"github.com/sweeney/energy-monitor/internal/network"
	"github.com/sweeney/energy-monitor/internal/pages"
	"github.com/sweeney/energy-monitor/internal/pzem"
	"github.com/sweeney/energy-monitor/internal/ssdp"
	"github.com/sweeney/energy-monitor/internal/status"
	"github.com/sweeney/energy-monitor/internal/touch"
	"github.com/sweeney/energy-monitor/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "energy-monitor",
		Short:        "Publish PZEM-004T power readings to MQTT",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (.yaml, .yml or .json)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the monitor (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cfgPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "read",
		Short: "Print one reading as JSON and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			sensor, err := pzem.OpenSerial(cfg.Serial())
			if err != nil {
				return fmt.Errorf("open sensor: %w", err)
			}
			defer sensor.Close()
			return printReading(cmd, sensor, time.Now())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "reset-energy",
		Short: "Reset the meter's energy counter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			sensor, err := pzem.OpenSerial(cfg.Serial())
			if err != nil {
				return fmt.Errorf("open sensor: %w", err)
			}
			defer sensor.Close()
			return resetEnergy(cmd, sensor)
		},
	})
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func printReading(cmd *cobra.Command, sensor pzem.Sensor, now time.Time) error {
	r, err := sensor.Read()
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	payload, err := mqtt.FormatPayload(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", payload)
	return nil
}

func resetEnergy(cmd *cobra.Command, sensor pzem.Sensor) error {
	if err := sensor.ResetEnergy(); err != nil {
		return fmt.Errorf("reset energy: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "energy counter reset")
	return nil
}

func openPanel(cfg *config.Config) (display.Panel, error) {
	if cfg.Display.Panel == config.PanelSSD1306 {
		return display.OpenSSD1306(cfg.Display.I2CBus, cfg.Display.Width, cfg.Display.Height)
	}
	return display.NewMemoryPanel(), nil
}

func openTouch(cfg *config.Config) (touch.Source, error) {
	if cfg.Touch.Source != config.TouchGPIO || len(cfg.Touch.Channels) == 0 {
		return nil, nil
	}
	return touch.NewGPIOSource(cfg.Touch.Chip, cfg.Touch.Channels)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Name:             cfg.Name,
		SampleIntervalMs: cfg.Pages.SampleInterval.Milliseconds(),
		RenderIntervalMs: cfg.Pages.RenderInterval.Milliseconds(),
		HeartbeatMs:      cfg.MQTT.Heartbeat.Milliseconds(),
		PageCount:        cfg.Pages.Count,
		Broker:           cfg.MQTT.Server,
		Topic:            cfg.Topics().Telemetry,
		SerialDevice:     cfg.PZEM.Device,
		HTTPAddr:         cfg.Web.Addr,
	}
}

func runDaemon(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	log := logger.New("main")

	sensor, err := pzem.OpenSerial(cfg.Serial())
	if err != nil {
		return fmt.Errorf("open sensor: %w", err)
	}
	defer sensor.Close()

	touchSrc, err := openTouch(cfg)
	if err != nil {
		return fmt.Errorf("init touch: %w", err)
	}
	if touchSrc != nil {
		defer touchSrc.Close()
	}

	panel, err := openPanel(cfg)
	if err != nil {
		return fmt.Errorf("init display: %w", err)
	}
	defer panel.Close()
	fb := display.NewFramebuffer(cfg.Display.Width, cfg.Display.Height, panel)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	broker := mqtt.NewRealPublisher(cfg.Publisher(), logger.New("mqtt"))
	var inner mqtt.Publisher = broker
	if ic := cfg.InfluxSink(); ic.Enabled() {
		sink := influx.NewSink(ic, cfg.Name, logger.New("influx"))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sink.Check(ctx); err != nil {
			log.Warn().Err(err).Msg("influx not reachable, writes will be retried per reading")
		}
		cancel()
		inner = influx.NewTee(broker, sink)
	}
	publisher := mqtt.NewAsync(inner, cfg.MQTT.QueueSize, logger.New("publisher"))
	defer publisher.Close()

	start := time.Now()
	tracker := status.NewTracker(start, statusConfig(cfg))
	publisher.OnResult = func(_ pzem.Telemetry, err error) {
		tracker.RecordPublish(err)
		m.Published(err)
	}

	l := &loop{
		touch:        touchSrc,
		sensor:       sensor,
		publisher:    publisher,
		renderer:     display.NewRenderer(fb),
		scheduler:    pages.NewScheduler(cfg.Scheduler(), cfg.Touch.Channels, start),
		tracker:      tracker,
		metrics:      m,
		watcher:      network.NewWatcher(network.FileSource(cfg.Network.EnvFile), broker),
		history:      display.NewHistory(cfg.Display.History),
		name:         cfg.Name,
		heartbeat:    cfg.MQTT.Heartbeat,
		networkCheck: cfg.Network.CheckInterval,
		log:          logger.New("loop"),
	}

	// STARTUP is queued before the broker connects; the offline buffer
	// delivers it once the link is up.
	l.publishStatus(start, "STARTUP", "", true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return broker.Maintain(ctx) })
	g.Go(func() error {
		publisher.Run()
		return nil
	})
	if cfg.Web.Addr != "" {
		opts := web.Options{
			Addr:     cfg.Web.Addr,
			CORS:     cfg.Web.CORS,
			Resetter: sensor,
			Screen:   fb,
			Metrics:  promhttp.Handler(),
			Log:      logger.New("web"),
		}
		if cfg.SSDP.Enabled {
			host := network.HostAddress(network.FileSource(cfg.Network.EnvFile))
			svc := ssdp.NewService(cfg.Advertisement(), host, logger.New("ssdp"))
			opts.Description = svc
			g.Go(func() error { return svc.Run(ctx) })
		}
		srv := web.New(opts, tracker)
		g.Go(func() error { return srv.Run(ctx) })
		log.Info().Str("addr", cfg.Web.Addr).Msg("http status server listening")
	}
	g.Go(func() error {
		defer cancel()
		defer publisher.Stop()
		ticker := time.NewTicker(cfg.Pages.Tick)
		defer ticker.Stop()
		return runLoop(ctx, l, time.Now, ticker.C, sigCh)
	})

	log.Info().
		Str("broker", cfg.MQTT.Server).
		Str("topic", cfg.Topics().Telemetry).
		Str("device", cfg.PZEM.Device).
		Dur("sample", cfg.Pages.SampleInterval).
		Dur("render", cfg.Pages.RenderInterval).
		Dur("heartbeat", cfg.MQTT.Heartbeat).
		Msg("started")

	return g.Wait()
}
