package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

// Defaults for RealPublisher.
const (
	DefaultBufferSize     = 256
	DefaultConnectTimeout = 30 * time.Second
	DefaultRetryInterval  = time.Minute
	publishTimeout        = 5 * time.Second
)

// Config holds broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics
	// BufferSize is the number of messages kept while disconnected.
	BufferSize int
	// ConnectTimeout bounds one connect attempt series (with backoff).
	ConnectTimeout time.Duration
	// RetryInterval is the pause between connect series until the first
	// successful connection. After that paho reconnects on its own.
	RetryInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.ClientID == "" {
		c.ClientID = "energy-monitor-" + uuid.NewString()[:8]
	}
	if c.Topics == (Topics{}) {
		c.Topics = NewTopics("", "")
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
}

// pahoClient is the subset of paho.Client used here.
type pahoClient interface {
	IsConnectionOpen() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the link is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client pahoClient
	cfg    Config
	log    zerolog.Logger

	mu     sync.Mutex
	buffer *outbox[message]

	everConnected atomic.Bool
}

// NewRealPublisher creates a publisher for the given broker. It does not
// connect; call Connect or Maintain.
func NewRealPublisher(cfg Config, log zerolog.Logger) *RealPublisher {
	cfg.setDefaults()
	p := &RealPublisher{
		cfg:    cfg,
		log:    log,
		buffer: newOutbox[message](cfg.BufferSize, log),
	}

	lwt, _ := FormatSystemPayload(SystemEvent{Event: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10*time.Second).
		SetWill(cfg.Topics.System, string(lwt), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) }).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			log.Warn().Msg("reconnecting to broker")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	p.client = newPahoClient(opts)
	return p
}

// Connect tries to reach the broker with exponential backoff until
// ConnectTimeout elapses or ctx is done.
func (p *RealPublisher) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = p.cfg.ConnectTimeout

	op := func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(15 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.log.Warn().Err(err).Dur("retry_in", next).Str("broker", p.cfg.Broker).Msg("connect failed")
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// Maintain runs until ctx is done, retrying Connect every RetryInterval
// until the first connection succeeds.
func (p *RealPublisher) Maintain(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		if !p.everConnected.Load() {
			if err := p.Connect(ctx); err != nil && ctx.Err() == nil {
				p.log.Error().Err(err).Msg("broker unreachable, buffering")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *RealPublisher) handleConnect() {
	reconnect := p.everConnected.Swap(true)
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true})
		p.client.Publish(p.cfg.Topics.System, 1, true, payload)
	}

	// A publish racing this handler can still see the link as down and land
	// in the outbox after a take, so replay until it stays empty.
	replayed, lost := 0, 0
	for {
		p.mu.Lock()
		pending, dropped := p.buffer.take()
		p.mu.Unlock()
		lost += dropped
		if len(pending) == 0 {
			break
		}
		for _, m := range pending {
			p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		}
		replayed += len(pending)
	}
	p.log.Info().Bool("reconnect", reconnect).Int("replay", replayed).Int("dropped", lost).Msg("connected")
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.log.Error().Err(err).Msg("connection lost")
}

// Publish sends a reading to the telemetry topic at QoS 0.
func (p *RealPublisher) Publish(t pzem.Telemetry) error {
	payload, err := FormatPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(message{topic: p.cfg.Topics.Telemetry, payload: payload})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(message{topic: p.cfg.Topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m message) error {
	if !p.client.IsConnectionOpen() {
		p.bufferMsg(m)
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.bufferMsg(m)
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		p.bufferMsg(m)
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) bufferMsg(m message) {
	p.mu.Lock()
	p.buffer.add(m)
	p.mu.Unlock()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker link is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// ClientID returns the client id in use.
func (p *RealPublisher) ClientID() string {
	return p.cfg.ClientID
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
