package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/crop-prediction/internal/prediction"
)

const publishTimeout = 5 * time.Second

// Config holds the broker settings.
type Config struct {
	Broker      string // host:port or a full URL such as tcp://host:1883
	ClientID    string
	TopicPrefix string
}

// Publisher pushes prediction events to an MQTT broker.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewPublisher creates a publisher; call Connect before use.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	p := &Publisher{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the initial broker connection or ctx.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Name implements prediction.Sink.
func (p *Publisher) Name() string { return "mqtt" }

// Handle publishes ev with QoS 1.
func (p *Publisher) Handle(ctx context.Context, ev prediction.Event) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := Topic(p.cfg.TopicPrefix, ev.Kind)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("published prediction", "topic", topic, "id", ev.ID)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Topic returns the topic for an event kind.
func Topic(prefix, kind string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return kind
	}
	return prefix + "/" + kind
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
