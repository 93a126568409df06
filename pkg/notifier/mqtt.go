package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shc-library/kiosk-agent/config"
	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"github.com/shc-library/kiosk-agent/pkg/retry"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectMS   = 250
	eventQoS       = 1
)

// Publisher is the subset of mqtt.Client the notifier needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTNotifier broadcasts successful sign-in/out events to an MQTT broker
// so that displays and dashboards on the library network can follow along.
type MQTTNotifier struct {
	client Publisher
	topic  string

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewMQTTNotifier connects to the configured broker, retrying until ctx is
// done or the broker connect retries are used up.
func NewMQTTNotifier(ctx context.Context, cfg config.MQTTConfig, kioskID string) (*MQTTNotifier, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is empty")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.BrokerURL))
	})

	client := mqtt.NewClient(opts)
	err := retry.Do(ctx, retry.BrokerConnectConfig(), "mqtt_connect", func() error {
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("timed out connecting to MQTT broker %s", cfg.BrokerURL)
		}
		return token.Error()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return NewMQTTNotifierWithPublisher(client, cfg.TopicPrefix, kioskID), nil
}

// NewMQTTNotifierWithPublisher wraps an already connected publisher
func NewMQTTNotifierWithPublisher(client Publisher, topicPrefix, kioskID string) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		topic:  Topic(topicPrefix, kioskID),
	}
}

// Topic returns the events topic for a kiosk
func Topic(prefix, kioskID string) string {
	if prefix == "" {
		return fmt.Sprintf("%s/events", kioskID)
	}
	return fmt.Sprintf("%s/%s/events", prefix, kioskID)
}

// Topic returns the topic events are published on
func (n *MQTTNotifier) Topic() string {
	return n.topic
}

// Publish sends one event and waits for the broker to acknowledge it
func (n *MQTTNotifier) Publish(ctx context.Context, event models.ToggleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.EventPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	token := n.client.Publish(n.topic, eventQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		metrics.EventPublishes.WithLabelValues("timeout").Inc()
		return fmt.Errorf("publish to %s: %w", n.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		metrics.EventPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("publish to %s: %w", n.topic, err)
	}

	metrics.EventPublishes.WithLabelValues("success").Inc()
	logger.Debug("Event published", zap.String("topic", n.topic), zap.String("attempt_id", event.AttemptID))
	return nil
}

// Notify publishes in the background; failures are logged, never returned.
// Its signature matches services.ToggleListener.
func (n *MQTTNotifier) Notify(ctx context.Context, event models.ToggleEvent) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		if err := n.Publish(context.WithoutCancel(ctx), event); err != nil {
			logger.Warn("Failed to publish sign-in/out event",
				zap.String("topic", n.topic),
				zap.String("attempt_id", event.AttemptID),
				zap.Error(err))
		}
	}()
}

// Close waits for pending publishes and disconnects
func (n *MQTTNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
	n.client.Disconnect(disconnectMS)
}
