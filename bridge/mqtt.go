// Package bridge lets an MQTT broker drive the originator and observe the
// hosted nodes.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mbocsi/chainlight/services"
)

type Config struct {
	Broker         string // host:port
	TopicPrefix    string
	ClientID       string
	StatusInterval time.Duration
}

// MQTTBridge subscribes to <prefix>/effects/{breath,flicker,test} and
// <prefix>/presets/{name}, and publishes node status to <prefix>/status.
type MQTTBridge struct {
	cfg      Config
	services *services.ServiceContainer
	Client   mqtt.Client

	mu        sync.RWMutex
	connected bool
	handled   uint64
	errors    uint64
}

func NewMQTTBridge(cfg Config, serviceContainer *services.ServiceContainer) *MQTTBridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "chainlight"
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	return &MQTTBridge{cfg: cfg, services: serviceContainer}
}

// Connect establishes the broker connection and subscribes the command topics.
func (b *MQTTBridge) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", b.cfg.Broker))
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// Subscriptions are not persisted across reconnects, so redo them here.
	opts.OnConnect = func(c mqtt.Client) {
		b.setConnected(true)
		slog.Info("mqtt connection established", "broker", b.cfg.Broker, "client_id", b.cfg.ClientID)
		if err := b.subscribe(c); err != nil {
			slog.Error("mqtt subscribe failed", "error", err)
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		b.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", b.cfg.Broker)
	}

	b.Client = mqtt.NewClient(opts)
	slog.Info("connecting to mqtt broker", "broker", b.cfg.Broker)

	token := b.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (b *MQTTBridge) subscribe(c mqtt.Client) error {
	filters := map[string]byte{
		b.cfg.TopicPrefix + "/effects/+": 0,
		b.cfg.TopicPrefix + "/presets/+": 0,
	}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		if err := b.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			slog.Warn("mqtt command rejected", "topic", msg.Topic(), "error", err)
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt subscribe timeout")
	}
	return token.Error()
}

// Start connects, then publishes status until ctx is done.
func (b *MQTTBridge) Start(ctx context.Context) error {
	if err := b.Connect(); err != nil {
		return err
	}
	defer b.Disconnect()

	ticker := time.NewTicker(b.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.PublishStatus(); err != nil {
				slog.Debug("mqtt status not published", "error", err)
			}
		}
	}
}

// HandleMessage routes one command payload by topic.
func (b *MQTTBridge) HandleMessage(topic string, payload []byte) error {
	info, err := b.route(topic, payload)
	b.mu.Lock()
	if err != nil {
		b.errors++
	} else {
		b.handled++
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	slog.Info("mqtt command originated", "topic", topic, "mode", info.Mode, "seq", info.Seq)
	return nil
}

func (b *MQTTBridge) route(topic string, payload []byte) (*services.OriginInfo, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return nil, fmt.Errorf("topic %q outside prefix %q", topic, b.cfg.TopicPrefix)
	}
	kind, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return nil, fmt.Errorf("malformed topic %q", topic)
	}

	effect := b.services.Effect
	switch kind {
	case "presets":
		return effect.ApplyPreset(name)
	case "effects":
		switch name {
		case "breath":
			var req services.BreathRequest
			if err := decode(payload, &req); err != nil {
				return nil, err
			}
			return effect.StartBreath(req)
		case "flicker":
			var req services.FlickerRequest
			if err := decode(payload, &req); err != nil {
				return nil, err
			}
			return effect.StartFlicker(req)
		case "test":
			var req services.TestRequest
			if err := decode(payload, &req); err != nil {
				return nil, err
			}
			return effect.StartTestChain(req)
		}
	}
	return nil, fmt.Errorf("unknown command topic %q", topic)
}

func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "invalid payload", Cause: err}
	}
	return nil
}

// StatusPayload is the JSON document published on <prefix>/status.
type StatusPayload struct {
	ClientID string              `json:"client_id"`
	Nodes    []services.NodeInfo `json:"nodes"`
	Handled  uint64              `json:"handled"`
	Errors   uint64              `json:"errors"`
}

func (b *MQTTBridge) Status() (StatusPayload, error) {
	nodes, err := b.services.Node.ListNodes()
	if err != nil {
		return StatusPayload{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return StatusPayload{ClientID: b.cfg.ClientID, Nodes: nodes, Handled: b.handled, Errors: b.errors}, nil
}

func (b *MQTTBridge) PublishStatus() error {
	if !b.isConnected() {
		return errors.New("mqtt not connected")
	}
	status, err := b.Status()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	token := b.Client.Publish(b.cfg.TopicPrefix+"/status", 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (b *MQTTBridge) Disconnect() {
	if b.Client != nil && b.Client.IsConnected() {
		b.Client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	b.setConnected(false)
}

func (b *MQTTBridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *MQTTBridge) isConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}
