//go:build !no_mqtt

// Package mqtt publishes device status and provisioning events to an MQTT
// broker, so fleet tooling can watch a device come online without polling
// its API.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"wifi-provisiond/internal/provision"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher mirrors the provisioning state onto MQTT topics:
//
//	<prefix>/availability   "online"/"offline", retained, last-will backed
//	<prefix>/status         retained JSON SystemStatus snapshot
//	<prefix>/event          every provisioning event, not retained
type Publisher struct {
	client pahomqtt.Client
	mgr    *provision.Manager
	prefix string
	logger *slog.Logger
	unsub  func()
}

// NewPublisher creates and connects an MQTT publisher.
func NewPublisher(mgr *provision.Manager, cfg Config, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		mgr:    mgr,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "wifi-provisiond"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(availabilityTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.logger.Info("MQTT connected")
			p.publish(availabilityTopic(p.prefix), []byte("online"), true)
			p.publishStatus()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p.client = client
	return p, nil
}

// Start subscribes to provisioning events and begins publishing.
func (p *Publisher) Start() {
	p.unsub = p.mgr.Events().OnAll(p.handleEvent)
	p.logger.Info("MQTT publisher started", "prefix", p.prefix)
}

// Stop publishes offline availability, unsubscribes, and disconnects.
func (p *Publisher) Stop() {
	if p.unsub != nil {
		p.unsub()
	}
	p.publish(availabilityTopic(p.prefix), []byte("offline"), true)
	p.client.Disconnect(1000)
	p.logger.Info("MQTT publisher stopped")
}

func (p *Publisher) handleEvent(event provision.Event) {
	payload, err := eventPayload(event)
	if err != nil {
		p.logger.Error("marshal event", "type", event.Type, "err", err)
		return
	}
	p.publish(eventTopic(p.prefix), payload, false)

	// Events that change what the device is doing refresh the retained
	// status snapshot.
	switch event.Type {
	case provision.EventModeChanged,
		provision.EventConnectSucceeded,
		provision.EventConnectFailed,
		provision.EventHotspotActivated,
		provision.EventClientActivated:
		p.publishStatus()
	}
}

func (p *Publisher) publishStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := p.mgr.Status(ctx)
	if err != nil {
		p.logger.Warn("status for MQTT publish", "err", err)
		return
	}
	payload, err := statusPayload(st)
	if err != nil {
		p.logger.Error("marshal status", "err", err)
		return
	}
	p.publish(statusTopic(p.prefix), payload, true)
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) {
	token := p.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			p.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}
