//go:build !no_mqtt

package main

import (
	"log/slog"

	"wifi-provisiond/internal/mqtt"
	"wifi-provisiond/internal/provision"
)

type mqttStopper struct {
	pub *mqtt.Publisher
}

func (m *mqttStopper) Stop() {
	if m.pub != nil {
		m.pub.Stop()
	}
}

func initMQTT(mgr *provision.Manager, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	pub, err := mqtt.NewPublisher(mgr, mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt publisher", "err", err)
		return &mqttStopper{}
	}
	pub.Start()
	return &mqttStopper{pub: pub}
}
