//go:build no_mqtt

package main

import (
	"log/slog"

	"wifi-provisiond/internal/provision"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *provision.Manager, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
