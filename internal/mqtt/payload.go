//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"time"

	"wifi-provisiond/internal/provision"
)

func availabilityTopic(prefix string) string { return prefix + "/availability" }
func statusTopic(prefix string) string       { return prefix + "/status" }
func eventTopic(prefix string) string        { return prefix + "/event" }

// eventPayload wraps a provisioning event with a timestamp for consumers
// that replay the event topic.
func eventPayload(event provision.Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string      `json:"type"`
		Data interface{} `json:"data,omitempty"`
		At   string      `json:"at"`
	}{
		Type: event.Type,
		Data: event.Data,
		At:   time.Now().UTC().Format(time.RFC3339),
	})
}

func statusPayload(st *provision.SystemStatus) ([]byte, error) {
	return json.Marshal(st)
}
