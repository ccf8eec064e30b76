//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"wifi-provisiond/internal/provision"
)

func TestTopicLayout(t *testing.T) {
	if got := availabilityTopic("fleet/dev42"); got != "fleet/dev42/availability" {
		t.Errorf("availability = %q", got)
	}
	if got := statusTopic("fleet/dev42"); got != "fleet/dev42/status" {
		t.Errorf("status = %q", got)
	}
	if got := eventTopic("fleet/dev42"); got != "fleet/dev42/event" {
		t.Errorf("event = %q", got)
	}
}

func TestEventPayload(t *testing.T) {
	payload, err := eventPayload(provision.Event{
		Type: provision.EventConnectSucceeded,
		Data: map[string]interface{}{"ssid": "HomeWiFi", "ip": "192.168.1.50"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var parsed struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
		At   string                 `json:"at"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if parsed.Type != "connect_succeeded" {
		t.Errorf("type = %q", parsed.Type)
	}
	if parsed.Data["ssid"] != "HomeWiFi" {
		t.Errorf("ssid = %v", parsed.Data["ssid"])
	}
	if parsed.At == "" {
		t.Error("missing timestamp")
	}
}

func TestStatusPayload(t *testing.T) {
	payload, err := statusPayload(&provision.SystemStatus{
		Mode:      provision.ModeClientConnected,
		Connected: true,
		SSID:      "HomeWiFi",
		IP:        "192.168.1.50",
		Signal:    72,
	})
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["mode"] != "client_connected" {
		t.Errorf("mode = %v", parsed["mode"])
	}
	if parsed["connected"] != true {
		t.Errorf("connected = %v", parsed["connected"])
	}
}
