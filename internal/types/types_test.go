package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRawPacket_JSON(t *testing.T) {
	p := RawPacket{
		Raw:       "$PISERVER:CLIENT:1697040000",
		Direction: DirectionInbound,
		Timestamp: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
		SessionID: "session-123",
		Server:    "USA-EAST",
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal RawPacket: %v", err)
	}

	for _, field := range []string{`"raw":`, `"direction":"in"`, `"session_id":"session-123"`, `"server":"USA-EAST"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("Expected %s in %s", field, data)
		}
	}
}

func TestClientProperties(t *testing.T) {
	p := ClientProperties{
		Name:         "fsd-connector",
		VersionMajor: 1,
		VersionMinor: 4,
		ClientHash:   "secret",
		PluginHash:   "plugin",
	}

	if got := p.String(); got != "fsd-connector 1.4" {
		t.Errorf("Expected 'fsd-connector 1.4', got %q", got)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal ClientProperties: %v", err)
	}
	if strings.Contains(string(data), "secret") || strings.Contains(string(data), "plugin") {
		t.Errorf("Hashes must not be serialized: %s", data)
	}
}

func TestServerInfo_String(t *testing.T) {
	s := ServerInfo{Name: "USA-EAST", Address: "192.0.2.10", Location: "New York"}
	if s.String() != "USA-EAST" {
		t.Errorf("Expected 'USA-EAST', got %q", s.String())
	}
}

func TestPilotSession_EndedAtZero(t *testing.T) {
	s := PilotSession{
		SessionID: "session-123",
		Callsign:  "DAL123",
		StartedAt: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if !s.EndedAt.IsZero() {
		t.Error("A session that has not ended should have a zero EndedAt")
	}
}
