package nats

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/testutils"
	"github.com/saviobatista/fsd-connector/internal/types"
)

func TestNew_Unit_URLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "invalid scheme should fail", url: "invalid://url:12345"},
		{name: "unreachable server should fail", url: "nats://127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.url, logging.Discard())
			if err == nil {
				t.Error("Expected error, got none")
				client.Close()
			}
			if client != nil {
				t.Error("Expected nil client on error")
			}
		})
	}
}

func TestClient_Close_Unit_NilSafety(t *testing.T) {
	client := &Client{conn: nil}
	client.Close() // Should not panic
}

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		direction string
		expected  string
	}{
		{types.DirectionInbound, SubjectFSDRawIn},
		{types.DirectionOutbound, SubjectFSDRawOut},
		{"", SubjectFSDRawIn},
	}
	for _, tt := range tests {
		if got := SubjectFor(tt.direction); got != tt.expected {
			t.Errorf("SubjectFor(%q) = %s, want %s", tt.direction, got, tt.expected)
		}
	}
}

func TestDecodePacket(t *testing.T) {
	original := testutils.MockRawPacket(types.DirectionInbound, testutils.SampleBroadcast)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal packet: %v", err)
	}

	decoded, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket() failed: %v", err)
	}
	if decoded.Raw != original.Raw || decoded.Direction != original.Direction {
		t.Errorf("Expected %+v, got %+v", original, decoded)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", original.Timestamp, decoded.Timestamp)
	}

	if _, err := DecodePacket([]byte("{invalid json")); err == nil {
		t.Error("Expected error for malformed data")
	}
}

type recordingPublisher struct {
	packets []*types.RawPacket
	err     error
}

func (r *recordingPublisher) PublishPacketAsync(p *types.RawPacket) error {
	r.packets = append(r.packets, p)
	return r.err
}

func TestMirrorSink(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewMirrorSink(pub, "fsd.example.net", logging.Discard())

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta := session.Meta{ID: "session-1", At: at}

	sink.Notify(session.Connected{Meta: meta})
	sink.Notify(session.RawDataReceived{Meta: meta, Data: testutils.SamplePing})
	sink.Notify(session.RawDataSent{Meta: meta, Data: "$PODAL123:SERVER:1697040000"})
	sink.Notify(session.Disconnected{Meta: meta})

	if len(pub.packets) != 2 {
		t.Fatalf("Expected 2 packets, got %d", len(pub.packets))
	}

	in, out := pub.packets[0], pub.packets[1]
	if in.Direction != types.DirectionInbound || in.Raw != testutils.SamplePing {
		t.Errorf("Unexpected inbound packet %+v", in)
	}
	if out.Direction != types.DirectionOutbound || out.Raw != "$PODAL123:SERVER:1697040000" {
		t.Errorf("Unexpected outbound packet %+v", out)
	}
	for _, p := range pub.packets {
		if p.SessionID != "session-1" || p.Server != "fsd.example.net" || !p.Timestamp.Equal(at) {
			t.Errorf("Packet metadata not copied: %+v", p)
		}
	}
}

func TestMirrorSink_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	sink := NewMirrorSink(pub, "fsd.example.net", logging.Discard())

	// errors are logged, never propagated
	sink.Notify(session.RawDataReceived{Data: testutils.SamplePing})
	if len(pub.packets) != 1 {
		t.Errorf("Expected publish attempt, got %d", len(pub.packets))
	}
}
