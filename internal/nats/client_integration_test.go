package nats

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/testutils"
	"github.com/saviobatista/fsd-connector/internal/types"
)

// setupNATS starts a JetStream enabled NATS container and returns a connected client
func setupNATS(t *testing.T) *Client {
	t.Helper()
	if testing.Short() || !testutils.IsIntegrationTest() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	natsURL, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	client, err := New(natsURL, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestNATSClient_Integration_Connection(t *testing.T) {
	client := setupNATS(t)

	if client.conn == nil {
		t.Error("Expected connection to be initialized")
	}
	if client.js == nil {
		t.Error("Expected JetStream context to be initialized")
	}

	info, err := client.js.StreamInfo(StreamFSDRaw)
	if err != nil {
		t.Fatalf("Expected stream %s to exist: %v", StreamFSDRaw, err)
	}
	if len(info.Config.Subjects) != 1 || info.Config.Subjects[0] != SubjectFSDRawAll {
		t.Errorf("Unexpected stream subjects %v", info.Config.Subjects)
	}
}

func TestNATSClient_Integration_InboundOnly(t *testing.T) {
	client := setupNATS(t)

	received := make(chan *types.RawPacket, 10)
	if err := client.SubscribeInbound(func(p *types.RawPacket) { received <- p }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := client.PublishPacket(testutils.MockRawPacket(types.DirectionOutbound, "$PODAL123:SERVER:1")); err != nil {
		t.Fatalf("Failed to publish outbound packet: %v", err)
	}
	if err := client.PublishPacket(testutils.MockRawPacket(types.DirectionInbound, testutils.SamplePing)); err != nil {
		t.Fatalf("Failed to publish inbound packet: %v", err)
	}

	select {
	case p := <-received:
		if p.Raw != testutils.SamplePing {
			t.Errorf("Expected inbound packet, got %s", p.Raw)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for packet")
	}

	select {
	case p := <-received:
		t.Errorf("Unexpected packet %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNATSClient_Integration_MirrorSink(t *testing.T) {
	client := setupNATS(t)

	received := make(chan *types.RawPacket, 10)
	if err := client.SubscribeAll(func(p *types.RawPacket) { received <- p }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	sink := NewMirrorSink(client, "fsd.example.net", logging.Discard())
	meta := session.Meta{ID: "s1", At: time.Now().UTC()}
	sink.Notify(session.RawDataReceived{Meta: meta, Data: testutils.SampleServerIdentification})
	sink.Notify(session.RawDataSent{Meta: meta, Data: "$IDDAL123:SERVER:0000:fsd-connector:1:0:1234567:uid"})

	got := map[string]string{}
	for len(got) < 2 {
		select {
		case p := <-received:
			got[p.Direction] = p.Raw
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout waiting for mirrored packets, got %v", got)
		}
	}
	if got[types.DirectionInbound] != testutils.SampleServerIdentification {
		t.Errorf("Unexpected inbound packet %s", got[types.DirectionInbound])
	}
}
