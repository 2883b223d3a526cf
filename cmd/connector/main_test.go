package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/directory"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/stats"
	"github.com/saviobatista/fsd-connector/internal/types"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []pdu.Message
	err  error
}

func (r *recordingSender) Send(m pdu.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.err
}

type recordingWriter struct {
	packets []*types.RawPacket
	err     error
}

func (r *recordingWriter) WritePacket(p *types.RawPacket) error {
	r.packets = append(r.packets, p)
	return r.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server = "fsd.example.net"
	cfg.Callsign = "DAL123"
	cfg.CID = "1234567"
	cfg.Password = "secret"
	cfg.RealName = "John Doe"
	cfg.ClientID = 0xd1a7
	return cfg
}

func newTestConnector(cfg *config.Config) (*connector, *recordingSender, *recordingWriter) {
	sender := &recordingSender{}
	writer := &recordingWriter{}
	return newConnector(cfg, sender, writer, logging.Discard()), sender, writer
}

func received(m pdu.Message) session.Event {
	return session.Received{Meta: session.Meta{ID: "s1", At: time.Now()}, Message: m}
}

func TestClientProperties(t *testing.T) {
	cfg := testConfig()
	cfg.ClientHash = "hash"
	cfg.PluginHash = "plugin"

	props := clientProperties(cfg)
	assert.Equal(t, types.ClientProperties{
		Name:         "fsd-connector",
		VersionMajor: versionMajor,
		VersionMinor: versionMinor,
		ClientHash:   "hash",
		PluginHash:   "plugin",
	}, props)
}

func TestServerLabel(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "fsd.example.net", serverLabel(cfg))

	cfg.Server = ""
	cfg.StatusURL = "https://status.example.net/status.txt"
	assert.Equal(t, "https://status.example.net/status.txt", serverLabel(cfg))
}

func TestLogonAsPilot(t *testing.T) {
	c, sender, _ := newTestConnector(testConfig())

	session.Dispatch(received(&pdu.ServerIdentification{
		Header:              pdu.Header{From: pdu.ServerCallsign, To: "CLIENT"},
		Version:             "VATSIM FSD V3.43",
		InitialChallengeKey: "3a2b1c0d9e8f",
	}), c.handlers())

	require.Len(t, sender.sent, 2)

	id, ok := sender.sent[0].(*pdu.ClientIdentification)
	require.True(t, ok, "first message is %T", sender.sent[0])
	assert.Equal(t, pdu.Header{From: "DAL123", To: pdu.ServerCallsign}, id.Header)
	assert.Equal(t, uint16(0xd1a7), id.ClientID)
	assert.Equal(t, "fsd-connector", id.ClientName)
	assert.Equal(t, "1234567", id.CID)
	assert.NotEmpty(t, id.SysUID)

	ap, ok := sender.sent[1].(*pdu.AddPilot)
	require.True(t, ok, "second message is %T", sender.sent[1])
	assert.Equal(t, "secret", ap.Password)
	assert.Equal(t, "John Doe", ap.RealName)
	assert.True(t, ap.ProtocolRevision.RequiresAuth())
}

func TestLogonAsController(t *testing.T) {
	cfg := testConfig()
	cfg.Controller = true
	c, sender, _ := newTestConnector(cfg)

	c.handleMessage(&pdu.ServerIdentification{Header: pdu.Header{From: pdu.ServerCallsign}})

	require.Len(t, sender.sent, 2)
	aa, ok := sender.sent[1].(*pdu.AddATC)
	require.True(t, ok, "second message is %T", sender.sent[1])
	assert.Equal(t, pdu.Header{From: "DAL123", To: pdu.ServerCallsign}, aa.Header)
	assert.Equal(t, pdu.RevisionVatsimAuth, aa.ProtocolRevision)
}

func TestPingAnsweredWithPong(t *testing.T) {
	c, sender, _ := newTestConnector(testConfig())

	c.handleMessage(&pdu.Ping{Header: pdu.Header{From: pdu.ServerCallsign, To: "DAL123"}, Timestamp: "1697040000"})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, &pdu.Pong{
		Header:    pdu.Header{From: "DAL123", To: pdu.ServerCallsign},
		Timestamp: "1697040000",
	}, sender.sent[0])
}

func TestSendFailureDoesNotStop(t *testing.T) {
	c, sender, _ := newTestConnector(testConfig())
	sender.err = session.ErrNotConnected

	c.handleMessage(&pdu.Ping{Header: pdu.Header{From: pdu.ServerCallsign}})
	c.handleMessage(&pdu.KillRequest{Header: pdu.Header{From: pdu.ServerCallsign}, Reason: "bye"})
	c.handleMessage(&pdu.ProtocolError{Header: pdu.Header{From: pdu.ServerCallsign}, Message: "boom"})

	assert.Len(t, sender.sent, 1)
}

func TestRawTrafficIsRecorded(t *testing.T) {
	c, _, writer := newTestConnector(testConfig())
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	h := c.handlers()

	session.Dispatch(session.Connected{Meta: session.Meta{ID: "s1", At: at}, Address: "192.0.2.1:6809"}, h)
	session.Dispatch(session.RawDataReceived{Meta: session.Meta{ID: "s1", At: at}, Data: "$PISERVER:DAL123:1"}, h)
	session.Dispatch(session.RawDataSent{Meta: session.Meta{ID: "s1", At: at}, Data: "$PODAL123:SERVER:1"}, h)

	require.Len(t, writer.packets, 2)
	assert.Equal(t, &types.RawPacket{
		Raw:       "$PISERVER:DAL123:1",
		Direction: types.DirectionInbound,
		Timestamp: at,
		SessionID: "s1",
		Server:    "192.0.2.1:6809",
	}, writer.packets[0])
	assert.Equal(t, types.DirectionOutbound, writer.packets[1].Direction)

	writer.err = errors.New("disk full")
	session.Dispatch(session.RawDataReceived{Meta: session.Meta{ID: "s1", At: at}, Data: "#TMSERVER:*:hi"}, h)
	assert.Len(t, writer.packets, 3)
}

func TestConsume(t *testing.T) {
	c, sender, _ := newTestConnector(testConfig())

	events := make(chan session.Event, 2)
	events <- received(&pdu.Ping{Header: pdu.Header{From: pdu.ServerCallsign}, Timestamp: "1"})
	events <- received(&pdu.Ping{Header: pdu.Header{From: pdu.ServerCallsign}, Timestamp: "2"})
	close(events)

	require.NoError(t, c.consume(context.Background(), events))
	assert.Len(t, sender.sent, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.consume(ctx, make(chan session.Event)), context.Canceled)
}

func TestDirectoryTarget(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/status.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "url1=%s/servers.txt\r\n", srv.URL)
	})
	mux.HandleFunc("/servers.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "!SERVERS:\r\nUSA-EAST:192.0.2.10:New York:East:1:\r\nGERMANY:192.0.2.20:Germany:DE:1:\r\n")
	})

	cfg := testConfig()
	cfg.Server = ""
	cfg.StatusURL = srv.URL + "/status.txt"
	cfg.ChallengeServer = true

	target, err := directoryTarget(cfg, directory.NewClient(srv.Client()), func(int) int { return 1 })(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.20", target.Address)
	assert.Equal(t, 6809, target.Port)
	assert.True(t, target.ChallengeServer)
}

func TestDirectoryTarget_NoServers(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/status.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "url1=%s/servers.txt\r\n", srv.URL)
	})
	mux.HandleFunc("/servers.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "!SERVERS:\r\n!VOICE:\r\n")
	})

	cfg := testConfig()
	cfg.StatusURL = srv.URL + "/status.txt"

	_, err := directoryTarget(cfg, directory.NewClient(srv.Client()), func(int) int { return 0 })(context.Background())
	assert.ErrorContains(t, err, "no servers listed")
}

func TestReportStats(t *testing.T) {
	st := stats.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		reportStats(ctx, st, logging.Discard(), time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reportStats did not return after cancellation")
	}
}
