package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/storage"
	"github.com/saviobatista/fsd-connector/internal/testutils"
	"github.com/saviobatista/fsd-connector/internal/types"
)

type fakeSubscriber struct {
	handler func(*types.RawPacket)
	err     error
}

func (f *fakeSubscriber) SubscribeAll(handler func(*types.RawPacket)) error {
	if f.err != nil {
		return f.err
	}
	f.handler = handler
	return nil
}

type failingWriter struct{ calls int }

func (f *failingWriter) WritePacket(*types.RawPacket) error {
	f.calls++
	return errors.New("disk full")
}

func TestSubscribe_WritesPackets(t *testing.T) {
	dir := t.TempDir()
	store := storage.New(dir, logging.Discard())
	require.NoError(t, store.Start())

	sub := &fakeSubscriber{}
	require.NoError(t, subscribe(sub, store, logging.Discard()))
	require.NotNil(t, sub.handler)

	in := testutils.MockRawPacket(types.DirectionInbound, testutils.SamplePilotPosition)
	out := testutils.MockRawPacket(types.DirectionOutbound, testutils.SampleAddPilot)
	sub.handler(in)
	sub.handler(out)
	require.NoError(t, store.Stop())

	data, err := os.ReadFile(filepath.Join(dir, storage.FileName(time.Now())))
	require.NoError(t, err)
	assert.Equal(t, storage.FormatPacket(in)+"\n"+storage.FormatPacket(out)+"\n", string(data))
}

func TestSubscribe_WriteErrorIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	writer := &failingWriter{}
	sub := &fakeSubscriber{}
	require.NoError(t, subscribe(sub, writer, logger))

	sub.handler(testutils.MockRawPacket(types.DirectionInbound, testutils.SamplePing))

	assert.Equal(t, 1, writer.calls)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "failed to write packet", entry.Message)
	assert.Equal(t, types.DirectionInbound, entry.Data["direction"])
}

func TestSubscribe_Error(t *testing.T) {
	err := subscribe(&fakeSubscriber{err: errors.New("no stream")}, &failingWriter{}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe to FSD packets")
}

func TestRunLogger_InvalidOutputDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	cfg := &config.Config{OutputDir: filepath.Join(file, "logs"), NATSURL: "nats://127.0.0.1:1"}
	err := runLogger(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start storage")
}

func TestRunLogger_NATSUnavailable(t *testing.T) {
	cfg := &config.Config{OutputDir: t.TempDir(), NATSURL: "nats://127.0.0.1:1"}
	err := runLogger(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create NATS client")
}
