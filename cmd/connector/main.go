package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/fsd-connector/internal/auth"
	"github.com/saviobatista/fsd-connector/internal/capture"
	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/directory"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/nats"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/stats"
	"github.com/saviobatista/fsd-connector/internal/storage"
	"github.com/saviobatista/fsd-connector/internal/types"
)

const (
	versionMajor  = 1
	versionMinor  = 0
	statsInterval = time.Minute
)

// Sender queues messages on the session
type Sender interface {
	Send(m pdu.Message) error
}

// PacketWriter writes raw packets to the traffic log
type PacketWriter interface {
	WritePacket(p *types.RawPacket) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("connector stopped")
		os.Exit(1)
	}
	logger.Info("shutting down")
}

func run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) error {
	natsClient, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer natsClient.Close()

	store := storage.New(cfg.OutputDir, logger)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop storage")
		}
	}()

	st := stats.New()
	g, gctx := errgroup.WithContext(ctx)

	events := session.NewChanSink(gctx, 1024)
	defer events.Close()

	sup := newSupervisor(cfg, directory.NewClient(nil), logger)
	mirror := nats.NewMirrorSink(natsClient, serverLabel(cfg), logger)
	sess := session.New(
		clientProperties(cfg),
		auth.NewMD5Responder(cfg.ClientKey),
		session.MultiSink{events, st, mirror, sup},
		session.WithLogger(logger),
		session.WithConfig(cfg.Session),
	)
	c := newConnector(cfg, sess, store, logger)

	logger.WithFields(logrus.Fields{
		"callsign": cfg.Callsign,
		"server":   serverLabel(cfg),
		"client":   clientProperties(cfg).String(),
	}).Info("starting connector")

	g.Go(func() error { return sup.Run(gctx, sess) })
	g.Go(func() error { return c.consume(gctx, events.Events()) })
	g.Go(func() error {
		reportStats(gctx, st, logger, statsInterval)
		return nil
	})

	return g.Wait()
}

func clientProperties(cfg *config.Config) types.ClientProperties {
	return types.ClientProperties{
		Name:         cfg.ClientName,
		VersionMajor: versionMajor,
		VersionMinor: versionMinor,
		ClientHash:   cfg.ClientHash,
		PluginHash:   cfg.PluginHash,
	}
}

// serverLabel names the server raw packets are tagged with
func serverLabel(cfg *config.Config) string {
	if cfg.Server != "" {
		return cfg.Server
	}
	return cfg.StatusURL
}

// newSupervisor connects to the configured server, or to a random server of
// the network directory when none is configured
func newSupervisor(cfg *config.Config, dir *directory.Client, logger logrus.FieldLogger) *capture.Supervisor {
	target := capture.Target{Address: cfg.Server, Port: cfg.Port, ChallengeServer: cfg.ChallengeServer}
	if cfg.Server != "" {
		return capture.New(target, logger)
	}
	return capture.New(target, logger, capture.WithTargetFunc(directoryTarget(cfg, dir, rand.IntN)))
}

func directoryTarget(cfg *config.Config, dir *directory.Client, pick func(int) int) capture.TargetFunc {
	return func(ctx context.Context) (capture.Target, error) {
		servers, err := dir.Fetch(ctx, cfg.StatusURL)
		if err != nil {
			return capture.Target{}, err
		}
		if len(servers) == 0 {
			return capture.Target{}, fmt.Errorf("no servers listed at %s", cfg.StatusURL)
		}
		server := servers[pick(len(servers))]
		return capture.Target{Address: server.Address, Port: cfg.Port, ChallengeServer: cfg.ChallengeServer}, nil
	}
}

// connector logs on, keeps the connection alive and records traffic.
// All of its methods run on the event goroutine.
type connector struct {
	cfg    *config.Config
	sender Sender
	writer PacketWriter
	sysUID string
	server string
	logger logrus.FieldLogger
}

func newConnector(cfg *config.Config, sender Sender, writer PacketWriter, logger logrus.FieldLogger) *connector {
	return &connector{
		cfg:    cfg,
		sender: sender,
		writer: writer,
		sysUID: uuid.New().String(),
		server: serverLabel(cfg),
		logger: logger,
	}
}

// consume handles events until ctx is done or the channel is closed
func (c *connector) consume(ctx context.Context, events <-chan session.Event) error {
	h := c.handlers()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			session.Dispatch(ev, h)
		}
	}
}

func (c *connector) handlers() session.HandlerFuncs {
	return session.HandlerFuncs{
		Connected: func(e session.Connected) {
			c.server = e.Address
		},
		Disconnected: func(e session.Disconnected) {
			c.logger.WithField("session_id", e.SessionID()).Info("disconnected")
		},
		NetworkError: func(e session.NetworkError) {
			c.logger.WithError(e.Err).WithField("session_id", e.SessionID()).Warn("network error")
		},
		RawDataReceived: func(e session.RawDataReceived) {
			c.record(e.Meta, types.DirectionInbound, e.Data)
		},
		RawDataSent: func(e session.RawDataSent) {
			c.record(e.Meta, types.DirectionOutbound, e.Data)
		},
		Received: func(e session.Received) {
			c.handleMessage(e.Message)
		},
	}
}

func (c *connector) record(meta session.Meta, direction, raw string) {
	p := &types.RawPacket{
		Raw:       raw,
		Direction: direction,
		Timestamp: meta.Time(),
		SessionID: meta.SessionID(),
		Server:    c.server,
	}
	if err := c.writer.WritePacket(p); err != nil {
		c.logger.WithError(err).Warn("failed to write traffic log")
	}
}

func (c *connector) handleMessage(m pdu.Message) {
	switch msg := m.(type) {
	case *pdu.ServerIdentification:
		c.logger.WithField("version", msg.Version).Info("server identified, logging on")
		c.logon(msg)
	case *pdu.Ping:
		c.send(&pdu.Pong{
			Header:    pdu.Header{From: c.cfg.Callsign, To: msg.From},
			Timestamp: msg.Timestamp,
		})
	case *pdu.KillRequest:
		c.logger.WithField("reason", msg.Reason).Warn("kicked from the network")
	case *pdu.ProtocolError:
		log := c.logger.WithFields(logrus.Fields{"code": msg.ErrorType, "param": msg.Param})
		if msg.Fatal() {
			log.Error(msg.Message)
		} else {
			log.Warn(msg.Message)
		}
	case *pdu.BroadcastMessage, *pdu.Wallop, *pdu.TextMessage:
		c.logger.WithFields(logging.MessageFields(m)).Info("message received")
	default:
		c.logger.WithFields(logging.MessageFields(m)).Debug("message received")
	}
}

// logon identifies the client and adds the pilot or controller
func (c *connector) logon(di *pdu.ServerIdentification) {
	c.send(&pdu.ClientIdentification{
		Header:       pdu.Header{From: c.cfg.Callsign, To: di.From},
		ClientID:     c.cfg.ClientID,
		ClientName:   c.cfg.ClientName,
		MajorVersion: versionMajor,
		MinorVersion: versionMinor,
		CID:          c.cfg.CID,
		SysUID:       c.sysUID,
	})

	to := pdu.ServerCallsign
	if c.cfg.Controller {
		c.send(&pdu.AddATC{
			Header:           pdu.Header{From: c.cfg.Callsign, To: to},
			RealName:         c.cfg.RealName,
			CID:              c.cfg.CID,
			Password:         c.cfg.Password,
			Rating:           pdu.RatingOBS,
			ProtocolRevision: pdu.RevisionVatsimAuth,
		})
		return
	}
	c.send(&pdu.AddPilot{
		Header:           pdu.Header{From: c.cfg.Callsign, To: to},
		CID:              c.cfg.CID,
		Password:         c.cfg.Password,
		Rating:           pdu.RatingOBS,
		ProtocolRevision: pdu.RevisionVatsimAuth,
		SimulatorType:    pdu.SimUnknown,
		RealName:         c.cfg.RealName,
	})
}

func (c *connector) send(m pdu.Message) {
	if err := c.sender.Send(m); err != nil {
		c.logger.WithError(err).WithFields(logging.MessageFields(m)).Warn("failed to send message")
	}
}

// reportStats logs the traffic counters every interval until ctx is done
func reportStats(ctx context.Context, st *stats.Stats, logger logrus.FieldLogger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithFields(st.Fields()).Info("final statistics")
			return
		case <-ticker.C:
			logger.WithFields(st.Fields()).Info("statistics")
		}
	}
}
