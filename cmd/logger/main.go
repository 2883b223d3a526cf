package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/nats"
	"github.com/saviobatista/fsd-connector/internal/storage"
	"github.com/saviobatista/fsd-connector/internal/types"
)

// PacketWriter writes raw packets to the traffic log
type PacketWriter interface {
	WritePacket(p *types.RawPacket) error
}

// Subscriber delivers mirrored packets of both directions
type Subscriber interface {
	SubscribeAll(handler func(*types.RawPacket)) error
}

func main() {
	cfg, err := config.LoadServices()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runLogger(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("logger failed")
		os.Exit(1)
	}
}

// runLogger writes every mirrored packet to the daily traffic log until ctx
// is done
func runLogger(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) error {
	store := storage.New(cfg.OutputDir, logger)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			logger.WithError(err).Warn("failed to close traffic log")
		}
	}()

	client, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()

	if err := subscribe(client, store, logger); err != nil {
		return err
	}
	logger.WithField("output_dir", cfg.OutputDir).Info("writing traffic log")

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// subscribe routes mirrored packets to w
func subscribe(sub Subscriber, w PacketWriter, logger logrus.FieldLogger) error {
	if err := sub.SubscribeAll(func(p *types.RawPacket) {
		if err := w.WritePacket(p); err != nil {
			logger.WithError(err).WithFields(logging.PacketFields(p)).Warn("failed to write packet")
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to FSD packets: %w", err)
	}
	return nil
}
