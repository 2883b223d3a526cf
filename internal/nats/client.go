package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/types"
)

const (
	// StreamFSDRaw is the JetStream stream holding raw FSD traffic
	StreamFSDRaw = "FSD_RAW"
	// SubjectFSDRawIn carries packets received from the server
	SubjectFSDRawIn = "fsd.raw.in"
	// SubjectFSDRawOut carries packets sent to the server
	SubjectFSDRawOut = "fsd.raw.out"
	// SubjectFSDRawAll matches both directions
	SubjectFSDRawAll = "fsd.raw.>"
)

// Client represents a NATS client
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger logrus.FieldLogger
}

// New creates a new NATS client and makes sure the FSD_RAW stream exists
func New(url string, logger logrus.FieldLogger) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("fsd-connector"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamFSDRaw,
		Subjects: []string{SubjectFSDRawAll},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		conn:   nc,
		js:     js,
		logger: logger,
	}, nil
}

// SubjectFor returns the subject a packet is published on
func SubjectFor(direction string) string {
	if direction == types.DirectionOutbound {
		return SubjectFSDRawOut
	}
	return SubjectFSDRawIn
}

// PublishPacket publishes a raw packet and waits for the stream to store it
func (c *Client) PublishPacket(p *types.RawPacket) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	if _, err := c.js.Publish(SubjectFor(p.Direction), data); err != nil {
		return fmt.Errorf("failed to publish packet: %w", err)
	}
	return nil
}

// PublishPacketAsync publishes a raw packet without waiting for the ack
func (c *Client) PublishPacketAsync(p *types.RawPacket) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	if _, err := c.js.PublishAsync(SubjectFor(p.Direction), data); err != nil {
		return fmt.Errorf("failed to publish packet: %w", err)
	}
	return nil
}

// SubscribeInbound subscribes to packets received from the server
func (c *Client) SubscribeInbound(handler func(*types.RawPacket)) error {
	return c.subscribe(SubjectFSDRawIn, handler)
}

// SubscribeAll subscribes to packets of both directions
func (c *Client) SubscribeAll(handler func(*types.RawPacket)) error {
	return c.subscribe(SubjectFSDRawAll, handler)
}

func (c *Client) subscribe(subject string, handler func(*types.RawPacket)) error {
	_, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		p, err := DecodePacket(msg.Data)
		if err != nil {
			c.logger.WithError(err).WithField("subject", msg.Subject).Warn("dropping malformed packet")
			return
		}
		handler(p)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// DecodePacket unmarshals a message published by PublishPacket
func DecodePacket(data []byte) (*types.RawPacket, error) {
	var p types.RawPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet: %w", err)
	}
	return &p, nil
}

// Close drains pending async publishes and closes the NATS connection
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if c.js != nil {
		select {
		case <-c.js.PublishAsyncComplete():
		case <-time.After(5 * time.Second):
			c.logger.Warn("timed out waiting for pending publishes")
		}
	}
	c.conn.Close()
}
