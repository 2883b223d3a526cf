package nats

import (
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/types"
)

// AsyncPublisher publishes raw packets without blocking on the ack
type AsyncPublisher interface {
	PublishPacketAsync(p *types.RawPacket) error
}

// MirrorSink copies every raw packet of a session to NATS
type MirrorSink struct {
	pub    AsyncPublisher
	server string
	logger logrus.FieldLogger
}

// NewMirrorSink creates a MirrorSink tagging packets with server
func NewMirrorSink(pub AsyncPublisher, server string, logger logrus.FieldLogger) *MirrorSink {
	return &MirrorSink{pub: pub, server: server, logger: logger}
}

// Notify publishes RawDataSent and RawDataReceived events; others are ignored
func (m *MirrorSink) Notify(ev session.Event) {
	var p *types.RawPacket
	switch e := ev.(type) {
	case session.RawDataReceived:
		p = m.packet(e.Meta, types.DirectionInbound, e.Data)
	case session.RawDataSent:
		p = m.packet(e.Meta, types.DirectionOutbound, e.Data)
	default:
		return
	}

	if err := m.pub.PublishPacketAsync(p); err != nil {
		m.logger.WithError(err).WithField("direction", p.Direction).Warn("failed to mirror packet")
	}
}

func (m *MirrorSink) packet(meta session.Meta, direction, raw string) *types.RawPacket {
	return &types.RawPacket{
		Raw:       raw,
		Direction: direction,
		Timestamp: meta.Time(),
		SessionID: meta.SessionID(),
		Server:    m.server,
	}
}
