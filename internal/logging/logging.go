// Package logging configures logrus for the fsd-connector binaries.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/types"
)

// Setup sets the standard logger's level and formatter and returns it
func Setup(level string) logrus.FieldLogger {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = time.RFC3339
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	logrus.SetLevel(ParseLevel(level))
	return logrus.StandardLogger()
}

// ParseLevel maps a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns a logger that writes nothing
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// PacketFields describes a raw packet for a log entry
func PacketFields(p *types.RawPacket) logrus.Fields {
	return logrus.Fields{
		"session_id": p.SessionID,
		"server":     p.Server,
		"direction":  p.Direction,
		"packet":     p.Raw,
	}
}

// MessageFields describes a decoded message for a log entry
func MessageFields(m pdu.Message) logrus.Fields {
	return logrus.Fields{
		"type": strings.TrimPrefix(fmt.Sprintf("%T", m), "*pdu."),
		"from": m.Sender(),
		"to":   m.Recipient(),
	}
}
