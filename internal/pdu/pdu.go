// Package pdu implements the FSD protocol data units and their text codec.
//
// Every variant is a struct embedding Header. Encode and Decode are the only
// places that know the wire layout; both are pure and safe for concurrent use.
package pdu

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Wire constants
const (
	Delimiter       = ":"
	PacketDelimiter = "\r\n"

	ServerCallsign                 = "SERVER"
	BroadcastRecipient             = "*"
	WallopRecipient                = "*S"
	ATCRecipient                   = "@49999"
	ClientQueryBroadcastRecipient  = "@94835"
	ClientQueryBroadcastPilots     = "@94836"
	RadioFrequencyPrefix           = "@"
	RadioFrequencySeparator        = "&"
	ClientCommunicationProtocolTag = "CCP"
)

var (
	// ErrInvalidCoordinate is returned when a position is built with a NaN latitude or longitude
	ErrInvalidCoordinate = errors.New("latitude and longitude must be valid numbers")

	errInvalidFieldCount = errors.New("invalid field count")
)

// Message is one decoded FSD protocol data unit.
//
// The set of implementations is closed: only the variants in this package
// satisfy it.
type Message interface {
	Sender() string
	Recipient() string
	isMessage()
}

// Header carries the callsigns common to every PDU
type Header struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Sender returns the originating callsign
func (h Header) Sender() string { return h.From }

// Recipient returns the destination callsign
func (h Header) Recipient() string { return h.To }

func (*Header) isMessage() {}

// FormatError reports a packet that could not be decoded
type FormatError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (Raw packet: %s): %v", e.Reason, e.Raw, e.Err)
	}
	return fmt.Sprintf("%s (Raw packet: %s)", e.Reason, e.Raw)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Validate reports whether m can be put on the wire.
// Variants without constraints are always valid.
func Validate(m Message) error {
	if v, ok := m.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// Reassemble joins fields back into packet text
func Reassemble(fields []string) string {
	return strings.Join(fields, Delimiter)
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) {
		return fmt.Errorf("%w: latitude is NaN", ErrInvalidCoordinate)
	}
	if math.IsNaN(lon) {
		return fmt.Errorf("%w: longitude is NaN", ErrInvalidCoordinate)
	}
	return nil
}
