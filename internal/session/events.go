package session

import (
	"time"

	"github.com/saviobatista/fsd-connector/internal/pdu"
)

// Event is a notification emitted by a Session.
// The set of implementations is closed.
type Event interface {
	SessionID() string
	Time() time.Time
	isEvent()
}

// Meta identifies the connection an event belongs to
type Meta struct {
	ID string
	At time.Time
}

// SessionID returns the id of the connection that emitted the event
func (m Meta) SessionID() string { return m.ID }

// Time returns when the event was emitted
func (m Meta) Time() time.Time { return m.At }

func (Meta) isEvent() {}

// Connected is emitted once the transport is open
type Connected struct {
	Meta
	Address string
}

// Disconnected is the last event of a connection
type Disconnected struct {
	Meta
}

// ConnectionFailed is emitted when resolution or dialing fails.
// It is the last event of that connection attempt.
type ConnectionFailed struct {
	Meta
	Err error
}

// NetworkError reports a decode, transport or authentication failure
type NetworkError struct {
	Meta
	Err error
}

// RawDataSent carries a packet written to the wire, without terminator
type RawDataSent struct {
	Meta
	Data string
}

// RawDataReceived carries a packet read from the wire, without terminator
type RawDataReceived struct {
	Meta
	Data string
}

// Received carries a decoded inbound message
type Received struct {
	Meta
	Message pdu.Message
}

// Handler has one callback per event type
type Handler interface {
	OnConnected(Connected)
	OnDisconnected(Disconnected)
	OnConnectionFailed(ConnectionFailed)
	OnNetworkError(NetworkError)
	OnRawDataSent(RawDataSent)
	OnRawDataReceived(RawDataReceived)
	OnReceived(Received)
}

// HandlerFuncs implements Handler with optional callbacks; nil ones are skipped
type HandlerFuncs struct {
	Connected        func(Connected)
	Disconnected     func(Disconnected)
	ConnectionFailed func(ConnectionFailed)
	NetworkError     func(NetworkError)
	RawDataSent      func(RawDataSent)
	RawDataReceived  func(RawDataReceived)
	Received         func(Received)
}

func (h HandlerFuncs) OnConnected(e Connected) {
	if h.Connected != nil {
		h.Connected(e)
	}
}

func (h HandlerFuncs) OnDisconnected(e Disconnected) {
	if h.Disconnected != nil {
		h.Disconnected(e)
	}
}

func (h HandlerFuncs) OnConnectionFailed(e ConnectionFailed) {
	if h.ConnectionFailed != nil {
		h.ConnectionFailed(e)
	}
}

func (h HandlerFuncs) OnNetworkError(e NetworkError) {
	if h.NetworkError != nil {
		h.NetworkError(e)
	}
}

func (h HandlerFuncs) OnRawDataSent(e RawDataSent) {
	if h.RawDataSent != nil {
		h.RawDataSent(e)
	}
}

func (h HandlerFuncs) OnRawDataReceived(e RawDataReceived) {
	if h.RawDataReceived != nil {
		h.RawDataReceived(e)
	}
}

func (h HandlerFuncs) OnReceived(e Received) {
	if h.Received != nil {
		h.Received(e)
	}
}

// Dispatch calls the Handler method matching ev
func Dispatch(ev Event, h Handler) {
	switch e := ev.(type) {
	case Connected:
		h.OnConnected(e)
	case Disconnected:
		h.OnDisconnected(e)
	case ConnectionFailed:
		h.OnConnectionFailed(e)
	case NetworkError:
		h.OnNetworkError(e)
	case RawDataSent:
		h.OnRawDataSent(e)
	case RawDataReceived:
		h.OnRawDataReceived(e)
	case Received:
		h.OnReceived(e)
	}
}
