// Package auth implements the FSD challenge/response handshake.
//
// A Machine plays two roles at once. As responder it answers challenges
// sent by the server. As challenger it periodically challenges the server
// and verifies the answers. Machine performs no I/O and keeps no timers:
// it returns the packets to send and the Schedule for the next check, and
// the owner is expected to call it from a single goroutine.
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"

	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/types"
)

var (
	// ErrChallengeTimeout is returned when the server did not answer a challenge in time
	ErrChallengeTimeout = errors.New("the server has failed to respond to the authentication challenge")
	// ErrChallengeMismatch is returned when the server answered a challenge incorrectly
	ErrChallengeMismatch = errors.New("the server has failed to respond correctly to the authentication challenge")
)

// Responder computes challenges and responses.
// The production implementation wraps the network's native key library.
type Responder interface {
	GenerateChallenge() string
	Respond(challenge, key string, props types.ClientProperties) string
	PublicKeyPresent() bool
}

// Config holds the challenger timings
type Config struct {
	ChallengeInterval time.Duration `toml:"challenge_interval"`
	ResponseWindow    time.Duration `toml:"response_window"`
}

// DefaultConfig returns the timings used by the network
func DefaultConfig() Config {
	return Config{
		ChallengeInterval: 60 * time.Second,
		ResponseWindow:    30 * time.Second,
	}
}

// Phase is the challenger role progress
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFirstChallenge
	PhaseChallengeOutstanding
	PhaseEstablished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingFirstChallenge:
		return "awaiting_first_challenge"
	case PhaseChallengeOutstanding:
		return "challenge_outstanding"
	case PhaseEstablished:
		return "established"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Schedule tells the owner when to call Fire next.
// Arm false leaves the current timer alone.
type Schedule struct {
	Arm      bool
	After    time.Duration
	Callsign string
}

// Fired is the outcome of a timer expiry
type Fired struct {
	Challenge *pdu.AuthChallenge
	Schedule  Schedule
	Err       error
}

// Verdict is the outcome of an inbound AuthResponse
type Verdict int

const (
	// Forward hands the response to the host untouched
	Forward Verdict = iota
	Accepted
	Rejected
)

// Machine is the authentication state of one connection
type Machine struct {
	responder Responder
	props     types.ClientProperties
	cfg       Config

	clientSessionKey   string
	clientChallengeKey string

	challenging        bool
	callsign           string
	serverSessionKey   string
	serverChallengeKey string
	lastChallenge      string
	phase              Phase
}

// NewMachine creates an idle Machine
func NewMachine(responder Responder, props types.ClientProperties, cfg Config) *Machine {
	return &Machine{responder: responder, props: props, cfg: cfg}
}

// Start enables or disables the challenger role for a new connection.
// The role stays off when the responder has no public key.
func (m *Machine) Start(challengeServer bool) {
	m.Reset()
	m.challenging = challengeServer && m.responder.PublicKeyPresent()
}

// active reports whether the challenger role is running
func (m *Machine) active() bool {
	return m.challenging && m.responder.PublicKeyPresent()
}

// Phase returns the challenger progress
func (m *Machine) Phase() Phase {
	return m.phase
}

// Reset clears every key of both roles
func (m *Machine) Reset() {
	m.clientSessionKey = ""
	m.clientChallengeKey = ""
	m.challenging = false
	m.callsign = ""
	m.serverSessionKey = ""
	m.serverChallengeKey = ""
	m.lastChallenge = ""
	m.phase = PhaseIdle
}

// PrepareOutgoing inspects a message about to be sent.
// An identification without an initial challenge gets one embedded; the
// returned message is then a copy. A logon at an authenticating revision
// schedules the first challenge.
func (m *Machine) PrepareOutgoing(msg pdu.Message) (pdu.Message, Schedule) {
	if !m.active() {
		return msg, Schedule{}
	}

	switch v := msg.(type) {
	case *pdu.ClientIdentification:
		if v.InitialChallenge != "" {
			return msg, Schedule{}
		}
		challenge := m.responder.GenerateChallenge()
		m.serverSessionKey = m.responder.Respond(challenge, "", m.props)
		cp := *v
		cp.InitialChallenge = challenge
		return &cp, Schedule{}
	case *pdu.AddPilot:
		if v.ProtocolRevision.RequiresAuth() {
			return msg, m.armFirst(v.From)
		}
	case *pdu.AddATC:
		if v.ProtocolRevision.RequiresAuth() {
			return msg, m.armFirst(v.From)
		}
	}
	return msg, Schedule{}
}

func (m *Machine) armFirst(callsign string) Schedule {
	m.callsign = callsign
	m.phase = PhaseAwaitingFirstChallenge
	return Schedule{Arm: true, After: m.cfg.ResponseWindow, Callsign: callsign}
}

// HandleServerIdentification derives the client session key from the server greeting
func (m *Machine) HandleServerIdentification(di *pdu.ServerIdentification) {
	if !m.responder.PublicKeyPresent() {
		return
	}
	m.clientSessionKey = m.responder.Respond(di.InitialChallengeKey, "", m.props)
	m.clientChallengeKey = m.clientSessionKey
}

// HandleChallenge answers a server challenge.
// It returns false when the challenge must be handed to the host instead.
func (m *Machine) HandleChallenge(c *pdu.AuthChallenge) (*pdu.AuthResponse, bool) {
	if !m.responder.PublicKeyPresent() {
		return nil, false
	}
	response := m.responder.Respond(c.Challenge, m.clientChallengeKey, m.props)
	m.clientChallengeKey = Digest(m.clientSessionKey + response)
	return &pdu.AuthResponse{
		Header:   pdu.Header{From: c.To, To: c.From},
		Response: response,
	}, true
}

// HandleResponse verifies the server's answer to our last challenge.
// Responses arriving while no challenge is outstanding are forwarded.
func (m *Machine) HandleResponse(r *pdu.AuthResponse) (Verdict, Schedule, error) {
	if !m.active() || m.serverChallengeKey == "" || m.lastChallenge == "" {
		return Forward, Schedule{}, nil
	}

	expected := m.responder.Respond(m.lastChallenge, m.serverChallengeKey, m.props)
	if r.Response != expected {
		m.phase = PhaseFailed
		return Rejected, Schedule{}, ErrChallengeMismatch
	}

	m.lastChallenge = ""
	m.serverChallengeKey = Digest(m.serverSessionKey + r.Response)
	m.phase = PhaseEstablished
	return Accepted, Schedule{Arm: true, After: m.cfg.ChallengeInterval, Callsign: m.callsign}, nil
}

// Fire runs a scheduled check for callsign, the snapshot taken when it was armed
func (m *Machine) Fire(callsign string) Fired {
	if !m.active() {
		return Fired{}
	}
	if m.serverChallengeKey == "" {
		m.serverChallengeKey = m.serverSessionKey
		return m.challenge(callsign)
	}
	if m.lastChallenge != "" {
		m.phase = PhaseFailed
		return Fired{Err: ErrChallengeTimeout}
	}
	return m.challenge(callsign)
}

func (m *Machine) challenge(callsign string) Fired {
	m.lastChallenge = m.responder.GenerateChallenge()
	m.phase = PhaseChallengeOutstanding
	return Fired{
		Challenge: &pdu.AuthChallenge{
			Header:    pdu.Header{From: callsign, To: pdu.ServerCallsign},
			Challenge: m.lastChallenge,
		},
		Schedule: Schedule{Arm: true, After: m.cfg.ResponseWindow, Callsign: callsign},
	}
}

// Digest returns the lowercase hex MD5 of s
func Digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
