// Package session runs one FSD client connection.
//
// Each connection is served by a single goroutine that owns the transport,
// the framer, the authentication machine and its timer, and that emits every
// event. A second goroutine only reads bytes from the transport and hands
// them over. Send, Disconnect and State are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/auth"
	"github.com/saviobatista/fsd-connector/internal/framer"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/types"
)

var (
	// ErrNotConnected is returned by Send when no connection is established
	ErrNotConnected = errors.New("session is not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is running
	ErrAlreadyConnected = errors.New("session is already connected")
)

// Connection states
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

const (
	eventConnect    = "connect"
	eventEstablish  = "establish"
	eventFail       = "fail"
	eventDisconnect = "disconnect"
)

// Option configures a Session
type Option func(*Session)

// WithDialer replaces the TCP dialer
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithResolver replaces the DNS resolver
func WithResolver(r Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.logger = l }
}

// WithConfig replaces the whole configuration
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithIgnoreUnknown drops unknown packets silently instead of reporting them
func WithIgnoreUnknown(ignore bool) Option {
	return func(s *Session) { s.cfg.IgnoreUnknown = ignore }
}

// Session is a reusable FSD client; Connect may be called again once the
// previous connection has ended.
type Session struct {
	props     types.ClientProperties
	responder auth.Responder
	sink      Sink
	cfg       Config
	dialer    Dialer
	resolver  Resolver
	logger    logrus.FieldLogger

	mu    sync.Mutex
	state *fsm.FSM
	conn  *connection
}

// connection is the state shared between the session goroutine and callers
type connection struct {
	id       string
	cancel   context.CancelFunc
	outbox   chan pdu.Message
	stopping chan struct{}
	done     chan struct{}
}

// New creates a disconnected Session
func New(props types.ClientProperties, responder auth.Responder, sink Sink, opts ...Option) *Session {
	s := &Session{
		props:     props,
		responder: responder,
		sink:      sink,
		cfg:       DefaultConfig(),
		resolver:  net.DefaultResolver,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &net.Dialer{Timeout: s.cfg.DialTimeout, KeepAlive: s.cfg.KeepAlivePeriod}
	}
	if s.cfg.ReadBufferSize <= 0 {
		s.cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}

	s.state = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventEstablish, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
			{Name: eventDisconnect, Src: []string{StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.WithFields(logrus.Fields{"from": e.Src, "to": e.Dst}).Debug("session state changed")
			},
		},
	)
	return s
}

// State returns disconnected, connecting or connected
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Current()
}

// Connect starts a connection to address:port in the background.
// The outcome is reported to the sink: Connected, or NetworkError followed by
// ConnectionFailed. Cancelling ctx tears the connection down. When
// challengeServer is set the server is challenged periodically once logged on.
func (s *Session) Connect(ctx context.Context, address string, port int, challengeServer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil || !s.state.Is(StateDisconnected) {
		return ErrAlreadyConnected
	}
	if err := s.state.Event(context.Background(), eventConnect); err != nil {
		return fmt.Errorf("failed to enter connecting state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		id:     uuid.New().String(),
		cancel: cancel,
		outbox:   make(chan pdu.Message, 64),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.conn = c

	go s.run(runCtx, c, address, port, challengeServer)
	return nil
}

// Send validates m and queues it for the wire.
// Invalid messages are rejected here and never written. A nil error means
// the message was queued; a queued message that the connection ends before
// writing is reported as a NetworkError wrapping ErrNotConnected.
func (s *Session) Send(m pdu.Message) error {
	if m == nil {
		return errors.New("cannot send nil message")
	}
	if err := pdu.Validate(m); err != nil {
		return fmt.Errorf("invalid %T: %w", m, err)
	}

	// Holding mu keeps teardown from draining the outbox before m is in it.
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	if c == nil || !s.state.Is(StateConnected) {
		return ErrNotConnected
	}

	select {
	case c.outbox <- m:
		return nil
	case <-c.stopping:
		return ErrNotConnected
	}
}

// Disconnect tears the current connection down and waits until the
// Disconnected event was emitted. It is a no-op when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Done returns a channel closed when the current connection has ended.
// It is closed already when there is none.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.conn.done
}

// finish moves back to disconnected and forgets c
func (s *Session) finish(c *connection, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Event(context.Background(), event); err != nil {
		s.logger.WithError(err).Warn("unexpected state transition")
	}
	if s.conn == c {
		s.conn = nil
	}
}

func (s *Session) establish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Event(context.Background(), eventEstablish)
}

type readResult struct {
	data []byte
	err  error
}

// loop is the per-connection state owned by the session goroutine
type loop struct {
	s        *Session
	c        *connection
	conn     net.Conn
	framer   *framer.Framer
	auth     *auth.Machine
	timer    *time.Timer
	callsign string
	logger   logrus.FieldLogger
}

func (s *Session) run(ctx context.Context, c *connection, address string, port int, challengeServer bool) {
	defer close(c.done)
	defer c.cancel()

	logger := s.logger.WithFields(logrus.Fields{
		"session_id": c.id,
		"address":    address,
	})

	conn, err := s.dial(ctx, address, port)
	if err != nil {
		logger.WithError(err).Warn("connection failed")
		s.finish(c, eventFail)
		s.notify(NetworkError{Meta: s.meta(c), Err: err})
		s.notify(ConnectionFailed{Meta: s.meta(c), Err: err})
		return
	}
	configureTCP(conn, s.cfg.KeepAlivePeriod, logger)

	if err := s.establish(); err != nil {
		logger.WithError(err).Error("failed to enter connected state")
	}
	logger.Info("connected")
	s.notify(Connected{Meta: s.meta(c), Address: conn.RemoteAddr().String()})

	machine := auth.NewMachine(s.responder, s.props, s.cfg.Auth)
	machine.Start(challengeServer)

	l := &loop{
		s:      s,
		c:      c,
		conn:   conn,
		framer: framer.New(),
		auth:   machine,
		timer:  newStoppedTimer(),
		logger: logger,
	}
	l.serve(ctx)
}

func (s *Session) dial(ctx context.Context, address string, port int) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	target, err := resolve(dialCtx, s.resolver, address, port)
	if err != nil {
		return nil, err
	}
	conn, err := s.dialer.DialContext(dialCtx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return conn, nil
}

func (s *Session) notify(ev Event) {
	if s.sink != nil {
		s.sink.Notify(ev)
	}
}

func (s *Session) meta(c *connection) Meta {
	return Meta{ID: c.id, At: time.Now().UTC()}
}

func (l *loop) serve(ctx context.Context) {
	reads := make(chan readResult)
	quit := make(chan struct{})
	go l.read(reads, quit)

	defer func() {
		close(quit)
		l.teardown()
	}()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("disconnect requested")
			return

		case r := <-reads:
			if r.err != nil || len(r.data) == 0 {
				if r.err != nil && !isConnectionReset(r.err) {
					l.notify(NetworkError{Meta: l.meta(), Err: fmt.Errorf("failed to read: %w", r.err)})
				}
				l.logger.Info("connection closed by peer")
				return
			}
			if !l.handleChunk(r.data) {
				return
			}

		case m := <-l.c.outbox:
			if !l.write(m) {
				return
			}

		case <-l.timer.C:
			if !l.handleTimer() {
				return
			}
		}
	}
}

// read copies chunks from the transport until it fails
func (l *loop) read(out chan<- readResult, quit <-chan struct{}) {
	buf := make([]byte, l.s.cfg.ReadBufferSize)
	for {
		n, err := l.conn.Read(buf)
		var res readResult
		if n > 0 {
			res.data = append([]byte(nil), buf[:n]...)
		} else {
			res.err = err
		}
		select {
		case out <- res:
		case <-quit:
			return
		}
		if n == 0 {
			return
		}
	}
}

// teardown runs on every exit path and emits the final event
func (l *loop) teardown() {
	close(l.c.stopping)
	stopTimer(l.timer)
	l.auth.Reset()
	l.framer.Reset()
	if err := l.conn.Close(); err != nil && !isConnectionReset(err) {
		l.logger.WithError(err).Debug("error closing connection")
	}
	l.s.finish(l.c, eventDisconnect)
	l.dropQueued()
	l.logger.Info("disconnected")
	l.notify(Disconnected{Meta: l.meta()})
}

// dropQueued reports messages still in the outbox. Send cannot queue more
// once finish has run.
func (l *loop) dropQueued() {
	for {
		select {
		case m := <-l.c.outbox:
			l.notify(NetworkError{Meta: l.meta(), Err: fmt.Errorf("failed to send %T: %w", m, ErrNotConnected)})
		default:
			return
		}
	}
}

// handleChunk returns false when the connection must be torn down
func (l *loop) handleChunk(chunk []byte) bool {
	packets, err := l.framer.Feed(chunk)
	if errors.Is(err, framer.ErrConnectionClosed) {
		return false
	}
	for _, p := range packets {
		if !l.handlePacket(p) {
			return false
		}
	}
	return true
}

func (l *loop) handlePacket(packet string) bool {
	l.notify(RawDataReceived{Meta: l.meta(), Data: packet})

	msg, err := pdu.Decode(packet, l.s.cfg.IgnoreUnknown)
	if err != nil {
		l.logger.WithError(err).Debug("failed to decode packet")
		l.notify(NetworkError{Meta: l.meta(), Err: err})
		return true
	}
	if msg == nil {
		return true
	}

	switch m := msg.(type) {
	case *pdu.ServerIdentification:
		l.auth.HandleServerIdentification(m)
	case *pdu.AuthChallenge:
		if resp, ok := l.auth.HandleChallenge(m); ok {
			return l.write(resp)
		}
	case *pdu.AuthResponse:
		verdict, sched, err := l.auth.HandleResponse(m)
		switch verdict {
		case auth.Accepted:
			l.logger.Debug("server answered challenge")
			l.arm(sched)
			return true
		case auth.Rejected:
			l.logger.WithError(err).Warn("server authentication failed")
			l.notify(NetworkError{Meta: l.meta(), Err: err})
			return false
		}
	}

	l.notify(Received{Meta: l.meta(), Message: msg})
	return true
}

func (l *loop) handleTimer() bool {
	fired := l.auth.Fire(l.callsign)
	if fired.Err != nil {
		l.logger.WithError(fired.Err).Warn("server authentication failed")
		l.notify(NetworkError{Meta: l.meta(), Err: fired.Err})
		return false
	}
	l.arm(fired.Schedule)
	if fired.Challenge != nil {
		return l.write(fired.Challenge)
	}
	return true
}

// write sends m; it returns false when the connection must be torn down
func (l *loop) write(m pdu.Message) bool {
	out, sched := l.auth.PrepareOutgoing(m)
	l.arm(sched)

	packet := pdu.Encode(out)
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.s.cfg.WriteTimeout)); err != nil {
		l.logger.WithError(err).Debug("failed to set write deadline")
	}
	if _, err := l.conn.Write(framer.Frame(packet)); err != nil {
		l.notify(NetworkError{Meta: l.meta(), Err: fmt.Errorf("failed to send: %w", err)})
		return !isConnectionReset(err)
	}
	l.notify(RawDataSent{Meta: l.meta(), Data: packet})
	return true
}

func (l *loop) arm(sched auth.Schedule) {
	if !sched.Arm {
		return
	}
	stopTimer(l.timer)
	l.timer.Reset(sched.After)
	l.callsign = sched.Callsign
}

func (l *loop) notify(ev Event) {
	l.s.notify(ev)
}

func (l *loop) meta() Meta {
	return l.s.meta(l.c)
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
