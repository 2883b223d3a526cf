// Package capture keeps an FSD session connected, reconnecting with
// exponential backoff whenever the connection fails or ends.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/session"
)

// ErrGaveUp is returned by Run when the backoff policy stops retrying
var ErrGaveUp = errors.New("gave up reconnecting")

// Connector is the part of a session the supervisor drives.
// *session.Session satisfies it.
type Connector interface {
	Connect(ctx context.Context, address string, port int, challengeServer bool) error
	Done() <-chan struct{}
	Disconnect()
}

// Target is the server to connect to
type Target struct {
	Address         string
	Port            int
	ChallengeServer bool
}

// TargetFunc picks the server for the next connection attempt
type TargetFunc func(ctx context.Context) (Target, error)

// Option configures a Supervisor
type Option func(*Supervisor)

// WithBackOff replaces the reconnect policy
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Supervisor) { s.newBackOff = newBackOff }
}

// WithTargetFunc picks the server anew before every attempt
func WithTargetFunc(fn TargetFunc) Option {
	return func(s *Supervisor) { s.target = fn }
}

// Supervisor reconnects a session. It is also a session.Sink: it must
// receive the session's events to tell an established connection from a
// failed attempt.
type Supervisor struct {
	target     TargetFunc
	newBackOff func() backoff.BackOff
	logger     logrus.FieldLogger

	mu             sync.Mutex
	connected      bool
	established    bool
	disconnectTime time.Time
	attempts       int
}

// New creates a Supervisor for a fixed target
func New(target Target, logger logrus.FieldLogger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Supervisor{
		target:     func(context.Context) (Target, error) { return target, nil },
		newBackOff: DefaultBackOff,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultBackOff retries forever, from 1s up to one minute between attempts
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Notify tracks connection state from session events
func (s *Supervisor) Notify(ev session.Event) {
	switch e := ev.(type) {
	case session.Connected:
		s.handleSuccessfulConnection(e)
	case session.Disconnected:
		s.mu.Lock()
		if s.connected {
			s.disconnectTime = e.Time()
			s.connected = false
		}
		s.mu.Unlock()
	case session.ConnectionFailed:
		s.mu.Lock()
		if s.disconnectTime.IsZero() {
			s.disconnectTime = e.Time()
		}
		s.mu.Unlock()
	}
}

// handleSuccessfulConnection logs how long the feed was down
func (s *Supervisor) handleSuccessfulConnection(e session.Connected) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.established = true
	log := s.logger.WithField("address", e.Address)
	if s.disconnectTime.IsZero() {
		log.Info("successfully connected")
		return
	}

	duration := e.Time().Sub(s.disconnectTime)
	switch {
	case duration >= 10*time.Second:
		log.Infof("connection reestablished after %.1f minutes", duration.Minutes())
	case duration >= 100*time.Millisecond:
		log.Infof("a connection hiccup of %.1f seconds happened", duration.Seconds())
	}
	s.disconnectTime = time.Time{}
}

// Attempts returns how many connection attempts Run has made
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Run connects conn and reconnects it until ctx is done or the backoff
// policy gives up. The backoff restarts after every established connection.
func (s *Supervisor) Run(ctx context.Context, conn Connector) error {
	b := backoff.WithContext(s.newBackOff(), ctx)
	b.Reset()

	for {
		s.connectOnce(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.mu.Lock()
		if s.established {
			b.Reset()
			s.established = false
		}
		s.mu.Unlock()

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrGaveUp
		}
		s.logger.WithField("retry_in", wait.String()).Warn("connection lost, reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// connectOnce runs one connection attempt to completion
func (s *Supervisor) connectOnce(ctx context.Context, conn Connector) {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	target, err := s.target(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to select server")
		return
	}

	log := s.logger.WithField("address", target.Address)
	log.Debug("attempting to connect")
	if err := conn.Connect(ctx, target.Address, target.Port, target.ChallengeServer); err != nil {
		log.WithError(err).Error("failed to start connection")
		return
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Disconnect()
	}
}
