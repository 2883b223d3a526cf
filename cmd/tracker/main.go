package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/config"
	"github.com/saviobatista/fsd-connector/internal/db"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/nats"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/redis"
	"github.com/saviobatista/fsd-connector/internal/stats"
	"github.com/saviobatista/fsd-connector/internal/types"
)

const (
	// sessionTimeout ends sessions of pilots that stopped reporting without a #DP
	sessionTimeout = 5 * time.Minute
	sweepInterval  = time.Minute
	statsInterval  = 5 * time.Minute
)

// DBClient interface for testability
type DBClient interface {
	GetActivePilotSessions() ([]*types.PilotSession, error)
	CreatePilotSession(s *types.PilotSession) error
	UpdatePilotSession(s *types.PilotSession) error
	StorePilotPosition(state *types.PilotState) error
	StoreControllerPosition(state *types.ControllerState) error
	StoreSystemStats(s db.SystemStats) error
	Close() error
}

// RedisClient interface for testability
type RedisClient interface {
	StorePilotState(ctx context.Context, state *types.PilotState) error
	DeletePilotState(ctx context.Context, callsign string) error
	StoreControllerState(ctx context.Context, state *types.ControllerState) error
	DeleteControllerState(ctx context.Context, callsign string) error
	StorePilotSession(ctx context.Context, session *types.PilotSession) error
	DeletePilotSession(ctx context.Context, callsign string) error
	Close() error
}

// StateTracker tracks pilots and controllers seen on the network and keeps
// one session per pilot logon
type StateTracker struct {
	db     DBClient
	redis  RedisClient
	stats  *stats.Stats
	logger logrus.FieldLogger
	now    func() time.Time

	mu          sync.Mutex
	sessions    map[string]*types.PilotSession
	pilots      map[string]*types.PilotState
	controllers map[string]*types.ControllerState
}

// NewStateTracker creates a new state tracker
func NewStateTracker(db DBClient, redis RedisClient, logger logrus.FieldLogger) *StateTracker {
	return &StateTracker{
		db:          db,
		redis:       redis,
		stats:       stats.New(),
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*types.PilotSession),
		pilots:      make(map[string]*types.PilotState),
		controllers: make(map[string]*types.ControllerState),
	}
}

// Stats returns the tracker statistics
func (t *StateTracker) Stats() *stats.Stats {
	return t.stats
}

// Start loads open sessions and starts the background loops
func (t *StateTracker) Start(ctx context.Context) error {
	sessions, err := t.db.GetActivePilotSessions()
	if err != nil {
		return fmt.Errorf("failed to load active pilot sessions: %w", err)
	}

	t.mu.Lock()
	for _, s := range sessions {
		t.sessions[key(s.Callsign)] = s
		if err := t.redis.StorePilotSession(ctx, s); err != nil {
			t.logger.WithError(err).Warn("failed to cache pilot session in Redis")
		}
	}
	t.mu.Unlock()
	t.logger.WithField("sessions", len(sessions)).Info("loaded active pilot sessions")

	t.stats.SetStore(t.db)

	go t.logStats(ctx)
	go t.sweep(ctx)
	go t.stats.StartPersistence(ctx, statsInterval, t.logger)

	return nil
}

// ProcessPacket decodes one inbound packet and updates the tracked state
func (t *StateTracker) ProcessPacket(p *types.RawPacket) error {
	start := time.Now()
	t.stats.IncrementPacketsIn(p.Raw)

	msg, err := pdu.Decode(p.Raw, true)
	if err != nil {
		t.stats.IncrementFailedPackets()
		return fmt.Errorf("failed to decode packet: %w", err)
	}
	if msg == nil {
		t.stats.IncrementDroppedPackets()
		return nil
	}
	t.stats.IncrementParsedPackets()

	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := msg.(type) {
	case *pdu.AddPilot:
		err = t.startSession(m, p.Timestamp)
	case *pdu.PilotPosition:
		err = t.updatePilot(pilotState(m, p.Timestamp))
	case *pdu.FastPilotPosition:
		err = t.updateFastPilot(m, p.Timestamp)
	case *pdu.DeletePilot:
		err = t.endSession(m.From, p.Timestamp)
	case *pdu.ATCPosition:
		err = t.updateController(controllerState(m, p.Timestamp))
	case *pdu.DeleteATC:
		t.removeController(m.From)
	}

	t.stats.SetActivePilots(uint64(len(t.sessions)))
	t.stats.SetActiveControllers(uint64(len(t.controllers)))
	t.stats.AddProcessingTime(time.Since(start))
	return err
}

func key(callsign string) string {
	return strings.ToUpper(callsign)
}

func pilotState(m *pdu.PilotPosition, at time.Time) *types.PilotState {
	return &types.PilotState{
		Callsign:         m.From,
		Squawk:           m.SquawkCode,
		SquawkingModeC:   m.IsSquawkingModeC,
		Identing:         m.IsIdenting,
		Rating:           int(m.Rating),
		Latitude:         m.Lat,
		Longitude:        m.Lon,
		TrueAltitude:     m.TrueAltitude,
		PressureAltitude: m.PressureAltitude,
		GroundSpeed:      m.GroundSpeed,
		Pitch:            m.Pitch,
		Bank:             m.Bank,
		Heading:          m.Heading,
		Timestamp:        at,
	}
}

func controllerState(m *pdu.ATCPosition, at time.Time) *types.ControllerState {
	return &types.ControllerState{
		Callsign:        m.From,
		Frequency:       m.Frequency,
		Facility:        int(m.Facility),
		VisibilityRange: m.VisibilityRange,
		Rating:          int(m.Rating),
		Latitude:        m.Lat,
		Longitude:       m.Lon,
		Timestamp:       at,
	}
}

// startSession opens a session for a pilot logon, ending a stale one first
func (t *StateTracker) startSession(m *pdu.AddPilot, at time.Time) error {
	if _, ok := t.sessions[key(m.From)]; ok {
		if err := t.endSession(m.From, at); err != nil {
			return err
		}
	}
	_, err := t.createSession(m.From, m.CID, m.RealName, at, nil)
	return err
}

func (t *StateTracker) createSession(callsign, cid, realName string, at time.Time, state *types.PilotState) (*types.PilotSession, error) {
	s := &types.PilotSession{
		SessionID: uuid.New().String(),
		Callsign:  callsign,
		CID:       cid,
		RealName:  realName,
		StartedAt: at,
	}
	if state != nil {
		s.FirstLatitude, s.FirstLongitude = state.Latitude, state.Longitude
		s.LastLatitude, s.LastLongitude = state.Latitude, state.Longitude
		s.MaxAltitude, s.MaxGroundSpeed = state.TrueAltitude, state.GroundSpeed
	}
	t.sessions[key(callsign)] = s

	if err := t.redis.StorePilotSession(context.Background(), s); err != nil {
		t.logger.WithError(err).Warn("failed to store pilot session in Redis")
	}
	if err := t.db.CreatePilotSession(s); err != nil {
		return nil, fmt.Errorf("failed to create pilot session: %w", err)
	}
	t.stats.IncrementCreatedSessions()
	t.logger.WithFields(logrus.Fields{"callsign": callsign, "session_id": s.SessionID}).Debug("pilot session started")
	return s, nil
}

// updatePilot stores a full position report and folds it into the session
func (t *StateTracker) updatePilot(state *types.PilotState) error {
	k := key(state.Callsign)
	s := t.sessions[k]
	if s == nil {
		// Logged on before the tracker started
		var err error
		if s, err = t.createSession(state.Callsign, "", "", state.Timestamp, state); err != nil {
			return err
		}
	}
	state.SessionID = s.SessionID
	t.pilots[k] = state

	if err := t.redis.StorePilotState(context.Background(), state); err != nil {
		t.logger.WithError(err).Warn("failed to store pilot state in Redis")
	}
	if err := t.db.StorePilotPosition(state); err != nil {
		return fmt.Errorf("failed to store pilot position: %w", err)
	}
	t.stats.IncrementStoredPositions()

	if s.FirstLatitude == 0 && s.FirstLongitude == 0 {
		s.FirstLatitude, s.FirstLongitude = state.Latitude, state.Longitude
	}
	s.LastLatitude, s.LastLongitude = state.Latitude, state.Longitude
	if state.TrueAltitude > s.MaxAltitude {
		s.MaxAltitude = state.TrueAltitude
	}
	if state.GroundSpeed > s.MaxGroundSpeed {
		s.MaxGroundSpeed = state.GroundSpeed
	}
	if err := t.redis.StorePilotSession(context.Background(), s); err != nil {
		t.logger.WithError(err).Warn("failed to update pilot session in Redis")
	}
	return nil
}

// updateFastPilot refreshes the cached state of a known pilot. Fast updates
// arrive several times per second and are not persisted.
func (t *StateTracker) updateFastPilot(m *pdu.FastPilotPosition, at time.Time) error {
	state := t.pilots[key(m.From)]
	if state == nil {
		t.stats.IncrementDroppedPackets()
		return nil
	}
	state.Latitude, state.Longitude = m.Lat, m.Lon
	state.TrueAltitude = int(m.Altitude)
	state.Pitch, state.Bank, state.Heading = m.Pitch, m.Bank, m.Heading
	state.Timestamp = at

	if err := t.redis.StorePilotState(context.Background(), state); err != nil {
		t.logger.WithError(err).Warn("failed to store pilot state in Redis")
	}
	return nil
}

// endSession closes the session of callsign. Unknown callsigns are ignored.
func (t *StateTracker) endSession(callsign string, at time.Time) error {
	k := key(callsign)
	s := t.sessions[k]
	delete(t.sessions, k)
	delete(t.pilots, k)

	if err := t.redis.DeletePilotSession(context.Background(), callsign); err != nil {
		t.logger.WithError(err).Warn("failed to delete pilot session from Redis")
	}
	if err := t.redis.DeletePilotState(context.Background(), callsign); err != nil {
		t.logger.WithError(err).Warn("failed to delete pilot state from Redis")
	}
	if s == nil {
		return nil
	}

	s.EndedAt = at
	if err := t.db.UpdatePilotSession(s); err != nil {
		return fmt.Errorf("failed to end pilot session: %w", err)
	}
	t.stats.IncrementEndedSessions()
	t.logger.WithFields(logrus.Fields{"callsign": callsign, "session_id": s.SessionID}).Debug("pilot session ended")
	return nil
}

func (t *StateTracker) updateController(state *types.ControllerState) error {
	t.controllers[key(state.Callsign)] = state

	if err := t.redis.StoreControllerState(context.Background(), state); err != nil {
		t.logger.WithError(err).Warn("failed to store controller state in Redis")
	}
	if err := t.db.StoreControllerPosition(state); err != nil {
		return fmt.Errorf("failed to store controller position: %w", err)
	}
	t.stats.IncrementStoredPositions()
	return nil
}

func (t *StateTracker) removeController(callsign string) {
	delete(t.controllers, key(callsign))
	if err := t.redis.DeleteControllerState(context.Background(), callsign); err != nil {
		t.logger.WithError(err).Warn("failed to delete controller state from Redis")
	}
}

// ExpireStale ends the sessions of pilots silent for longer than
// sessionTimeout and forgets silent controllers. It returns how many pilot
// sessions were ended.
func (t *StateTracker) ExpireStale() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ended := 0
	for k, s := range t.sessions {
		last := s.StartedAt
		if state := t.pilots[k]; state != nil {
			last = state.Timestamp
		}
		if now.Sub(last) <= sessionTimeout {
			continue
		}
		if err := t.endSession(s.Callsign, last); err != nil {
			t.logger.WithError(err).WithField("callsign", s.Callsign).Warn("failed to expire pilot session")
			continue
		}
		ended++
	}
	for k, c := range t.controllers {
		if now.Sub(c.Timestamp) > sessionTimeout {
			t.removeController(c.Callsign)
			delete(t.controllers, k)
		}
	}

	t.stats.SetActivePilots(uint64(len(t.sessions)))
	t.stats.SetActiveControllers(uint64(len(t.controllers)))
	return ended
}

func (t *StateTracker) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.ExpireStale(); n > 0 {
				t.logger.WithField("sessions", n).Info("expired silent pilot sessions")
			}
		}
	}
}

// logStats periodically logs statistics
func (t *StateTracker) logStats(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.logger.WithFields(t.stats.Fields()).Info("statistics")
		}
	}
}

// createClients creates all the required clients for the application
func createClients(cfg *config.Config, logger logrus.FieldLogger) (*nats.Client, *db.Client, *redis.Client, error) {
	natsClient, err := nats.New(cfg.NATSURL, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		natsClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create database client: %w", err)
	}

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		natsClient.Close()
		if closeErr := dbClient.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("error closing database client")
		}
		return nil, nil, nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return natsClient, dbClient, redisClient, nil
}

// setupNATSSubscription feeds inbound packets to the tracker
func setupNATSSubscription(natsClient *nats.Client, tracker *StateTracker, logger logrus.FieldLogger) error {
	if err := natsClient.SubscribeInbound(func(p *types.RawPacket) {
		if err := tracker.ProcessPacket(p); err != nil {
			logger.WithError(err).WithFields(logging.PacketFields(p)).Warn("failed to process packet")
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to inbound packets: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) error {
	natsClient, dbClient, redisClient, err := createClients(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		natsClient.Close()
		if err := dbClient.Close(); err != nil {
			logger.WithError(err).Warn("error closing database client")
		}
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Warn("error closing Redis client")
		}
	}()

	tracker := NewStateTracker(dbClient, redisClient, logger)
	if err := tracker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start state tracker: %w", err)
	}
	if err := setupNATSSubscription(natsClient, tracker, logger); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func main() {
	cfg, err := config.LoadServices()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("tracker stopped")
		os.Exit(1)
	}
}
