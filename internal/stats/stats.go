package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/fsd-connector/internal/db"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/session"
)

// Packet kinds counted in PacketTypeCounts
const (
	KindPilotPosition = iota
	KindFastPosition
	KindATCPosition
	KindTextMessage
	KindClientQuery
	KindAuth
	KindFlightPlan
	KindLogon
	KindOtherHash
	KindOtherDollar
	numKinds
)

// KindOf classifies a raw packet by its prefix or type code
func KindOf(raw string) int {
	switch {
	case strings.HasPrefix(raw, "@"):
		return KindPilotPosition
	case strings.HasPrefix(raw, "^"):
		return KindFastPosition
	case strings.HasPrefix(raw, "%"), strings.HasPrefix(raw, "'"):
		return KindATCPosition
	case strings.HasPrefix(raw, "#TM"):
		return KindTextMessage
	case strings.HasPrefix(raw, "$CQ"), strings.HasPrefix(raw, "$CR"):
		return KindClientQuery
	case strings.HasPrefix(raw, "$ZC"), strings.HasPrefix(raw, "$ZR"), strings.HasPrefix(raw, "$DI"), strings.HasPrefix(raw, "$ID"):
		return KindAuth
	case strings.HasPrefix(raw, "$FP"), strings.HasPrefix(raw, "$AM"):
		return KindFlightPlan
	case strings.HasPrefix(raw, "#AP"), strings.HasPrefix(raw, "#AA"), strings.HasPrefix(raw, "#DP"), strings.HasPrefix(raw, "#DA"):
		return KindLogon
	case strings.HasPrefix(raw, "$"):
		return KindOtherDollar
	default:
		return KindOtherHash
	}
}

// Store persists statistics samples
type Store interface {
	StoreSystemStats(s db.SystemStats) error
}

// Stats tracks packet and tracking statistics.
// It is a session.Sink: raw traffic, decoded messages and decode failures
// are counted as they are emitted.
type Stats struct {
	// Packet counts
	PacketsIn      uint64
	PacketsOut     uint64
	ParsedPackets  uint64
	FailedPackets  uint64
	DroppedPackets uint64

	// Authentication traffic we originated
	ChallengesSent     uint64
	ChallengesAnswered uint64

	// Tracking counts
	StoredPositions uint64
	CreatedSessions uint64
	EndedSessions   uint64

	// Packet kind counts, indexed by Kind*
	PacketTypeCounts [numKinds]uint64

	// Active tracking
	ActivePilots      uint64
	ActiveControllers uint64

	// Timing
	LastPacketTime time.Time
	ProcessingTime time.Duration
	startedAt      time.Time

	store Store

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	now := time.Now()
	return &Stats{
		LastPacketTime: now,
		startedAt:      now,
	}
}

// SetStore sets the persistence target
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return fmt.Errorf("statistics store not set")
	}

	return store.StoreSystemStats(s.Snapshot())
}

// Notify counts session events
func (s *Stats) Notify(ev session.Event) {
	switch e := ev.(type) {
	case session.RawDataReceived:
		s.IncrementPacketsIn(e.Data)
	case session.RawDataSent:
		s.IncrementPacketsOut(e.Data)
	case session.Received:
		s.IncrementParsedPackets()
	case session.NetworkError:
		var fe *pdu.FormatError
		if errors.As(e.Err, &fe) {
			s.IncrementFailedPackets()
		}
	}
}

// IncrementPacketsIn counts an inbound packet and its kind
func (s *Stats) IncrementPacketsIn(raw string) {
	atomic.AddUint64(&s.PacketsIn, 1)
	atomic.AddUint64(&s.PacketTypeCounts[KindOf(raw)], 1)
	s.UpdateLastPacketTime()
}

// IncrementPacketsOut counts an outbound packet and the challenges it carries
func (s *Stats) IncrementPacketsOut(raw string) {
	atomic.AddUint64(&s.PacketsOut, 1)
	switch {
	case strings.HasPrefix(raw, "$ZC"):
		atomic.AddUint64(&s.ChallengesSent, 1)
	case strings.HasPrefix(raw, "$ZR"):
		atomic.AddUint64(&s.ChallengesAnswered, 1)
	}
}

// IncrementParsedPackets increments the parsed packets counter
func (s *Stats) IncrementParsedPackets() {
	atomic.AddUint64(&s.ParsedPackets, 1)
}

// IncrementFailedPackets increments the failed packets counter
func (s *Stats) IncrementFailedPackets() {
	atomic.AddUint64(&s.FailedPackets, 1)
}

// IncrementDroppedPackets increments the silently dropped packets counter
func (s *Stats) IncrementDroppedPackets() {
	atomic.AddUint64(&s.DroppedPackets, 1)
}

// IncrementStoredPositions increments the stored positions counter
func (s *Stats) IncrementStoredPositions() {
	atomic.AddUint64(&s.StoredPositions, 1)
}

// IncrementCreatedSessions increments the created pilot sessions counter
func (s *Stats) IncrementCreatedSessions() {
	atomic.AddUint64(&s.CreatedSessions, 1)
}

// IncrementEndedSessions increments the ended pilot sessions counter
func (s *Stats) IncrementEndedSessions() {
	atomic.AddUint64(&s.EndedSessions, 1)
}

// SetActivePilots sets the number of tracked pilots
func (s *Stats) SetActivePilots(count uint64) {
	atomic.StoreUint64(&s.ActivePilots, count)
}

// SetActiveControllers sets the number of tracked controllers
func (s *Stats) SetActiveControllers(count uint64) {
	atomic.StoreUint64(&s.ActiveControllers, count)
}

// UpdateLastPacketTime updates the last packet time
func (s *Stats) UpdateLastPacketTime() {
	s.mu.Lock()
	s.LastPacketTime = time.Now()
	s.mu.Unlock()
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(duration time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += duration
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() db.SystemStats {
	s.mu.RLock()
	processing := s.ProcessingTime
	started := s.startedAt
	s.mu.RUnlock()

	types := make([]uint64, numKinds)
	for i := range s.PacketTypeCounts {
		types[i] = atomic.LoadUint64(&s.PacketTypeCounts[i])
	}

	return db.SystemStats{
		Time:               time.Now(),
		PacketsIn:          atomic.LoadUint64(&s.PacketsIn),
		PacketsOut:         atomic.LoadUint64(&s.PacketsOut),
		ParsedPackets:      atomic.LoadUint64(&s.ParsedPackets),
		FailedPackets:      atomic.LoadUint64(&s.FailedPackets),
		DroppedPackets:     atomic.LoadUint64(&s.DroppedPackets),
		StoredPositions:    atomic.LoadUint64(&s.StoredPositions),
		CreatedSessions:    atomic.LoadUint64(&s.CreatedSessions),
		EndedSessions:      atomic.LoadUint64(&s.EndedSessions),
		ActivePilots:       atomic.LoadUint64(&s.ActivePilots),
		ActiveControllers:  atomic.LoadUint64(&s.ActiveControllers),
		ChallengesSent:     atomic.LoadUint64(&s.ChallengesSent),
		ChallengesAnswered: atomic.LoadUint64(&s.ChallengesAnswered),
		PacketTypes:        types,
		ProcessingTime:     processing,
		Uptime:             time.Since(started),
	}
}

// Fields returns the statistics as log fields
func (s *Stats) Fields() logrus.Fields {
	snap := s.Snapshot()
	s.mu.RLock()
	last := s.LastPacketTime
	s.mu.RUnlock()
	return logrus.Fields{
		"packets_in":          snap.PacketsIn,
		"packets_out":         snap.PacketsOut,
		"parsed":              snap.ParsedPackets,
		"failed":              snap.FailedPackets,
		"dropped":             snap.DroppedPackets,
		"challenges_sent":     snap.ChallengesSent,
		"challenges_answered": snap.ChallengesAnswered,
		"stored_positions":    snap.StoredPositions,
		"active_pilots":       snap.ActivePilots,
		"active_controllers":  snap.ActiveControllers,
		"last_packet":         last.Format(time.RFC3339),
		"uptime":              snap.Uptime.Truncate(time.Second).String(),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Packets In: %d\n"+
			"Packets Out: %d\n"+
			"Parsed Packets: %d\n"+
			"Failed Packets: %d\n"+
			"Dropped Packets: %d\n"+
			"Challenges Sent: %d\n"+
			"Challenges Answered: %d\n"+
			"Stored Positions: %d\n"+
			"Active Pilots: %d\n"+
			"Active Controllers: %d\n"+
			"Processing Time: %s\n"+
			"Uptime: %s",
		snap.PacketsIn,
		snap.PacketsOut,
		snap.ParsedPackets,
		snap.FailedPackets,
		snap.DroppedPackets,
		snap.ChallengesSent,
		snap.ChallengesAnswered,
		snap.StoredPositions,
		snap.ActivePilots,
		snap.ActiveControllers,
		snap.ProcessingTime,
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence persists statistics every interval until ctx is done
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				logger.WithError(err).Warn("failed to persist final statistics")
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				logger.WithError(err).Warn("failed to persist statistics")
			}
		}
	}
}
