package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/fsd-connector/internal/types"
)

// SystemStats is one persisted statistics sample
type SystemStats struct {
	Time               time.Time
	PacketsIn          uint64
	PacketsOut         uint64
	ParsedPackets      uint64
	FailedPackets      uint64
	DroppedPackets     uint64
	StoredPositions    uint64
	CreatedSessions    uint64
	EndedSessions      uint64
	ActivePilots       uint64
	ActiveControllers  uint64
	ChallengesSent     uint64
	ChallengesAnswered uint64
	PacketTypes        []uint64
	ProcessingTime     time.Duration
	Uptime             time.Duration
}

// Client wraps the postgres connection
type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an open connection
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// GetActivePilotSessions retrieves all sessions without an end time
func (c *Client) GetActivePilotSessions() ([]*types.PilotSession, error) {
	query := `
		SELECT session_id, callsign, cid, real_name, started_at, ended_at,
			first_latitude, first_longitude, last_latitude, last_longitude,
			max_altitude, max_ground_speed
		FROM pilot_sessions
		WHERE ended_at IS NULL
	`
	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active pilot sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.PilotSession
	for rows.Next() {
		var (
			s       types.PilotSession
			endedAt sql.NullTime
		)
		if err := rows.Scan(
			&s.SessionID, &s.Callsign, &s.CID, &s.RealName, &s.StartedAt, &endedAt,
			&s.FirstLatitude, &s.FirstLongitude, &s.LastLatitude, &s.LastLongitude,
			&s.MaxAltitude, &s.MaxGroundSpeed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pilot session: %w", err)
		}
		if endedAt.Valid {
			s.EndedAt = endedAt.Time
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// CreatePilotSession inserts a new pilot session
func (c *Client) CreatePilotSession(s *types.PilotSession) error {
	query := `
		INSERT INTO pilot_sessions (
			session_id, callsign, cid, real_name, started_at,
			first_latitude, first_longitude, last_latitude, last_longitude,
			max_altitude, max_ground_speed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := c.db.Exec(query,
		s.SessionID, s.Callsign, s.CID, s.RealName, s.StartedAt,
		s.FirstLatitude, s.FirstLongitude, s.LastLatitude, s.LastLongitude,
		s.MaxAltitude, s.MaxGroundSpeed,
	)
	if err != nil {
		return fmt.Errorf("failed to create pilot session: %w", err)
	}
	return nil
}

// UpdatePilotSession updates an existing pilot session.
// A zero EndedAt keeps the session open.
func (c *Client) UpdatePilotSession(s *types.PilotSession) error {
	query := `
		UPDATE pilot_sessions SET
			ended_at = $1,
			first_latitude = $2, first_longitude = $3,
			last_latitude = $4, last_longitude = $5,
			max_altitude = $6, max_ground_speed = $7
		WHERE session_id = $8
	`
	var endedAt sql.NullTime
	if !s.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: s.EndedAt, Valid: true}
	}
	_, err := c.db.Exec(query,
		endedAt,
		s.FirstLatitude, s.FirstLongitude,
		s.LastLatitude, s.LastLongitude,
		s.MaxAltitude, s.MaxGroundSpeed,
		s.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pilot session: %w", err)
	}
	return nil
}

// StorePilotPosition stores one pilot position report
func (c *Client) StorePilotPosition(state *types.PilotState) error {
	query := `
		INSERT INTO pilot_positions (
			time, callsign, squawk, rating, latitude, longitude,
			true_altitude, pressure_altitude, ground_speed,
			pitch, bank, heading, session_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := c.db.Exec(query,
		state.Timestamp, state.Callsign, state.Squawk, state.Rating,
		state.Latitude, state.Longitude,
		state.TrueAltitude, state.PressureAltitude, state.GroundSpeed,
		state.Pitch, state.Bank, state.Heading, state.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to store pilot position: %w", err)
	}
	return nil
}

// StoreControllerPosition stores one ATC position report
func (c *Client) StoreControllerPosition(state *types.ControllerState) error {
	query := `
		INSERT INTO controller_positions (
			time, callsign, frequency, facility, visibility_range,
			rating, latitude, longitude
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := c.db.Exec(query,
		state.Timestamp, state.Callsign, state.Frequency, state.Facility,
		state.VisibilityRange, state.Rating, state.Latitude, state.Longitude,
	)
	if err != nil {
		return fmt.Errorf("failed to store controller position: %w", err)
	}
	return nil
}

// StoreSystemStats stores system statistics
func (c *Client) StoreSystemStats(s SystemStats) error {
	query := `
		INSERT INTO system_stats (
			time, packets_in, packets_out, parsed_packets, failed_packets,
			dropped_packets, stored_positions, created_sessions, ended_sessions,
			active_pilots, active_controllers, challenges_sent, challenges_answered,
			packet_types, processing_time_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	packetTypes := make([]int64, len(s.PacketTypes))
	for i, v := range s.PacketTypes {
		packetTypes[i] = int64(v)
	}

	_, err := c.db.Exec(query,
		s.Time,
		int64(s.PacketsIn),
		int64(s.PacketsOut),
		int64(s.ParsedPackets),
		int64(s.FailedPackets),
		int64(s.DroppedPackets),
		int64(s.StoredPositions),
		int64(s.CreatedSessions),
		int64(s.EndedSessions),
		int64(s.ActivePilots),
		int64(s.ActiveControllers),
		int64(s.ChallengesSent),
		int64(s.ChallengesAnswered),
		pq.Array(packetTypes),
		s.ProcessingTime.Milliseconds(),
		int64(s.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store system stats: %w", err)
	}
	return nil
}

// GetSystemStats retrieves system statistics for a time range, newest first
func (c *Client) GetSystemStats(start, end time.Time) ([]SystemStats, error) {
	query := `
		SELECT
			time, packets_in, packets_out, parsed_packets, failed_packets,
			dropped_packets, stored_positions, created_sessions, ended_sessions,
			active_pilots, active_controllers, challenges_sent, challenges_answered,
			packet_types, processing_time_ms, uptime_seconds
		FROM system_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query system stats: %w", err)
	}
	defer rows.Close()

	var stats []SystemStats
	for rows.Next() {
		var (
			s                SystemStats
			counters         [12]int64
			packetTypes      []int64
			processingTimeMs int64
			uptimeSeconds    int64
		)
		if err := rows.Scan(
			&s.Time,
			&counters[0], &counters[1], &counters[2], &counters[3],
			&counters[4], &counters[5], &counters[6], &counters[7],
			&counters[8], &counters[9], &counters[10], &counters[11],
			pq.Array(&packetTypes),
			&processingTimeMs,
			&uptimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan system stats: %w", err)
		}

		for i, dst := range []*uint64{
			&s.PacketsIn, &s.PacketsOut, &s.ParsedPackets, &s.FailedPackets,
			&s.DroppedPackets, &s.StoredPositions, &s.CreatedSessions, &s.EndedSessions,
			&s.ActivePilots, &s.ActiveControllers, &s.ChallengesSent, &s.ChallengesAnswered,
		} {
			*dst = uint64(counters[i])
		}
		s.PacketTypes = make([]uint64, len(packetTypes))
		for i, v := range packetTypes {
			s.PacketTypes[i] = uint64(v)
		}
		s.ProcessingTime = time.Duration(processingTimeMs) * time.Millisecond
		s.Uptime = time.Duration(uptimeSeconds) * time.Second

		stats = append(stats, s)
	}

	return stats, rows.Err()
}
