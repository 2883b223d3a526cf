package migrations

// InitialSchema creates the position, session and statistics tables
var InitialSchema = &Migration{
	ID:   "001_initial_schema",
	Name: "001_initial_schema",
	UpSQL: `
		-- Enable TimescaleDB extension
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		-- Pilot position reports
		CREATE TABLE IF NOT EXISTS pilot_positions (
			time TIMESTAMPTZ NOT NULL,
			callsign TEXT NOT NULL,
			squawk INTEGER,
			rating INTEGER,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			true_altitude INTEGER,
			pressure_altitude INTEGER,
			ground_speed INTEGER,
			pitch DOUBLE PRECISION,
			bank DOUBLE PRECISION,
			heading DOUBLE PRECISION,
			session_id TEXT
		);
		SELECT create_hypertable('pilot_positions', 'time');
		CREATE INDEX IF NOT EXISTS idx_pilot_positions_callsign ON pilot_positions (callsign);
		CREATE INDEX IF NOT EXISTS idx_pilot_positions_session_id ON pilot_positions (session_id);

		-- ATC position reports
		CREATE TABLE IF NOT EXISTS controller_positions (
			time TIMESTAMPTZ NOT NULL,
			callsign TEXT NOT NULL,
			frequency INTEGER,
			facility INTEGER,
			visibility_range INTEGER,
			rating INTEGER,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		);
		SELECT create_hypertable('controller_positions', 'time');
		CREATE INDEX IF NOT EXISTS idx_controller_positions_callsign ON controller_positions (callsign);

		-- One row per pilot logon
		CREATE TABLE IF NOT EXISTS pilot_sessions (
			session_id TEXT PRIMARY KEY,
			callsign TEXT NOT NULL,
			cid TEXT,
			real_name TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			first_latitude DOUBLE PRECISION,
			first_longitude DOUBLE PRECISION,
			last_latitude DOUBLE PRECISION,
			last_longitude DOUBLE PRECISION,
			max_altitude INTEGER,
			max_ground_speed INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_pilot_sessions_callsign ON pilot_sessions (callsign);
		CREATE INDEX IF NOT EXISTS idx_pilot_sessions_ended_at ON pilot_sessions (ended_at);

		-- Connector statistics
		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			packets_in BIGINT NOT NULL,
			packets_out BIGINT NOT NULL,
			parsed_packets BIGINT NOT NULL,
			failed_packets BIGINT NOT NULL,
			dropped_packets BIGINT NOT NULL,
			stored_positions BIGINT NOT NULL,
			created_sessions BIGINT NOT NULL,
			ended_sessions BIGINT NOT NULL,
			active_pilots BIGINT NOT NULL,
			active_controllers BIGINT NOT NULL,
			challenges_sent BIGINT NOT NULL,
			challenges_answered BIGINT NOT NULL,
			packet_types BIGINT[] NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);
		SELECT create_hypertable('system_stats', 'time');
		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS pilot_sessions;
		DROP TABLE IF EXISTS controller_positions;
		DROP TABLE IF EXISTS pilot_positions;
	`,
}
