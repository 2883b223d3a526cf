package migrations

// RetentionPolicies bounds position history and adds daily aggregates
var RetentionPolicies = &Migration{
	ID:   "002_retention_policies",
	Name: "002_retention_policies",
	UpSQL: `
	SELECT add_retention_policy('pilot_positions', INTERVAL '30 days');
	SELECT add_retention_policy('controller_positions', INTERVAL '30 days');
	SELECT add_retention_policy('system_stats', INTERVAL '90 days');

	CREATE MATERIALIZED VIEW IF NOT EXISTS system_stats_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		MAX(packets_in) AS packets_in,
		MAX(packets_out) AS packets_out,
		MAX(parsed_packets) AS parsed_packets,
		MAX(failed_packets) AS failed_packets,
		MAX(challenges_sent) AS challenges_sent,
		MAX(active_pilots) AS peak_pilots,
		MAX(active_controllers) AS peak_controllers
	FROM system_stats
	GROUP BY day
	WITH NO DATA;

	CREATE MATERIALIZED VIEW IF NOT EXISTS pilot_positions_hourly
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 hour', time) AS hour,
		COUNT(*) AS position_count,
		COUNT(DISTINCT callsign) AS pilot_count
	FROM pilot_positions
	GROUP BY hour
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS pilot_positions_hourly;
	DROP MATERIALIZED VIEW IF EXISTS system_stats_daily;

	SELECT remove_retention_policy('system_stats');
	SELECT remove_retention_policy('controller_positions');
	SELECT remove_retention_policy('pilot_positions');
	`,
}
