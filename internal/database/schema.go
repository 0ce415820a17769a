package database

// SQL schemas for all ClickHouse tables

const (
	// SensorReadingsTableSQL stores every accepted reading, one row per metric
	SensorReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_readings (
			timestamp DateTime64(3),
			metric LowCardinality(String),
			value Float64,
			topic String
		) ENGINE = MergeTree()
		ORDER BY (metric, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// FeedEventsTableSQL records every feed attempt, manual or scheduled
	FeedEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS feed_events (
			timestamp DateTime64(3),
			source LowCardinality(String),
			schedule_id String,
			success Bool,
			acknowledged Bool,
			error String
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SensorReadingsTableSQL,
		FeedEventsTableSQL,
	}
}
