package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"aqua-backend/internal/models"
)

// Config holds the ClickHouse connection settings
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseDB archives readings and feed events
type ClickHouseDB struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, cfg Config, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := newClickHouseDB(conn, logger)
	db.logger.Info("connected to ClickHouse", zap.String("addr", cfg.Addr))

	if err := db.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func newClickHouseDB(conn driver.Conn, logger *zap.Logger) *ClickHouseDB {
	return &ClickHouseDB{conn: conn, logger: logger.Named("clickhouse")}
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("database schema initialized")
	return nil
}

// SaveReadings inserts one batch of readings
func (db *ClickHouseDB) SaveReadings(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO sensor_readings (timestamp, metric, value, topic)")
	if err != nil {
		return fmt.Errorf("failed to prepare readings batch: %w", err)
	}

	for _, r := range readings {
		if err := batch.Append(r.Timestamp, string(r.Metric), r.Value, r.Topic); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append %s reading: %w", r.Metric, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert readings: %w", err)
	}
	return nil
}

// Name identifies the archive in sink logs
func (db *ClickHouseDB) Name() string {
	return "clickhouse"
}

// HandleReadings archives every accepted batch
func (db *ClickHouseDB) HandleReadings(ctx context.Context, readings []models.Reading, _ models.Snapshot) error {
	return db.SaveReadings(ctx, readings)
}

// SaveFeedEvent records one feed attempt
func (db *ClickHouseDB) SaveFeedEvent(ctx context.Context, event models.FeedEvent) error {
	query := `
		INSERT INTO feed_events (timestamp, source, schedule_id, success, acknowledged, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		event.Timestamp,
		event.Source,
		event.ScheduleID,
		event.Error == "",
		event.Error == "" && !event.Unacknowledged,
		event.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feed event: %w", err)
	}
	return nil
}

type archivedPoint struct {
	Timestamp time.Time `ch:"timestamp"`
	Value     float64   `ch:"value"`
}

// QueryHistory returns archived points of one metric in [from, to), oldest first
func (db *ClickHouseDB) QueryHistory(ctx context.Context, metric models.Metric, from, to time.Time, limit int) ([]models.HistoryPoint, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT timestamp, value
		FROM sensor_readings
		WHERE metric = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
		LIMIT ?
	`

	var rows []archivedPoint
	if err := db.conn.Select(ctx, &rows, query, string(metric), from, to, limit); err != nil {
		return nil, fmt.Errorf("failed to query %s history: %w", metric, err)
	}

	points := make([]models.HistoryPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.HistoryPoint{Timestamp: r.Timestamp.UnixMilli(), Value: r.Value})
	}
	return points, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
