package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// PostgresConfig holds connection settings for a PostgreSQL/TimescaleDB
// backend.
type PostgresConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Database     string        `json:"database" yaml:"database"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	SSLMode      string        `json:"ssl_mode" yaml:"ssl_mode"`
	Table        string        `json:"table" yaml:"table"`
	MaxOpenConns int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnLifetime time.Duration `json:"conn_lifetime" yaml:"conn_lifetime"`
	UseTimescale bool          `json:"use_timescale" yaml:"use_timescale"`
}

// DefaultPostgresConfig returns settings for a local instance.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:         "localhost",
		Port:         5432,
		Database:     "metrics",
		Username:     "postgres",
		SSLMode:      "disable",
		Table:        "metric_points",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// PostgresSource reads metric points from a PostgreSQL table with columns
// (metric_id text, ts timestamptz, value double precision). When UseTimescale
// is set and an interval is requested, points are bucketed server-side with
// time_bucket.
type PostgresSource struct {
	db     *sql.DB
	config PostgresConfig
	logger *logrus.Logger
}

// NewPostgresSource opens and verifies a connection.
func NewPostgresSource(ctx context.Context, config PostgresConfig, logger *logrus.Logger) (*PostgresSource, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Table == "" {
		config.Table = "metric_points"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"failed to open postgres connection")
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"failed to connect to postgres").
			WithContext("host", config.Host).
			WithContext("database", config.Database)
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"database": config.Database,
		"table":    config.Table,
	}).Info("connected to postgres")

	return &PostgresSource{db: db, config: config, logger: logger}, nil
}

// GetTimeSeries fetches points for metricID in [start, end) ordered by time.
func (p *PostgresSource) GetTimeSeries(ctx context.Context, metricID string, start, end time.Time, interval time.Duration) (*models.TimeSeries, error) {
	query := fmt.Sprintf(`
		SELECT ts, value
		FROM %s
		WHERE metric_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`, p.config.Table)

	if p.config.UseTimescale && interval > 0 {
		query = fmt.Sprintf(`
			SELECT time_bucket('%d seconds', ts) AS bucket, avg(value)
			FROM %s
			WHERE metric_id = $1 AND ts >= $2 AND ts < $3
			GROUP BY bucket
			ORDER BY bucket`, int(interval.Seconds()), p.config.Table)
	}

	rows, err := p.db.QueryContext(ctx, query, metricID, start, end)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeSourceError,
			"postgres query failed").
			WithContext("metric_id", metricID)
	}
	defer rows.Close()

	points := make([]models.DataPoint, 0)
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeSourceError,
				"failed to scan postgres row")
		}
		points = append(points, models.DataPoint{Timestamp: ts, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeSourceError,
			"postgres row iteration failed")
	}

	if len(points) == 0 {
		return nil, errors.NewDependencyError(errors.CodeNoData, "no data points in requested range").
			WithContext("metric_id", metricID).
			WithContext("start", start.Format(time.RFC3339)).
			WithContext("end", end.Format(time.RFC3339))
	}

	return &models.TimeSeries{
		MetricID: metricID,
		Points:   points,
		Start:    start,
		End:      end,
		Interval: interval,
	}, nil
}

// Ping verifies the connection.
func (p *PostgresSource) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"postgres ping failed")
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresSource) Close() error {
	p.logger.Info("closing postgres connection")
	return p.db.Close()
}
