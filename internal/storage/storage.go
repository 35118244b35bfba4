package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// TimeSeriesSource retrieves raw metric data for analysis. Implementations
// return a DependencyError with CodeNoData when the range holds no points and
// CodeSourceError when the backend fails.
type TimeSeriesSource interface {
	// GetTimeSeries fetches points for metricID in [start, end), sampled at
	// interval where the backend supports server-side bucketing.
	GetTimeSeries(ctx context.Context, metricID string, start, end time.Time, interval time.Duration) (*models.TimeSeries, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a time-series backend.
type Config struct {
	Backend  string         `json:"backend" yaml:"backend"` // memory, postgres, influxdb
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	InfluxDB InfluxDBConfig `json:"influxdb" yaml:"influxdb"`
}

// DefaultConfig returns an in-memory backend configuration.
func DefaultConfig() Config {
	return Config{
		Backend:  "memory",
		Postgres: DefaultPostgresConfig(),
		InfluxDB: DefaultInfluxDBConfig(),
	}
}

// NewSource constructs the backend named by config.Backend.
func NewSource(ctx context.Context, config Config, logger *logrus.Logger) (TimeSeriesSource, error) {
	switch config.Backend {
	case "memory", "":
		return NewMemorySource(logger), nil
	case "postgres":
		return NewPostgresSource(ctx, config.Postgres, logger)
	case "influxdb":
		return NewInfluxDBSource(ctx, config.InfluxDB, logger)
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unknown storage backend %q", config.Backend))
	}
}
