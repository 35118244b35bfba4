package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// InfluxDBConfig holds connection settings for an InfluxDB backend.
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url"`
	Token        string        `json:"token" yaml:"token"`
	Organization string        `json:"organization" yaml:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket"`
	Measurement  string        `json:"measurement" yaml:"measurement"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultInfluxDBConfig returns settings for a local instance.
func DefaultInfluxDBConfig() InfluxDBConfig {
	return InfluxDBConfig{
		URL:         "http://localhost:8086",
		Bucket:      "metrics",
		Measurement: "metric",
		Timeout:     30 * time.Second,
	}
}

// InfluxDBSource reads metric points via the Flux query API. Each metric is a
// series in the configured measurement tagged with metric_id.
type InfluxDBSource struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	config   InfluxDBConfig
	logger   *logrus.Logger
}

// NewInfluxDBSource connects to InfluxDB and verifies it is healthy.
func NewInfluxDBSource(ctx context.Context, config InfluxDBConfig, logger *logrus.Logger) (*InfluxDBSource, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Measurement == "" {
		config.Measurement = "metric"
	}

	client := influxdb2.NewClient(config.URL, config.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"failed to connect to influxdb").
			WithContext("url", config.URL)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, errors.NewDependencyError(errors.CodeConnectionFailed,
			fmt.Sprintf("influxdb health check failed: %s", health.Status))
	}

	logger.WithFields(logrus.Fields{
		"url":    config.URL,
		"bucket": config.Bucket,
	}).Info("connected to influxdb")

	return &InfluxDBSource{
		client:   client,
		queryAPI: client.QueryAPI(config.Organization),
		config:   config,
		logger:   logger,
	}, nil
}

// GetTimeSeries fetches points for metricID in [start, end), bucketed
// server-side with aggregateWindow when an interval is requested.
func (s *InfluxDBSource) GetTimeSeries(ctx context.Context, metricID string, start, end time.Time, interval time.Duration) (*models.TimeSeries, error) {
	query := fmt.Sprintf(`
		from(bucket: %q)
		|> range(start: %s, stop: %s)
		|> filter(fn: (r) => r._measurement == %q and r.metric_id == %q)
		|> sort(columns: ["_time"])`,
		s.config.Bucket, start.Format(time.RFC3339), end.Format(time.RFC3339),
		s.config.Measurement, metricID)

	if interval > 0 {
		query += fmt.Sprintf(`
		|> aggregateWindow(every: %s, fn: mean, createEmpty: false)`, interval.String())
	}

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeSourceError,
			"influxdb query failed").
			WithContext("metric_id", metricID)
	}
	defer result.Close()

	points := make([]models.DataPoint, 0)
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		points = append(points, models.DataPoint{Timestamp: record.Time(), Value: value})
	}
	if err := result.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeSourceError,
			"influxdb result iteration failed")
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

// Ping checks InfluxDB health.
func (s *InfluxDBSource) Ping(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeDependency, errors.CodeConnectionFailed,
			"influxdb ping failed")
	}
	if health.Status != "pass" {
		return errors.NewDependencyError(errors.CodeConnectionFailed,
			fmt.Sprintf("influxdb health check failed: %s", health.Status))
	}
	return nil
}

// Close shuts down the client.
func (s *InfluxDBSource) Close() error {
	s.client.Close()
	return nil
}
