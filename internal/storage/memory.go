package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// MemorySource keeps series in process memory. It backs tests and local
// development, and serves as the seed target for the CLI's CSV loader.
type MemorySource struct {
	mu     sync.RWMutex
	series map[string]*models.TimeSeries
	logger *logrus.Logger
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource(logger *logrus.Logger) *MemorySource {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemorySource{
		series: make(map[string]*models.TimeSeries),
		logger: logger,
	}
}

// Put stores a series under its metric ID, replacing any previous data. The
// points are sorted by timestamp on insert.
func (m *MemorySource) Put(series *models.TimeSeries) {
	if series == nil || series.MetricID == "" {
		return
	}

	stored := series.Clone()
	sort.SliceStable(stored.Points, func(i, j int) bool {
		return stored.Points[i].Timestamp.Before(stored.Points[j].Timestamp)
	})

	m.mu.Lock()
	m.series[series.MetricID] = stored
	m.mu.Unlock()
}

// GetTimeSeries returns the stored points within [start, end). The interval
// parameter is ignored; data is returned at its stored resolution.
func (m *MemorySource) GetTimeSeries(_ context.Context, metricID string, start, end time.Time, interval time.Duration) (*models.TimeSeries, error) {
	m.mu.RLock()
	stored, ok := m.series[metricID]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.NewDependencyError(errors.CodeNoData, "metric not found").
			WithContext("metric_id", metricID)
	}

	points := make([]models.DataPoint, 0, len(stored.Points))
	for _, p := range stored.Points {
		if !p.Timestamp.Before(start) && p.Timestamp.Before(end) {
			points = append(points, p)
		}
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

// Ping always succeeds.
func (m *MemorySource) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemorySource) Close() error { return nil }

// Metrics lists the stored metric IDs.
func (m *MemorySource) Metrics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.series))
	for id := range m.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
