package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pulseboard/tsengine/pkg/models"
)

// loadCSV reads a (timestamp,value) CSV file into a time series. Timestamps
// may be RFC3339 or Unix seconds; a header row is skipped automatically.
func loadCSV(path string) (*models.TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	points := make([]models.DataPoint, 0, len(records))
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected timestamp,value", i+1)
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}

		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid value %q", i+1, record[1])
		}

		points = append(points, models.DataPoint{Timestamp: ts, Value: value})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no data points in %s", path)
	}

	return &models.TimeSeries{
		MetricID: path,
		Points:   points,
		Start:    points[0].Timestamp,
		End:      points[len(points)-1].Timestamp,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// writeOutput prints the result as indented JSON or hands control to a text
// renderer.
func writeOutput(format string, v interface{}, text func()) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}
