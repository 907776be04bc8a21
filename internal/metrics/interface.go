package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Recorder is what the agent records collected samples through.
type Recorder interface {
	Record(ctx context.Context, samples []Sample) error
	Close() error
	IsEnabled() bool
}

// Repository stores samples.
type Repository interface {
	Record(samples []Sample) error
	Flush() error
	Samples(resourceID, monitorID string) ([]Sample, error)
	Close() error
}

// Sample is one collected metric value. State-set metrics carry their state
// and a value of 1.
type Sample struct {
	Timestamp   time.Time
	ResourceID  string
	MonitorID   string
	MonitorType string
	Metric      string
	Value       float64
	State       string
}

// SamplesAt returns a sample for every metric of monitors collected at at.
func SamplesAt(resourceID string, monitors []*telemetry.Monitor, at time.Time) []Sample {
	var samples []Sample
	for _, m := range monitors {
		for name, metric := range m.Metrics() {
			if !metric.IsUpdatedAt(at) {
				continue
			}
			s := Sample{
				Timestamp:   at,
				ResourceID:  resourceID,
				MonitorID:   m.ID(),
				MonitorType: m.Type(),
				Metric:      name,
			}
			switch v := metric.(type) {
			case *telemetry.NumberMetric:
				s.Value = v.Value()
			case *telemetry.StateSetMetric:
				s.Value = 1
				s.State = v.Value()
			default:
				continue
			}
			samples = append(samples, s)
		}
	}
	return samples
}
