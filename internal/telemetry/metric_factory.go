package telemetry

import (
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
)

// reservedStateKeys mark a metric name as one numeric member of a state
// set, e.g. hw.status{state="present"}, whatever its definition says.
var reservedStateKeys = []string{"state", "status"}

// MetricFactory turns raw values into typed metrics on monitors, reusing the
// metric objects across cycles.
type MetricFactory struct {
	// Definitions are the connector's metric definitions, looked up by full
	// name, then by base name.
	Definitions map[string]connector.MetricDefinition
}

// CollectNumber stores value in the named number metric of m. A metric that
// existed with another type is replaced. It returns nil when conditional
// collection deactivates the metric on m.
func (f *MetricFactory) CollectNumber(m *Monitor, name string, value float64, at time.Time) *NumberMetric {
	if m.IsMetricDeactivated(name) {
		return nil
	}
	return collectNumber(m, name, value, at)
}

func collectNumber(m *Monitor, name string, value float64, at time.Time) *NumberMetric {
	metric, ok := m.metrics[name].(*NumberMetric)
	if !ok {
		metric = NewNumberMetric(name)
		m.metrics[name] = metric
	}
	metric.Update(value, at)
	return metric
}

// CollectNumberString parses raw and collects it. An unparsable value
// leaves the metric untouched and returns ErrInvalidNumber.
func (f *MetricFactory) CollectNumberString(m *Monitor, name, raw string, at time.Time) (*NumberMetric, error) {
	if m.IsMetricDeactivated(name) {
		return nil, nil
	}
	value, err := ParseNumber(raw)
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidNumber, err).WithData(name + "=" + raw)
	}
	return collectNumber(m, name, value, at), nil
}

// CollectStateSet stores value, matched case-insensitively against states,
// in the named state-set metric of m.
func (f *MetricFactory) CollectStateSet(m *Monitor, name, value string, states []string, at time.Time) (*StateSetMetric, error) {
	if m.IsMetricDeactivated(name) {
		return nil, nil
	}
	state, ok := matchState(value, states)
	if !ok {
		return nil, errors.New().WithData(ErrInvalidState, name+"="+value)
	}

	metric, exists := m.metrics[name].(*StateSetMetric)
	if !exists {
		metric = NewStateSetMetric(name, states)
		m.metrics[name] = metric
	}
	metric.Update(state, at)
	return metric, nil
}

// Collect stores raw under name using the metric's definition to choose the
// metric type. It returns nil without error when conditional collection
// deactivates the metric on m.
func (f *MetricFactory) Collect(m *Monitor, name, raw string, at time.Time) (Metric, error) {
	if m.IsMetricDeactivated(name) {
		return nil, nil
	}

	def, found := f.definition(name)
	if !found || !def.IsStateSet() || hasReservedStateKey(name) {
		return f.CollectNumberString(m, name, raw, at)
	}
	return f.CollectStateSet(m, name, raw, def.StateSet, at)
}

func (f *MetricFactory) definition(name string) (connector.MetricDefinition, bool) {
	if def, ok := f.Definitions[name]; ok {
		return def, true
	}
	base, _ := ParseMetricName(name)
	def, ok := f.Definitions[base]
	return def, ok
}

func hasReservedStateKey(name string) bool {
	_, attrs := ParseMetricName(name)
	for _, key := range reservedStateKeys {
		if _, ok := attrs[key]; ok {
			return true
		}
	}
	return false
}

func matchState(value string, states []string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, s := range states {
		if strings.EqualFold(s, value) {
			return s, true
		}
	}
	return "", false
}

// ParseNumber parses a metric value, accepting surrounding blanks.
func ParseNumber(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}
