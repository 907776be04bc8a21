package telemetry

import (
	"maps"
	"time"
)

// Metric is a named, timestamped observation keeping one cycle of history.
// Metric objects live as long as their monitor; collecting the same name
// again updates the existing object.
type Metric interface {
	Name() string
	BaseName() string
	Attributes() map[string]string
	CollectTime() time.Time
	PreviousCollectTime() time.Time
	// IsUpdatedAt reports whether the metric was collected at t.
	IsUpdatedAt(t time.Time) bool
}

type metricBase struct {
	name                string
	baseName            string
	attributes          map[string]string
	collectTime         time.Time
	previousCollectTime time.Time
}

func newMetricBase(name string) metricBase {
	base, attrs := ParseMetricName(name)
	return metricBase{name: name, baseName: base, attributes: attrs}
}

func (m *metricBase) Name() string {
	return m.name
}

func (m *metricBase) BaseName() string {
	return m.baseName
}

// Attributes returns a copy of the attributes parsed from the name.
func (m *metricBase) Attributes() map[string]string {
	return maps.Clone(m.attributes)
}

// Attribute returns one inline attribute.
func (m *metricBase) Attribute(key string) (string, bool) {
	v, ok := m.attributes[key]
	return v, ok
}

func (m *metricBase) CollectTime() time.Time {
	return m.collectTime
}

func (m *metricBase) PreviousCollectTime() time.Time {
	return m.previousCollectTime
}

func (m *metricBase) IsUpdatedAt(t time.Time) bool {
	return !m.collectTime.IsZero() && m.collectTime.Equal(t)
}

func (m *metricBase) advance(at time.Time) {
	m.previousCollectTime = m.collectTime
	m.collectTime = at
}

// NumberMetric is a floating point metric.
type NumberMetric struct {
	metricBase
	value         float64
	previousValue float64
	collected     int
}

// NewNumberMetric returns a metric that has never been collected.
func NewNumberMetric(name string) *NumberMetric {
	return &NumberMetric{metricBase: newMetricBase(name)}
}

// Update stores value as current, moving the former current value and time
// to previous.
func (m *NumberMetric) Update(value float64, at time.Time) {
	m.previousValue = m.value
	m.value = value
	m.advance(at)
	m.collected++
}

func (m *NumberMetric) Value() float64 {
	return m.value
}

// PreviousValue returns the value before the last update. It is absent until
// the metric has been collected twice.
func (m *NumberMetric) PreviousValue() (float64, bool) {
	return m.previousValue, m.collected > 1
}

// StateSetMetric holds a value from a fixed enumeration.
type StateSetMetric struct {
	metricBase
	stateSet      []string
	value         string
	previousValue string
}

func NewStateSetMetric(name string, stateSet []string) *StateSetMetric {
	return &StateSetMetric{
		metricBase: newMetricBase(name),
		stateSet:   append([]string(nil), stateSet...),
	}
}

func (m *StateSetMetric) Update(value string, at time.Time) {
	m.previousValue = m.value
	m.value = value
	m.advance(at)
}

func (m *StateSetMetric) Value() string {
	return m.value
}

func (m *StateSetMetric) PreviousValue() string {
	return m.previousValue
}

func (m *StateSetMetric) StateSet() []string {
	return append([]string(nil), m.stateSet...)
}
