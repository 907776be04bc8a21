package telemetry

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// PresentMetricName is the synthetic present/missing status of a monitor.
func PresentMetricName(monitorType string) string {
	return fmt.Sprintf(`hw.status{hw.type="%s", state="present"}`, monitorType)
}

// Monitor is one discovered device or logical resource. A Monitor is owned
// by the HostTelemetry that created it and is only mutated by the cycle of
// that resource.
type Monitor struct {
	id                    string
	monitorType           string
	parentID              string
	attributes            map[string]string
	metrics               map[string]Metric
	conditionalCollection map[string]string
	helpers               map[string]*NumberMetric
	discoveryTime         time.Time
	sequence              uint64
}

func newMonitor(monitorType, id string) *Monitor {
	return &Monitor{
		id:                    id,
		monitorType:           monitorType,
		attributes:            make(map[string]string),
		metrics:               make(map[string]Metric),
		conditionalCollection: make(map[string]string),
		helpers:               make(map[string]*NumberMetric),
	}
}

func (m *Monitor) ID() string {
	return m.id
}

func (m *Monitor) Type() string {
	return m.monitorType
}

// ParentID is empty only for the host monitor.
func (m *Monitor) ParentID() string {
	return m.parentID
}

func (m *Monitor) DiscoveryTime() time.Time {
	return m.discoveryTime
}

// Attribute returns one attribute, empty when unset.
func (m *Monitor) Attribute(key string) string {
	return m.attributes[key]
}

// Attributes returns a copy of the attributes.
func (m *Monitor) Attributes() map[string]string {
	return maps.Clone(m.attributes)
}

// SetAttribute sets a single attribute.
func (m *Monitor) SetAttribute(key, value string) {
	m.attributes[key] = value
}

// Metric returns the metric of that exact name.
func (m *Monitor) Metric(name string) (Metric, bool) {
	metric, ok := m.metrics[name]
	return metric, ok
}

// NumberMetric returns the named metric when it is numeric.
func (m *Monitor) NumberMetric(name string) (*NumberMetric, bool) {
	metric, ok := m.metrics[name].(*NumberMetric)
	return metric, ok
}

// StateSetMetric returns the named metric when it is a state set.
func (m *Monitor) StateSetMetric(name string) (*StateSetMetric, bool) {
	metric, ok := m.metrics[name].(*StateSetMetric)
	return metric, ok
}

// Metrics returns a copy of the metric map.
func (m *Monitor) Metrics() map[string]Metric {
	return maps.Clone(m.metrics)
}

// Helper returns the named helper metric, creating it on first use.
// Helper metrics hold derivation state, such as the raw counter behind a
// rate, and are never listed by Metrics.
func (m *Monitor) Helper(name string) *NumberMetric {
	h, ok := m.helpers[name]
	if !ok {
		h = NewNumberMetric(name)
		m.helpers[name] = h
	}
	return h
}

// RemoveMetric drops a metric and its history.
func (m *Monitor) RemoveMetric(name string) {
	delete(m.metrics, name)
}

// ConditionalCollection returns a copy of the conditional collection flags.
func (m *Monitor) ConditionalCollection() map[string]string {
	return maps.Clone(m.conditionalCollection)
}

// IsMetricDeactivated reports whether conditional collection suppresses the
// metric on this monitor: the flag exists and is blank, "0" or "false".
func (m *Monitor) IsMetricDeactivated(name string) bool {
	flag, ok := m.conditionalCollection[name]
	if !ok {
		base, _ := ParseMetricName(name)
		if flag, ok = m.conditionalCollection[base]; !ok {
			return false
		}
	}
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "", "0", "false":
		return true
	}
	return false
}

// IsMissing reports whether the last discovery marked the monitor missing.
func (m *Monitor) IsMissing() bool {
	present, ok := m.NumberMetric(PresentMetricName(m.monitorType))
	return ok && present.Value() == 0
}

func (m *Monitor) String() string {
	return fmt.Sprintf("%s[%s]", m.monitorType, m.id)
}
