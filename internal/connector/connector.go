// Package connector holds the parsed form of connector definitions: the
// detection criteria, the source/compute collection plans and the metric
// definitions of one class of device.
package connector

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known monitor types.
const (
	MonitorTypeHost      = "host"
	MonitorTypeEnclosure = "enclosure"
	MonitorTypeConnector = "connector"
)

// Connector describes how to detect and collect one class of device.
type Connector struct {
	ID          string                      `yaml:"id"`
	DisplayName string                      `yaml:"displayName"`
	Detection   *Detection                  `yaml:"detection"`
	Pre         Sources                     `yaml:"pre"`
	Monitors    []MonitorJob                `yaml:"monitors"`
	Metrics     map[string]MetricDefinition `yaml:"metrics"`
}

// Detection groups the criteria deciding whether the connector applies.
type Detection struct {
	AppliesTo  []string `yaml:"appliesTo"`
	Supersedes []string `yaml:"supersedes"`
	Tags       []string `yaml:"tags"`
	Criteria   Criteria `yaml:"criteria"`
}

// AppliesToKind reports whether the connector targets the device kind. An
// empty AppliesTo list targets every kind.
func (d *Detection) AppliesToKind(kind string) bool {
	if len(d.AppliesTo) == 0 {
		return true
	}
	for _, k := range d.AppliesTo {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// MonitorJob is the discovery and collect plan of one monitor type.
type MonitorJob struct {
	Type      string `yaml:"type"`
	Discovery *Job   `yaml:"discovery"`
	Collect   *Job   `yaml:"collect"`
}

// Job is an ordered list of sources and the mapping turning the final table
// into monitors (discovery) or metrics (collect).
type Job struct {
	Sources Sources  `yaml:"sources"`
	Mapping *Mapping `yaml:"mapping"`
	// Keys are the attributes matching collected rows to discovered
	// monitors. Defaults to ["id"].
	Keys []string `yaml:"keys"`
}

// MatchKeys returns the configured keys or the default id key.
func (j *Job) MatchKeys() []string {
	if len(j.Keys) == 0 {
		return []string{"id"}
	}
	return j.Keys
}

// Mapping binds table columns to monitor attributes and metrics.
type Mapping struct {
	Source                string            `yaml:"source"`
	Attributes            map[string]string `yaml:"attributes"`
	Metrics               map[string]string `yaml:"metrics"`
	ConditionalCollection map[string]string `yaml:"conditionalCollection"`
}

type MetricType string

const (
	Gauge         MetricType = "gauge"
	Counter       MetricType = "counter"
	UpDownCounter MetricType = "upDownCounter"
	StateSet      MetricType = "stateSet"
)

// MetricDefinition declares the type, unit and description of a metric.
type MetricDefinition struct {
	Type        MetricType `yaml:"-"`
	StateSet    []string   `yaml:"-"`
	Unit        string     `yaml:"unit"`
	Description string     `yaml:"description"`
}

// IsStateSet reports whether values must be members of StateSet.
func (d MetricDefinition) IsStateSet() bool {
	return d.Type == StateSet
}

// UnmarshalYAML accepts both `type: gauge` and `type: {stateSet: [...]}`.
func (d *MetricDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type        yaml.Node `yaml:"type"`
		Unit        string    `yaml:"unit"`
		Description string    `yaml:"description"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d.Unit = raw.Unit
	d.Description = raw.Description
	d.Type = Gauge

	switch raw.Type.Kind {
	case yaml.ScalarNode:
		if raw.Type.Value != "" {
			d.Type = MetricType(raw.Type.Value)
		}
	case yaml.MappingNode:
		var set struct {
			StateSet []string `yaml:"stateSet"`
		}
		if err := raw.Type.Decode(&set); err != nil {
			return err
		}
		d.Type = StateSet
		d.StateSet = set.StateSet
	}
	return nil
}

// SourceKeys returns every source key of the connector in declaration order.
func (c *Connector) SourceKeys() []string {
	var keys []string
	for _, s := range c.Pre {
		keys = append(keys, s.SourceKey())
	}
	for _, job := range c.Monitors {
		for _, j := range []*Job{job.Discovery, job.Collect} {
			if j == nil {
				continue
			}
			for _, s := range j.Sources {
				keys = append(keys, s.SourceKey())
			}
		}
	}
	return keys
}

// HasDetection reports whether the connector declares at least one criterion.
func (c *Connector) HasDetection() bool {
	return c.Detection != nil && len(c.Detection.Criteria) > 0
}

// SourceRef strips the ${source::...} wrapper from a table reference and
// normalizes its case.
func SourceRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "${source::") && strings.HasSuffix(ref, "}") {
		ref = ref[len("${source::") : len(ref)-1]
	}
	return strings.ToLower(ref)
}
