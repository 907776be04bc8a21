package strategy

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/hostmon/internal/pipeline"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Collect runs the collect jobs of the detected connectors and updates the
// metrics of the monitors discovery created. Rows are matched to monitors
// on the job's key attributes.
type Collect struct {
	Session *Session

	collected int
	updated   []*telemetry.Monitor
}

func (c *Collect) Name() string { return "collect" }

func (c *Collect) Prepare(context.Context) error {
	c.Session.begin()
	c.collected = 0
	c.updated = nil
	return nil
}

func (c *Collect) Execute(ctx context.Context) error {
	s := c.Session
	at := s.Telemetry.StrategyTime()

	for _, conn := range s.detectedConnectors() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ns := s.Telemetry.Namespace(conn.ID)
		mc := s.monitorContext(conn.ID)
		s.Runner.Run(ctx, conn.Pre, ns, mc)
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics := &telemetry.MetricFactory{Definitions: conn.Metrics}
		for _, job := range jobsEnclosureFirst(conn.Monitors) {
			if job.Collect == nil || job.Collect.Mapping == nil {
				continue
			}
			s.Runner.Run(ctx, job.Collect.Sources, ns, mc)
			if err := ctx.Err(); err != nil {
				return err
			}

			mapper := pipeline.Mapper{Mapping: job.Collect.Mapping}
			table, ok := mapper.Table(ns)
			if !ok {
				s.Log.Debug().Str("connector", conn.ID).Str("type", job.Type).Msg("No collect table")
				continue
			}
			keys := job.Collect.MatchKeys()
			index := indexMonitors(connectorMonitors(s.Telemetry, conn.ID, job.Type), keys)
			for _, row := range table.Table {
				if err := ctx.Err(); err != nil {
					return err
				}
				m := index.match(keys, mapper.Attributes(row))
				if m == nil {
					continue
				}
				c.collected += collectMetrics(s, metrics, m, mapper.Metrics(m, row, at), at)
				c.updated = append(c.updated, m)
			}
		}
	}
	return nil
}

func (c *Collect) Post(context.Context) error {
	c.Session.Log.Debug().
		Int("monitors", len(c.updated)).
		Int("metrics", c.collected).
		Msg("Collect completed")
	return nil
}

func (c *Collect) Release() {}

// Updated returns the monitors whose metrics the last run collected.
func (c *Collect) Updated() []*telemetry.Monitor {
	return c.updated
}

func connectorMonitors(t *telemetry.HostTelemetry, connectorID, monitorType string) []*telemetry.Monitor {
	var out []*telemetry.Monitor
	for _, m := range t.ByDiscoveryOrder(monitorType) {
		if strings.EqualFold(m.Attribute(telemetry.AttributeConnectorID), connectorID) {
			out = append(out, m)
		}
	}
	return out
}

// monitorIndex maps the trimmed key attribute values of a job's monitors to
// the monitor. The first monitor in discovery order wins on duplicate keys.
type monitorIndex map[string]*telemetry.Monitor

func indexMonitors(monitors []*telemetry.Monitor, keys []string) monitorIndex {
	index := make(monitorIndex, len(monitors))
	for _, m := range monitors {
		tuple := keyTuple(keys, m.Attribute)
		if _, exists := index[tuple]; !exists {
			index[tuple] = m
		}
	}
	return index
}

// match finds the monitor whose key attributes equal the row's. A row
// lacking one of the keys matches nothing. The id key matches the
// connector-supplied instance id.
func (idx monitorIndex) match(keys []string, attrs map[string]string) *telemetry.Monitor {
	for _, key := range keys {
		if _, ok := attrs[key]; !ok {
			return nil
		}
	}
	return idx[keyTuple(keys, func(key string) string { return attrs[key] })]
}

func keyTuple(keys []string, value func(string) string) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = strings.TrimSpace(value(key))
	}
	return strings.Join(parts, "\x00")
}

// collectMetrics stores raw metric values on m and returns how many were
// collected. Values that fail to parse are logged and skipped.
func collectMetrics(s *Session, metrics *telemetry.MetricFactory, m *telemetry.Monitor, values map[string]string, at time.Time) int {
	n := 0
	for name, raw := range values {
		metric, err := metrics.Collect(m, name, raw, at)
		if err != nil {
			s.Log.Debug().Err(err).Str("monitor", m.ID()).Str("metric", name).Msg("Metric skipped")
			continue
		}
		if metric != nil {
			n++
		}
	}
	return n
}
