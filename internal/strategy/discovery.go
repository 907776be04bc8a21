package strategy

import (
	"context"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/pipeline"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Discovery runs the discovery jobs of the detected connectors, creating or
// refreshing their monitors. Monitors a connector discovered before but not
// in this run are marked missing; rediscovered ones are marked present.
type Discovery struct {
	Session *Session

	discovered map[string]bool
}

func (d *Discovery) Name() string { return "discovery" }

func (d *Discovery) Prepare(context.Context) error {
	d.Session.begin()
	d.discovered = make(map[string]bool)
	return nil
}

func (d *Discovery) Execute(ctx context.Context) error {
	s := d.Session
	at := s.Telemetry.StrategyTime()

	for _, c := range s.detectedConnectors() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ns := s.Telemetry.Namespace(c.ID)
		mc := s.monitorContext(c.ID)
		s.Runner.Run(ctx, c.Pre, ns, mc)
		if err := ctx.Err(); err != nil {
			return err
		}

		factory := &telemetry.MonitorFactory{Telemetry: s.Telemetry, ConnectorID: c.ID, DiscoveryTime: at}
		metrics := &telemetry.MetricFactory{Definitions: c.Metrics}

		for _, job := range jobsEnclosureFirst(c.Monitors) {
			if job.Discovery == nil || job.Discovery.Mapping == nil {
				continue
			}
			s.Runner.Run(ctx, job.Discovery.Sources, ns, mc)
			if err := ctx.Err(); err != nil {
				return err
			}

			mapper := pipeline.Mapper{Mapping: job.Discovery.Mapping}
			table, ok := mapper.Table(ns)
			if !ok {
				s.Log.Debug().Str("connector", c.ID).Str("type", job.Type).Msg("No discovery table")
				continue
			}
			for _, row := range table.Table {
				if err := ctx.Err(); err != nil {
					return err
				}
				m, err := factory.CreateOrUpdate(job.Type, mapper.Attributes(row), mapper.ConditionalCollection(row))
				if err != nil {
					s.Log.Debug().Err(err).Str("connector", c.ID).Str("type", job.Type).Msg("Monitor rejected")
					continue
				}
				d.discovered[m.ID()] = true
				collectMetrics(s, metrics, m, mapper.Metrics(m, row, at), at)
			}
		}
	}
	return nil
}

// Post updates the present status of every monitor owned by a connector.
// Connectors that are no longer detected have all their monitors marked
// missing.
func (d *Discovery) Post(context.Context) error {
	s := d.Session
	at := s.Telemetry.StrategyTime()

	present, missing := 0, 0
	for _, m := range s.Telemetry.All() {
		if m.Type() == connector.MonitorTypeHost || m.Type() == connector.MonitorTypeConnector {
			continue
		}
		if m.Attribute(telemetry.AttributeConnectorID) == "" {
			continue
		}
		if d.discovered[m.ID()] {
			s.Telemetry.MarkPresent(m, at)
			present++
			continue
		}
		s.Telemetry.MarkMissing(m, at)
		missing++
	}

	s.Log.Info().Int("present", present).Int("missing", missing).Msg("Discovery completed")
	return nil
}

func (d *Discovery) Release() {}

// Discovered reports whether the last run discovered the monitor id.
func (d *Discovery) Discovered(id string) bool {
	return d.discovered[id]
}
