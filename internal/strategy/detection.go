package strategy

import (
	"context"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/detection"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Connector monitor attributes and metrics.
const (
	AttributeName          = "name"
	AttributeTestReport    = "test_report"
	MetricConnectorStatus  = "connector.status"
	connectorMonitorPrefix = "connector"
)

// Detection tests the candidate connectors of the resource and records the
// selection on its telemetry. Each tested connector gets a connector
// monitor carrying its status.
type Detection struct {
	Session *Session
	// Reports stores each connector's test report on its monitor.
	Reports bool

	selection detection.Selection
}

func (d *Detection) Name() string { return "detection" }

func (d *Detection) Prepare(context.Context) error {
	d.Session.begin()
	return nil
}

func (d *Detection) Execute(ctx context.Context) error {
	s := d.Session
	d.selection = s.Engine.Detect(ctx, s.Store.All(), s.Resource, s.Telemetry, s.Log)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Telemetry.SetDetectedConnectors(d.selection.SelectedIDs())
	return nil
}

func (d *Detection) Post(context.Context) error {
	s := d.Session
	at := s.Telemetry.StrategyTime()
	metrics := &telemetry.MetricFactory{}

	for _, result := range d.selection.Results {
		displayName := result.ConnectorID
		if c, ok := s.Store.Get(result.ConnectorID); ok && c.DisplayName != "" {
			displayName = c.DisplayName
		}
		attrs := map[string]string{
			telemetry.AttributeID:          result.ConnectorID,
			telemetry.AttributeConnectorID: result.ConnectorID,
			AttributeName:                  displayName,
		}
		if d.Reports {
			attrs[AttributeTestReport] = result.Report()
		}

		m, err := s.Telemetry.AddOrUpdateMonitor(telemetry.MonitorSpec{
			Type:          connector.MonitorTypeConnector,
			ID:            ConnectorMonitorID(s.Telemetry.HostID(), result.ConnectorID),
			ParentID:      s.Telemetry.HostMonitor().ID(),
			Attributes:    attrs,
			DiscoveryTime: at,
		})
		if err != nil {
			s.Log.Debug().Err(err).Str("connector", result.ConnectorID).Msg("Connector monitor rejected")
			continue
		}
		metrics.CollectNumber(m, MetricConnectorStatus, result.StatusValue(), at)
	}

	s.Log.Info().
		Int("tested", len(d.selection.Results)).
		Strs("selected", d.selection.SelectedIDs()).
		Msg("Detection completed")
	return nil
}

func (d *Detection) Release() {}

// Selection returns the outcome of the last run.
func (d *Detection) Selection() detection.Selection {
	return d.selection
}

// ConnectorMonitorID is the id of a connector's own monitor.
func ConnectorMonitorID(hostID, connectorID string) string {
	return telemetry.BuildMonitorID(connectorMonitorPrefix, connector.MonitorTypeConnector, hostID, connectorID)
}
