package detection

import (
	"context"
	"strings"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Selection is the outcome of detecting connectors on one resource.
type Selection struct {
	// Results holds one test per candidate connector, in store order.
	Results []ConnectorTestResult
	// Selected lists the matching connectors left after supersession.
	Selected []*connector.Connector
}

// SelectedIDs returns the ids of the selected connectors.
func (s Selection) SelectedIDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for _, c := range s.Selected {
		ids = append(ids, c.ID)
	}
	return ids
}

// Candidates filters connectors by the resource's selected and excluded
// lists and by the device kinds each connector applies to.
func Candidates(connectors []*connector.Connector, resource *config.Resource) []*connector.Connector {
	var candidates []*connector.Connector
	for _, c := range connectors {
		if !resource.IsSelected(c.ID) {
			continue
		}
		if c.Detection != nil && !c.Detection.AppliesToKind(resource.DeviceKind) {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// Detect tests every candidate connector and selects the matching ones. A
// matching connector removes the connectors it supersedes.
func (e *Engine) Detect(ctx context.Context, connectors []*connector.Connector, resource *config.Resource,
	host *telemetry.HostTelemetry, log logger.Logger,
) Selection {
	var sel Selection

	var matched []*connector.Connector
	for _, c := range Candidates(connectors, resource) {
		if ctx.Err() != nil {
			break
		}
		result := e.TestConnector(ctx, c, resource, host.Namespace(c.ID), log)
		sel.Results = append(sel.Results, result)
		if result.Success {
			matched = append(matched, c)
		}
	}

	superseded := make(map[string]bool)
	for _, c := range matched {
		for _, id := range c.Detection.Supersedes {
			superseded[strings.ToLower(id)] = true
		}
	}
	for _, c := range matched {
		if superseded[strings.ToLower(c.ID)] {
			log.Debug().Str("connector", c.ID).Msg("Connector superseded")
			continue
		}
		sel.Selected = append(sel.Selected, c)
	}
	return sel
}
