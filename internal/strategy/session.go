package strategy

import (
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/detection"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/pipeline"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Session is everything the strategies of one resource share. It lives as
// long as the resource is monitored.
type Session struct {
	Resource  *config.Resource
	Telemetry *telemetry.HostTelemetry
	Store     connector.Store
	Engine    *detection.Engine
	Runner    *pipeline.Runner
	Log       logger.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewSession creates the session of resource and its host monitor.
func NewSession(resource *config.Resource, store connector.Store, engine *detection.Engine, runner *pipeline.Runner) *Session {
	return &Session{
		Resource:  resource,
		Telemetry: telemetry.NewHostTelemetry(resource.ID, resource.Hostname, resource.DeviceKind),
		Store:     store,
		Engine:    engine,
		Runner:    runner,
		Log:       logger.ForResource(resource.ID),
	}
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// begin stamps the strategy time shared by everything the stage collects.
func (s *Session) begin() time.Time {
	at := s.now()
	s.Telemetry.SetStrategyTime(at)
	return at
}

func (s *Session) monitorContext(connectorID string) pipeline.MonitorContext {
	return pipeline.MonitorContext{
		Resource:    s.Resource,
		ConnectorID: connectorID,
		Log:         s.Log,
	}
}

// detectedConnectors resolves the connectors selected by the last
// detection. Ids missing from the store are logged and skipped.
func (s *Session) detectedConnectors() []*connector.Connector {
	var out []*connector.Connector
	for _, id := range s.Telemetry.DetectedConnectors() {
		c, ok := s.Store.Get(id)
		if !ok {
			s.Log.Warn().Err(errors.New().WithData(ErrUnknownConnector, id)).Msg("Connector skipped")
			continue
		}
		out = append(out, c)
	}
	return out
}

// jobsEnclosureFirst orders monitor jobs so enclosures exist before the
// devices whose parent they become.
func jobsEnclosureFirst(jobs []connector.MonitorJob) []connector.MonitorJob {
	ordered := make([]connector.MonitorJob, 0, len(jobs))
	for _, j := range jobs {
		if j.Type == connector.MonitorTypeEnclosure {
			ordered = append(ordered, j)
		}
	}
	for _, j := range jobs {
		if j.Type != connector.MonitorTypeEnclosure {
			ordered = append(ordered, j)
		}
	}
	return ordered
}
