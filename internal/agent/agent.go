// Package agent drives the monitoring cycles of every configured resource.
package agent

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/detection"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/metrics"
	"codeberg.org/mutker/hostmon/internal/pipeline"
	"codeberg.org/mutker/hostmon/internal/strategy"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QueryExecutor runs protocol queries for detection and collection.
type QueryExecutor interface {
	detection.QueryExecutor
}

// Agent owns one session per configured resource and runs their cycles on
// a bounded worker pool.
type Agent struct {
	cfg      *config.Config
	store    connector.Store
	recorder metrics.Recorder
	instr    *Instrumentation
	now      func() time.Time

	resources []*resource
}

// resource is the per-resource state kept across cycles.
type resource struct {
	mu        sync.Mutex
	session   *strategy.Session
	detection *strategy.Detection
	discovery *strategy.Discovery
	collect   *strategy.Collect
	power     *strategy.Power
	cycles    int
}

type Option func(*Agent)

// WithRecorder records every collect cycle's samples.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

func WithInstrumentation(i *Instrumentation) Option {
	return func(a *Agent) { a.instr = i }
}

// WithClock replaces time.Now as the strategy clock.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates the sessions of every resource of cfg.
func New(cfg *config.Config, store connector.Store, executor QueryExecutor, opts ...Option) (*Agent, error) {
	if len(cfg.Resources) == 0 {
		return nil, errors.New().New(ErrNoResources)
	}
	if cfg.Workers <= 0 || cfg.DiscoveryCycle <= 0 {
		return nil, errors.New().WithMessage(errors.ErrInvalidConfig,
			"workers and discovery_cycle must be positive")
	}

	a := &Agent{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(a)
	}
	if a.recorder == nil {
		a.recorder, _ = metrics.NewService(metrics.Config{}, logger.Nop())
	}

	engine := detection.NewEngine(executor, cfg.SerializationWait)
	runner := pipeline.NewRunner(executor, cfg.SerializationWait)

	for i := range cfg.Resources {
		s := strategy.NewSession(&cfg.Resources[i], store, engine, runner)
		s.Now = a.now
		a.resources = append(a.resources, &resource{
			session:   s,
			detection: &strategy.Detection{Session: s},
			discovery: &strategy.Discovery{Session: s},
			collect:   &strategy.Collect{Session: s},
			power:     &strategy.Power{Session: s},
		})
	}
	return a, nil
}

// Sessions returns the resource sessions in configuration order.
func (a *Agent) Sessions() []*strategy.Session {
	out := make([]*strategy.Session, 0, len(a.resources))
	for _, r := range a.resources {
		out = append(out, r.session)
	}
	return out
}

// RunCycle runs one cycle of every resource, at most cfg.Workers at a time.
// Failures are logged per resource and never stop the other resources. The
// returned error is ctx's.
func (a *Agent) RunCycle(ctx context.Context) error {
	cycleID := uuid.New()

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for _, r := range a.resources {
		g.Go(func() error {
			a.runResource(ctx, cycleID, r)
			return nil
		})
	}
	_ = g.Wait()

	a.instr.observeCycle()
	return ctx.Err()
}

// runResource runs detection and discovery on the first cycle and every
// DiscoveryCycle cycles, then collect and power.
func (a *Agent) runResource(ctx context.Context, cycleID uuid.UUID, r *resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	driver := &strategy.Driver{Timeout: a.cfg.StrategyTimeout, CycleID: cycleID, Log: s.Log}
	run := func(st strategy.Strategy) bool {
		result := driver.Run(ctx, st)
		a.instr.observeStrategy(result)
		return result.OK()
	}

	if r.cycles%a.cfg.DiscoveryCycle == 0 {
		if run(r.detection) {
			run(r.discovery)
		}
	}
	r.cycles++

	if ctx.Err() != nil {
		return
	}
	if run(r.collect) {
		a.record(ctx, r)
		run(r.power)
	}

	a.instr.observeResource(s.Resource.ID, s.Telemetry.Count(), len(s.Telemetry.DetectedConnectors()))
}

func (a *Agent) record(ctx context.Context, r *resource) {
	if !a.recorder.IsEnabled() {
		return
	}
	s := r.session
	samples := metrics.SamplesAt(s.Resource.ID, s.Telemetry.All(), s.Telemetry.StrategyTime())
	if err := a.recorder.Record(ctx, samples); err != nil {
		s.Log.Warn().Err(err).Int("samples", len(samples)).Msg("History not recorded")
	}
}

// Run runs a cycle every cfg.Interval until ctx is done. The first cycle
// starts immediately.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		if a.RunCycle(ctx) != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases the history recorder.
func (a *Agent) Close() error {
	return a.recorder.Close()
}

// Report is the detection outcome of one resource.
type Report struct {
	ResourceID string
	Selected   []string
	Results    []detection.ConnectorTestResult
}

// TestConnectors runs one detection with test reports on every resource and
// returns the outcomes in configuration order.
func (a *Agent) TestConnectors(ctx context.Context) []Report {
	reports := make([]Report, len(a.resources))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, r := range a.resources {
		g.Go(func() error {
			r.mu.Lock()
			defer r.mu.Unlock()

			d := &strategy.Detection{Session: r.session, Reports: true}
			driver := &strategy.Driver{Timeout: a.cfg.StrategyTimeout, Log: r.session.Log}
			a.instr.observeStrategy(driver.Run(ctx, d))

			sel := d.Selection()
			reports[i] = Report{
				ResourceID: r.session.Resource.ID,
				Selected:   sel.SelectedIDs(),
				Results:    sel.Results,
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
