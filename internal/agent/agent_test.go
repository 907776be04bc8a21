package agent_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/agent"
	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/metrics"
	"codeberg.org/mutker/hostmon/internal/power"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(key, value string) *connector.StaticSource {
	return &connector.StaticSource{SourceBase: connector.SourceBase{Key: key}, Value: value}
}

func linuxConnector() *connector.Connector {
	return &connector.Connector{
		ID: "linux",
		Detection: &connector.Detection{Criteria: connector.Criteria{
			&connector.DeviceTypeCriterion{Keep: []string{"linux"}},
		}},
		Monitors: []connector.MonitorJob{
			{
				Type: connector.MonitorTypeEnclosure,
				Discovery: &connector.Job{
					Sources: connector.Sources{static("chassis", "1;Chassis;Computer")},
					Mapping: &connector.Mapping{Source: "chassis", Attributes: map[string]string{"id": "$1", "name": "$2", "type": "$3"}},
				},
				Collect: &connector.Job{
					Sources: connector.Sources{static("chassisPower", "1;120")},
					Mapping: &connector.Mapping{
						Source:     "chassisPower",
						Attributes: map[string]string{"id": "$1"},
						Metrics:    map[string]string{power.MetricEnclosurePower: "$2"},
					},
				},
			},
			{
				Type: power.TypePhysicalDisk,
				Discovery: &connector.Job{
					Sources: connector.Sources{static("disks", "sda;SSD")},
					Mapping: &connector.Mapping{Source: "disks", Attributes: map[string]string{"id": "$1", "model": "$2"}},
				},
				Collect: &connector.Job{
					Sources: connector.Sources{static("diskTemp", "sda;38")},
					Mapping: &connector.Mapping{
						Source:     "diskTemp",
						Attributes: map[string]string{"id": "$1"},
						Metrics:    map[string]string{"hw.temperature": "$2"},
					},
				},
			},
		},
	}
}

type capture struct {
	mu      sync.Mutex
	samples []metrics.Sample
	calls   int
}

func (c *capture) Record(_ context.Context, samples []metrics.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.samples = append(c.samples, samples...)
	return nil
}

func (*capture) Close() error    { return nil }
func (*capture) IsEnabled() bool { return true }

func testConfig() *config.Config {
	return &config.Config{
		Interval:          time.Minute,
		DiscoveryCycle:    2,
		Workers:           2,
		StrategyTimeout:   time.Second,
		SerializationWait: time.Second,
		Resources: []config.Resource{
			{ID: "server-1", Hostname: "server-1", DeviceKind: "linux"},
			{ID: "switch-1", Hostname: "switch-1", DeviceKind: "network"},
		},
	}
}

func clock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

// value returns the counter or gauge value of the series of name whose
// labels include labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, m := range f.GetMetric() {
			found := 0
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok {
					if want != lp.GetValue() {
						continue series
					}
					found++
				}
			}
			if found != len(labels) {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func newAgent(t *testing.T, opts ...agent.Option) (*agent.Agent, *agent.Instrumentation) {
	t.Helper()
	store, err := connector.NewMemoryStore(linuxConnector())
	require.NoError(t, err)
	instr, err := agent.NewInstrumentation()
	require.NoError(t, err)

	opts = append(opts, agent.WithInstrumentation(instr), agent.WithClock(clock()))
	a, err := agent.New(testConfig(), store, protocol.NewDispatcher(nil), opts...)
	require.NoError(t, err)
	return a, instr
}

func TestNewRequiresResources(t *testing.T) {
	store, err := connector.NewMemoryStore()
	require.NoError(t, err)
	_, err = agent.New(&config.Config{}, store, protocol.NewDispatcher(nil))
	assert.True(t, errors.HasCode(err, agent.ErrNoResources))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	store, err := connector.NewMemoryStore()
	require.NoError(t, err)

	for name, mutate := range map[string]func(*config.Config){
		"zero workers":         func(c *config.Config) { c.Workers = 0 },
		"zero discovery cycle": func(c *config.Config) { c.DiscoveryCycle = 0 },
		"negative workers":     func(c *config.Config) { c.Workers = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			_, err := agent.New(cfg, store, protocol.NewDispatcher(nil))
			assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
		})
	}
}

func TestRunCycleCadence(t *testing.T) {
	rec := &capture{}
	a, instr := newAgent(t, agent.WithRecorder(rec))
	reg := instr.Registry()

	for range 3 {
		require.NoError(t, a.RunCycle(context.Background()))
	}

	runs := func(strategy, status string) float64 {
		return value(t, reg, "hostmon_strategy_runs_total", map[string]string{"strategy": strategy, "status": status})
	}
	// Two resources, detection on cycles one and three.
	assert.Equal(t, 4.0, runs("detection", "success"))
	assert.Equal(t, 4.0, runs("discovery", "success"))
	assert.Equal(t, 6.0, runs("collect", "success"))
	assert.Equal(t, 6.0, runs("power", "success"))
	assert.Equal(t, 3.0, value(t, reg, "hostmon_cycles_total", nil))
	series, err := testutil.GatherAndCount(reg, "hostmon_monitors")
	require.NoError(t, err)
	assert.Equal(t, 2, series)

	assert.Equal(t, 1.0, value(t, reg, "hostmon_detected_connectors", map[string]string{"resource": "server-1"}))
	assert.Equal(t, 0.0, value(t, reg, "hostmon_detected_connectors", map[string]string{"resource": "switch-1"}))
	// host, connector, enclosure, disk
	assert.Equal(t, 4.0, value(t, reg, "hostmon_monitors", map[string]string{"resource": "server-1"}))

	server := a.Sessions()[0].Telemetry
	enclosure := server.ByDiscoveryOrder(connector.MonitorTypeEnclosure)
	require.Len(t, enclosure, 1)
	hostPower, ok := server.HostMonitor().NumberMetric(power.HostPowerMetric(power.QualityMeasured))
	require.True(t, ok)
	assert.Equal(t, 120.0, hostPower.Value())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 6, rec.calls)
	// Enclosure power and disk temperature for each server-1 collect.
	assert.Len(t, rec.samples, 6)
	for _, s := range rec.samples {
		assert.Equal(t, "server-1", s.ResourceID)
	}
}

func TestRunCycleInterrupted(t *testing.T) {
	a, instr := newAgent(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0.0, value(t, instr.Registry(), "hostmon_strategy_runs_total",
		map[string]string{"strategy": "collect", "status": "success"}))
}

func TestTestConnectors(t *testing.T) {
	a, _ := newAgent(t)

	reports := a.TestConnectors(context.Background())
	require.Len(t, reports, 2)
	assert.Equal(t, "server-1", reports[0].ResourceID)
	assert.Equal(t, []string{"linux"}, reports[0].Selected)
	require.Len(t, reports[0].Results, 1)
	assert.Contains(t, reports[0].Results[0].Report(), "matches resource server-1")

	assert.Empty(t, reports[1].Selected)
	require.Len(t, reports[1].Results, 1)
	assert.False(t, reports[1].Results[0].Success)
}
