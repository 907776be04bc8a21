package telemetry_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricName(t *testing.T) {
	base, attrs := telemetry.ParseMetricName(`hw.status{hw.type="cpu", state="ok"}`)
	assert.Equal(t, "hw.status", base)
	assert.Equal(t, map[string]string{"hw.type": "cpu", "state": "ok"}, attrs)

	base, attrs = telemetry.ParseMetricName("hw.cpu.speed")
	assert.Equal(t, "hw.cpu.speed", base)
	assert.Empty(t, attrs)

	_, attrs = telemetry.ParseMetricName(`m{label="a \"quoted\", value",plain=b}`)
	assert.Equal(t, `a "quoted", value`, attrs["label"])
	assert.Equal(t, "b", attrs["plain"])

	assert.Equal(t, `m{a="1", b="2"}`, telemetry.MetricName("m", map[string]string{"b": "2", "a": "1"}))
	assert.Equal(t, "m", telemetry.MetricName("m", nil))
}

func TestNumberMetricOneCycleDelta(t *testing.T) {
	host := newHost()
	f := &telemetry.MetricFactory{}
	m := host.HostMonitor()

	first := f.CollectNumber(m, "x", 10, t0)
	_, ok := first.PreviousValue()
	assert.False(t, ok)
	assert.True(t, first.PreviousCollectTime().IsZero())

	f.CollectNumber(m, "x", 20, t0.Add(time.Minute))
	third := f.CollectNumber(m, "x", 30, t0.Add(2*time.Minute))

	assert.Same(t, first, third)
	assert.Equal(t, 30.0, third.Value())
	previous, ok := third.PreviousValue()
	require.True(t, ok)
	assert.Equal(t, 20.0, previous)
	assert.Equal(t, t0.Add(time.Minute), third.PreviousCollectTime())
	assert.True(t, third.IsUpdatedAt(t0.Add(2*time.Minute)))
}

func TestAttributesParsedOnce(t *testing.T) {
	m := newHost().HostMonitor()
	metric := (&telemetry.MetricFactory{}).CollectNumber(m, `hw.power{hw.type="host"}`, 1, t0)

	attrs := metric.Attributes()
	attrs["hw.type"] = "changed"
	assert.Equal(t, "host", metric.Attributes()["hw.type"])
	assert.Equal(t, "hw.power", metric.BaseName())
}

func TestCollectTypeSelection(t *testing.T) {
	f := &telemetry.MetricFactory{Definitions: map[string]connector.MetricDefinition{
		"hw.status": {Type: connector.StateSet, StateSet: []string{"ok", "degraded", "failed"}},
		"hw.temp":   {Type: connector.Gauge},
	}}
	m := newHost().HostMonitor()

	metric, err := f.Collect(m, `hw.status{hw.type="cpu"}`, "Degraded", t0)
	require.NoError(t, err)
	stateSet, ok := metric.(*telemetry.StateSetMetric)
	require.True(t, ok)
	assert.Equal(t, "degraded", stateSet.Value())

	metric, err = f.Collect(m, `hw.status{hw.type="cpu", state="present"}`, "1", t0)
	require.NoError(t, err)
	_, ok = metric.(*telemetry.NumberMetric)
	assert.True(t, ok)

	metric, err = f.Collect(m, "undefined.metric", "4.5", t0)
	require.NoError(t, err)
	number, ok := metric.(*telemetry.NumberMetric)
	require.True(t, ok)
	assert.Equal(t, 4.5, number.Value())

	_, err = f.Collect(m, `hw.status{hw.type="cpu"}`, "exploded", t0)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidState))
}

func TestUnparsableNumberKeepsPrevious(t *testing.T) {
	f := &telemetry.MetricFactory{}
	m := newHost().HostMonitor()
	_, err := f.Collect(m, "hw.temp", "42", t0)
	require.NoError(t, err)

	_, err = f.Collect(m, "hw.temp", "n/a", t0.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidNumber))

	temp, ok := m.NumberMetric("hw.temp")
	require.True(t, ok)
	assert.Equal(t, 42.0, temp.Value())
	assert.Equal(t, t0, temp.CollectTime())
}

func TestConditionalCollection(t *testing.T) {
	host := newHost()
	cpu, err := factory(host, t0).CreateOrUpdate("cpu", map[string]string{"id": "0"},
		map[string]string{"hw.cpu.power": "", "hw.cpu.speed": "1"})
	require.NoError(t, err)
	f := &telemetry.MetricFactory{}

	metric, err := f.Collect(cpu, `hw.cpu.power{hw.type="cpu"}`, "15", t0)
	require.NoError(t, err)
	assert.Nil(t, metric)
	_, found := cpu.Metric(`hw.cpu.power{hw.type="cpu"}`)
	assert.False(t, found)

	metric, err = f.Collect(cpu, "hw.cpu.speed", "2000", t0)
	require.NoError(t, err)
	assert.NotNil(t, metric)
}

func TestConditionalCollectionTypedEntryPoints(t *testing.T) {
	host := newHost()
	disk, err := factory(host, t0).CreateOrUpdate("physical_disk", map[string]string{"id": "1"},
		map[string]string{"hw.status": "0", "hw.temperature": "false", "hw.errors": "1"})
	require.NoError(t, err)
	f := &telemetry.MetricFactory{}

	assert.Nil(t, f.CollectNumber(disk, "hw.temperature", 40, t0))

	number, err := f.CollectNumberString(disk, `hw.temperature{sensor="a"}`, "41", t0)
	require.NoError(t, err)
	assert.Nil(t, number)

	state, err := f.CollectStateSet(disk, `hw.status{hw.type="physical_disk"}`, "ok", []string{"ok", "failed"}, t0)
	require.NoError(t, err)
	assert.Nil(t, state)

	assert.Empty(t, disk.Metrics())

	assert.NotNil(t, f.CollectNumber(disk, "hw.errors", 3, t0))
	_, found := disk.Metric("hw.errors")
	assert.True(t, found)
}
