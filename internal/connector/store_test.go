package connector_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	store, err := connector.LoadDir("testdata")
	require.NoError(t, err)

	c, ok := store.Get("LINUX")
	require.True(t, ok)
	assert.Equal(t, "linux", c.ID)
	assert.Equal(t, "Linux via SSH", c.DisplayName)
	require.True(t, c.HasDetection())
	assert.True(t, c.Detection.AppliesToKind("Linux"))
	assert.False(t, c.Detection.AppliesToKind("windows"))
	assert.Equal(t, []string{"generic-linux"}, c.Detection.Supersedes)

	require.Len(t, c.Detection.Criteria, 2)
	deviceType, ok := c.Detection.Criteria[0].(*connector.DeviceTypeCriterion)
	require.True(t, ok)
	assert.Equal(t, []string{"linux"}, deviceType.Keep)
	cmd, ok := c.Detection.Criteria[1].(*connector.CommandLineCriterion)
	require.True(t, ok)
	assert.Equal(t, "uname -s", cmd.CommandLine)
	assert.True(t, cmd.Serialized())

	require.Len(t, c.Monitors, 2)
	enclosure := c.Monitors[0]
	require.NotNil(t, enclosure.Discovery)
	src := enclosure.Discovery.Sources[0]
	assert.Equal(t, connector.KindCommandLine, src.Kind())
	assert.Equal(t, "enclosure.discovery.dmi", src.SourceKey())
	require.Len(t, src.ComputeList(), 2)
	assert.Equal(t, connector.KindLeftConcat, src.ComputeList()[0].Kind())
	translate, ok := src.ComputeList()[1].(*connector.Translate)
	require.True(t, ok)
	assert.Equal(t, "Computer", translate.TranslationTable["desktop"])
	assert.Equal(t, "Other", translate.DefaultValue)
	assert.Equal(t, "enclosure.discovery.dmi", connector.SourceRef(enclosure.Discovery.Mapping.Source))

	cpu := c.Monitors[1]
	query, ok := cpu.Discovery.Sources[0].(*connector.QuerySource)
	require.True(t, ok)
	assert.Equal(t, connector.KindWBEM, query.Kind())
	assert.Equal(t, "root/cimv2", query.Namespace)
	join, ok := cpu.Discovery.Sources[1].(*connector.TableJoinSource)
	require.True(t, ok)
	assert.Equal(t, "cpu.discovery.query", connector.SourceRef(join.LeftTable))
	assert.Equal(t, []string{"id"}, cpu.Collect.MatchKeys())
	mul, ok := cpu.Collect.Sources[0].ComputeList()[0].(*connector.Arithmetic)
	require.True(t, ok)
	assert.Equal(t, connector.KindMultiply, mul.Kind())

	status := c.Metrics[`hw.status{hw.type="cpu"}`]
	assert.True(t, status.IsStateSet())
	assert.Equal(t, []string{"ok", "degraded", "failed"}, status.StateSet)
	speed := c.Metrics["hw.cpu.speed"]
	assert.Equal(t, connector.Gauge, speed.Type)
	assert.Equal(t, "Hz", speed.Unit)
}

func TestUnknownVariant(t *testing.T) {
	_, err := connector.Parse([]byte(`
detection:
  criteria:
    - type: telepathy
`), "bad")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, connector.ErrReadConnector))
	assert.Contains(t, err.Error(), "telepathy")
}

func TestDuplicateSourceKeys(t *testing.T) {
	c, err := connector.Parse([]byte(`
pre:
  - type: static
    key: same
    value: a
  - type: copy
    key: ${source::SAME}
    from: same
`), "dup")
	require.NoError(t, err)

	err = connector.Validate(c)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, connector.ErrDuplicateSourceKey))
}

func TestDuplicateConnector(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: same\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("id: Same\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	_, err := connector.LoadDir(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, connector.ErrDuplicateConnector))
}

func TestMemoryStoreOrder(t *testing.T) {
	store, err := connector.NewMemoryStore(&connector.Connector{ID: "b"}, &connector.Connector{ID: "A"})
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].ID)
	assert.False(t, all[0].HasDetection())
}
