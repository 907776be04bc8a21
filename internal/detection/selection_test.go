package detection_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/detection"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func matching(id string, supersedes ...string) *connector.Connector {
	return &connector.Connector{ID: id, Detection: &connector.Detection{
		Supersedes: supersedes,
		Criteria:   connector.Criteria{&connector.DeviceTypeCriterion{}},
	}}
}

func TestCandidates(t *testing.T) {
	windowsOnly := matching("wmi-generic")
	windowsOnly.Detection.AppliesTo = []string{"windows"}
	connectors := []*connector.Connector{matching("linux"), matching("ipmi"), windowsOnly}

	res := &config.Resource{ID: "server-1", DeviceKind: "linux", ExcludeConnectors: []string{"IPMI"}}
	got := detection.Candidates(connectors, res)
	assert.Len(t, got, 1)
	assert.Equal(t, "linux", got[0].ID)

	res = &config.Resource{ID: "server-1", DeviceKind: "windows", Connectors: []string{"wmi-generic"}}
	got = detection.Candidates(connectors, res)
	assert.Len(t, got, 1)
	assert.Equal(t, "wmi-generic", got[0].ID)
}

func TestDetectSupersedes(t *testing.T) {
	connectors := []*connector.Connector{
		matching("generic-ipmi"),
		matching("dell-openmanage", "Generic-IPMI"),
		{ID: "nothing"},
	}
	res := &config.Resource{ID: "server-1", Hostname: "10.0.0.1", DeviceKind: "oob"}
	host := telemetry.NewHostTelemetry(res.ID, res.Hostname, res.DeviceKind)

	sel := newEngine(t).Detect(context.Background(), connectors, res, host, logger.Nop())

	assert.Len(t, sel.Results, 3)
	assert.Equal(t, []string{"dell-openmanage"}, sel.SelectedIDs())
}
