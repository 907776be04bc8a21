package detection_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/detection"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"codeberg.org/mutker/hostmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcesses []string

func (f fakeProcesses) CommandLines(context.Context) ([]string, error) {
	return f, nil
}

func snmpAgent(values map[string][]string) protocol.Executor {
	return protocol.ExecutorFunc(func(_ context.Context, _ protocol.Target, q protocol.Query) (protocol.Result, error) {
		row, ok := values[q.Text]
		if !ok {
			return protocol.Result{}, errors.New().WithData(errors.ErrUnavailable, "no such object")
		}
		return protocol.Result{Rows: [][]string{row}}, nil
	})
}

func newEngine(t *testing.T) *detection.Engine {
	t.Helper()
	d := protocol.NewDispatcher(nil)
	d.Register(protocol.SNMP, snmpAgent(map[string][]string{
		"1.3.6.1.2.1.1.1.0": {"Linux server-1 6.1.0"},
		"1.3.6.1.4.1.674":   {"1.3.6.1.4.1.674.10892.1.1", "Dell"},
	}))
	d.Register(protocol.SSH, protocol.ExecutorFunc(func(_ context.Context, _ protocol.Target, q protocol.Query) (protocol.Result, error) {
		return protocol.LinesResult("Linux\n"), nil
	}))
	e := detection.NewEngine(d, 50*time.Millisecond)
	e.Processes = fakeProcesses{"/usr/sbin/sshd -D", "/usr/bin/dockerd --host fd://"}
	return e
}

func snmpResource() *config.Resource {
	return &config.Resource{
		ID:         "server-1",
		Hostname:   "server-1.example.net",
		DeviceKind: "linux",
		Protocols:  map[string]config.Protocol{"snmp": {Community: "public"}},
	}
}

func withCriteria(id string, criteria ...connector.Criterion) *connector.Connector {
	return &connector.Connector{ID: id, Detection: &connector.Detection{Criteria: criteria}}
}

func TestAllCriteriaPass(t *testing.T) {
	conn := withCriteria("linux",
		&connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0", ExpectedResult: "^linux"},
		&connector.DeviceTypeCriterion{Keep: []string{"Linux"}},
	)

	result := newEngine(t).TestConnector(context.Background(), conn, snmpResource(), nil, logger.Nop())

	assert.True(t, result.Success)
	assert.Equal(t, 1.0, result.StatusValue())
	require.Len(t, result.Criteria, 2)
	assert.Equal(t, "Linux server-1 6.1.0", result.Criteria[0].Result)

	report := result.Report()
	assert.Contains(t, report, "Criterion 1 (snmpGet): success")
	assert.Contains(t, report, "Result: Linux server-1 6.1.0")
	lines := strings.Split(report, "\n")
	assert.Equal(t, "Conclusion: connector linux matches resource server-1", lines[len(lines)-1])
}

func TestUnconfiguredProtocolFailsCriterion(t *testing.T) {
	conn := withCriteria("linux-ssh",
		&connector.CommandLineCriterion{CommandLine: "uname", ExpectedResult: "linux"},
		&connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0"},
	)
	res := snmpResource()
	res.Protocols = map[string]config.Protocol{"ssh": {Username: "root"}}

	result := newEngine(t).TestConnector(context.Background(), conn, res, nil, logger.Nop())

	assert.False(t, result.Success)
	assert.Equal(t, 0.0, result.StatusValue())
	require.Len(t, result.Criteria, 2)
	assert.True(t, result.Criteria[0].Success)
	assert.False(t, result.Criteria[1].Success)
	assert.True(t, errors.HasCode(result.Criteria[1].Err, protocol.ErrNotConfigured))
	assert.True(t, strings.HasSuffix(result.Report(), "connector linux-ssh does not match resource server-1"))
}

func TestNoDetectionNeverMatches(t *testing.T) {
	e := newEngine(t)
	for _, conn := range []*connector.Connector{
		{ID: "bare"},
		{ID: "empty", Detection: &connector.Detection{}},
	} {
		result := e.TestConnector(context.Background(), conn, snmpResource(), nil, logger.Nop())
		assert.False(t, result.Success, conn.ID)
		assert.Empty(t, result.Criteria, conn.ID)
		assert.Contains(t, result.Report(), "No detection criteria")
	}
}

func TestExpectedResultIsCaseInsensitive(t *testing.T) {
	e := newEngine(t)
	pass := withCriteria("a", &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0", ExpectedResult: "LINUX SERVER"})
	fail := withCriteria("b", &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0", ExpectedResult: "windows"})
	broken := withCriteria("c", &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0", ExpectedResult: "("})

	assert.True(t, e.TestConnector(context.Background(), pass, snmpResource(), nil, logger.Nop()).Success)
	assert.False(t, e.TestConnector(context.Background(), fail, snmpResource(), nil, logger.Nop()).Success)

	result := e.TestConnector(context.Background(), broken, snmpResource(), nil, logger.Nop())
	assert.True(t, errors.HasCode(result.Criteria[0].Err, detection.ErrInvalidExpectation))
}

func TestSNMPGetNextPrefix(t *testing.T) {
	e := newEngine(t)

	inside := withCriteria("dell", &connector.SNMPGetNextCriterion{OID: "1.3.6.1.4.1.674"})
	assert.True(t, e.TestConnector(context.Background(), inside, snmpResource(), nil, logger.Nop()).Success)

	valued := withCriteria("dell", &connector.SNMPGetNextCriterion{OID: "1.3.6.1.4.1.674", ExpectedResult: "hp"})
	assert.False(t, e.TestConnector(context.Background(), valued, snmpResource(), nil, logger.Nop()).Success)

	outside := withCriteria("sys", &connector.SNMPGetNextCriterion{OID: "1.3.6.1.2.1.1.1.0"})
	r := e.TestConnector(context.Background(), outside, snmpResource(), nil, logger.Nop())
	assert.False(t, r.Success)
	assert.Contains(t, r.Criteria[0].Message, "left the OID tree")
}

func TestDeviceType(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		name      string
		criterion *connector.DeviceTypeCriterion
		want      bool
	}{
		{"no lists", &connector.DeviceTypeCriterion{}, true},
		{"kept", &connector.DeviceTypeCriterion{Keep: []string{"windows", "linux"}}, true},
		{"not kept", &connector.DeviceTypeCriterion{Keep: []string{"windows"}}, false},
		{"excluded", &connector.DeviceTypeCriterion{Exclude: []string{"LINUX"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := e.TestConnector(context.Background(), withCriteria("x", tc.criterion), snmpResource(), nil, logger.Nop())
			assert.Equal(t, tc.want, r.Success)
		})
	}
}

func TestProcessCriterion(t *testing.T) {
	e := newEngine(t)
	docker := withCriteria("docker", &connector.ProcessCriterion{CommandLine: "dockerd"})
	podman := withCriteria("podman", &connector.ProcessCriterion{CommandLine: "podman"})

	local := &config.Resource{ID: "self", Hostname: "localhost"}
	assert.True(t, e.TestConnector(context.Background(), docker, local, nil, logger.Nop()).Success)
	assert.False(t, e.TestConnector(context.Background(), podman, local, nil, logger.Nop()).Success)

	remote := e.TestConnector(context.Background(), podman, snmpResource(), nil, logger.Nop())
	assert.True(t, remote.Success)
	assert.Contains(t, remote.Criteria[0].Message, "skipped")
}

func TestSerializedCriterionLockTimeout(t *testing.T) {
	e := newEngine(t)
	host := telemetry.NewHostTelemetry("server-1", "server-1.example.net", "linux")
	ns := host.Namespace("linux")

	crit := &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.1.0"}
	crit.ForceSerialization = true
	conn := withCriteria("linux", crit, &connector.DeviceTypeCriterion{})

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = telemetry.RunSerialized(context.Background(), ns, time.Second, func(context.Context) bool {
			close(holding)
			<-done
			return true
		}, false)
	}()
	<-holding

	result := e.TestConnector(context.Background(), conn, snmpResource(), ns, logger.Nop())
	close(done)

	assert.False(t, result.Success)
	require.Len(t, result.Criteria, 2)
	assert.True(t, errors.HasCode(result.Criteria[0].Err, telemetry.ErrLockTimeout))
	assert.True(t, result.Criteria[1].Success)

	again := e.TestConnector(context.Background(), conn, snmpResource(), ns, logger.Nop())
	assert.True(t, again.Success)
}
