package protocol_test

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resource() *config.Resource {
	return &config.Resource{
		ID:       "switch-1",
		Hostname: "switch-1.example.net",
		Protocols: map[string]config.Protocol{
			"snmp": {Community: "public", Timeout: time.Second},
			"ssh":  {Username: "admin"},
		},
	}
}

func TestDispatchNotConfigured(t *testing.T) {
	d := protocol.NewDispatcher(nil)
	called := false
	d.Register(protocol.HTTP, protocol.ExecutorFunc(func(context.Context, protocol.Target, protocol.Query) (protocol.Result, error) {
		called = true
		return protocol.Result{}, nil
	}))

	_, err := d.Execute(context.Background(), resource(), protocol.Query{Protocol: protocol.HTTP, Operation: protocol.OpRequest})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, protocol.ErrNotConfigured))
	assert.False(t, called)
	assert.False(t, d.Supports(resource(), protocol.HTTP))

	_, err = d.Execute(context.Background(), resource(), protocol.Query{Protocol: protocol.WMI})
	assert.True(t, errors.HasCode(err, protocol.ErrNoExecutor))
}

func TestDispatchPassesConfiguration(t *testing.T) {
	d := protocol.NewDispatcher(nil)
	var seen protocol.Target
	var deadline time.Time
	d.Register("SNMP", protocol.ExecutorFunc(func(ctx context.Context, target protocol.Target, q protocol.Query) (protocol.Result, error) {
		seen = target
		deadline, _ = ctx.Deadline()
		return protocol.Result{Rows: [][]string{{q.Text, "ok"}}}, nil
	}))

	start := time.Now()
	result, err := d.Execute(context.Background(), resource(), protocol.Query{
		Protocol: protocol.SNMP, Operation: protocol.OpGet, Text: "1.3.6.1.2.1.1.1.0",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1.3.6.1.2.1.1.1.0", "ok"}}, result.Rows)
	assert.Equal(t, "public", seen.Config.Community)
	assert.Equal(t, "switch-1.example.net", seen.Hostname)
	assert.WithinDuration(t, start.Add(time.Second), deadline, 500*time.Millisecond)
}

func TestDispatchWrapsClientErrors(t *testing.T) {
	d := protocol.NewDispatcher(nil)
	d.Register(protocol.SNMP, protocol.ExecutorFunc(func(context.Context, protocol.Target, protocol.Query) (protocol.Result, error) {
		return protocol.Result{}, fmt.Errorf("no response")
	}))

	_, err := d.Execute(context.Background(), resource(), protocol.Query{Protocol: protocol.SNMP, Text: "1.3"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, protocol.ErrExecution))
	assert.Contains(t, err.Error(), "no response")
}

func TestDispatchImplicitProtocol(t *testing.T) {
	d := protocol.NewDispatcher(nil)
	d.Register(protocol.Local, protocol.ExecutorFunc(func(_ context.Context, target protocol.Target, _ protocol.Query) (protocol.Result, error) {
		assert.Zero(t, target.Config)
		return protocol.Result{Raw: "ok"}, nil
	}), protocol.WithoutConfiguration())

	result, err := d.Execute(context.Background(), resource(), protocol.Query{Protocol: protocol.Local})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Raw)
	assert.True(t, d.Supports(resource(), protocol.Local))
}

func TestDispatchHostLimit(t *testing.T) {
	limiter := protocol.NewHostLimiter(2)
	d := protocol.NewDispatcher(limiter)

	var running, peak atomic.Int32
	d.Register(protocol.SSH, protocol.ExecutorFunc(func(context.Context, protocol.Target, protocol.Query) (protocol.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return protocol.Result{}, nil
	}), protocol.WithHostLimit())

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Execute(context.Background(), resource(), protocol.Query{Protocol: protocol.SSH, Operation: protocol.OpCommand})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 1, limiter.Hosts())
}

func TestCommandProtocol(t *testing.T) {
	remote := resource()
	assert.Equal(t, protocol.SSH, protocol.CommandProtocol(remote, false))
	assert.Equal(t, protocol.Local, protocol.CommandProtocol(remote, true))
	assert.Equal(t, protocol.Local, protocol.CommandProtocol(&config.Resource{Hostname: "localhost"}, false))
}

func TestLocalCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}

	result, err := protocol.LocalCommand{}.Execute(context.Background(), protocol.Target{}, protocol.Query{
		Operation: protocol.OpCommand,
		Text:      "printf 'a;1\\nb;2\\n'",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a;1"}, {"b;2"}}, result.Rows)

	_, err = protocol.LocalCommand{}.Execute(context.Background(), protocol.Target{}, protocol.Query{
		Operation: protocol.OpCommand,
		Text:      "exit 3",
	})
	assert.True(t, errors.HasCode(err, protocol.ErrExecution))

	_, err = protocol.LocalCommand{}.Execute(context.Background(), protocol.Target{}, protocol.Query{Operation: protocol.OpGet})
	assert.True(t, errors.HasCode(err, protocol.ErrUnsupported))
}

func TestSSHArgs(t *testing.T) {
	target := protocol.Target{
		Hostname: "db-1.example.net",
		Config:   config.Protocol{Username: "monitor", Port: 2222, Timeout: 10 * time.Second},
	}
	assert.Equal(t, []string{
		"-o", "BatchMode=yes", "-o", "ConnectTimeout=10", "-p", "2222",
		"monitor@db-1.example.net", "--", "uname -a",
	}, protocol.SSHArgs(target, "uname -a"))

	assert.Equal(t, []string{"-o", "BatchMode=yes", "db-1", "--", "true"},
		protocol.SSHArgs(protocol.Target{Hostname: "db-1"}, "true"))
}

func TestSSHCommandOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses echo as a stand-in client")
	}

	ssh := protocol.SSHCommand{Binary: "echo"}
	result, err := ssh.Execute(context.Background(), protocol.Target{Hostname: "db-1"}, protocol.Query{
		Operation: protocol.OpCommand,
		Text:      "uname",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"-o BatchMode=yes db-1 -- uname"}}, result.Rows)

	_, err = ssh.Execute(context.Background(), protocol.Target{}, protocol.Query{Operation: protocol.OpTable})
	assert.True(t, errors.HasCode(err, protocol.ErrUnsupported))
}
