package gpu_test

import (
	"context"
	"fmt"
	"testing"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/gpu"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLibrary struct {
	initErr   error
	inits     int
	readings  []gpu.Reading
	shutdowns int
}

func (f *fakeLibrary) Initialize() error {
	f.inits++
	return f.initErr
}

func (f *fakeLibrary) Shutdown() error {
	f.shutdowns++
	return nil
}

func (f *fakeLibrary) Readings() ([]gpu.Reading, error) {
	return f.readings, nil
}

func ptr(v float64) *float64 {
	return &v
}

var local = protocol.Target{Hostname: "localhost", Local: true}

func TestDevices(t *testing.T) {
	lib := &fakeLibrary{readings: []gpu.Reading{
		{Index: 0, UUID: "GPU-1", Name: "RTX 4090", PowerWatts: ptr(120.5), EnergyJoule: ptr(3600), Temperature: ptr(54)},
		{Index: 1, UUID: "GPU-2", Name: "RTX 4090"},
	}}
	e := gpu.NewExecutor(lib)

	result, err := e.Execute(context.Background(), local, protocol.Query{Protocol: protocol.NVML})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"0", "GPU-1", "RTX 4090", "120.5", "3600", "54", "", "", "", ""}, result.Rows[0])
	assert.Equal(t, "1", result.Rows[1][0])
	assert.Empty(t, result.Rows[1][3])

	count, err := e.Execute(context.Background(), local, protocol.Query{Text: "COUNT"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2"}}, count.Rows)
	assert.Equal(t, 1, lib.inits)

	require.NoError(t, e.Close())
	assert.Equal(t, 1, lib.shutdowns)
}

func TestRemoteRefused(t *testing.T) {
	lib := &fakeLibrary{}
	_, err := gpu.NewExecutor(lib).Execute(context.Background(), protocol.Target{Hostname: "gpu-box"}, protocol.Query{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, gpu.ErrRemoteResource))
	assert.Zero(t, lib.inits)
}

func TestInitFailureSticks(t *testing.T) {
	lib := &fakeLibrary{initErr: fmt.Errorf("driver not loaded")}
	e := gpu.NewExecutor(lib)

	for range 2 {
		_, err := e.Execute(context.Background(), local, protocol.Query{})
		require.Error(t, err)
	}
	assert.Equal(t, 1, lib.inits)
}

func TestUnknownQuery(t *testing.T) {
	_, err := gpu.NewExecutor(&fakeLibrary{}).Execute(context.Background(), local, protocol.Query{Text: "clocks"})
	assert.True(t, errors.HasCode(err, gpu.ErrUnknownQuery))
}
