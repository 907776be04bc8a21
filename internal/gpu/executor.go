// Package gpu serves nvml sources and criteria from the local NVIDIA driver.
package gpu

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/protocol"
)

// Queries understood by the executor.
const (
	// QueryDevices returns one row per GPU:
	// index;uuid;name;power W;energy J;temperature °C;fan %;utilization ratio;memory used B;memory total B
	QueryDevices = "devices"
	// QueryCount returns a single row holding the GPU count.
	QueryCount = "count"
)

// Executor is the protocol.Executor of the nvml protocol.
type Executor struct {
	lib Library

	once    sync.Once
	initErr error
}

// NewExecutor wraps lib; a nil lib selects the local NVML library.
func NewExecutor(lib Library) *Executor {
	if lib == nil {
		lib = NewLibrary()
	}
	return &Executor{lib: lib}
}

func (e *Executor) init() error {
	e.once.Do(func() {
		e.initErr = e.lib.Initialize()
		if e.initErr != nil {
			logger.Debug().Err(e.initErr).Msg("NVML unavailable")
		}
	})
	return e.initErr
}

func (e *Executor) Execute(ctx context.Context, target protocol.Target, q protocol.Query) (protocol.Result, error) {
	errFactory := errors.New()

	if !target.Local {
		return protocol.Result{}, errFactory.WithData(ErrRemoteResource, target.Hostname)
	}
	if err := ctx.Err(); err != nil {
		return protocol.Result{}, err
	}
	if err := e.init(); err != nil {
		return protocol.Result{}, err
	}

	readings, err := e.lib.Readings()
	if err != nil {
		return protocol.Result{}, err
	}

	query := strings.ToLower(strings.TrimSpace(q.Text))
	switch query {
	case "", QueryDevices:
		rows := make([][]string, 0, len(readings))
		for _, r := range readings {
			rows = append(rows, r.row())
		}
		return result(rows), nil
	case QueryCount:
		return result([][]string{{strconv.Itoa(len(readings))}}), nil
	default:
		return protocol.Result{}, errFactory.WithData(ErrUnknownQuery, q.Text)
	}
}

// Close shuts NVML down.
func (e *Executor) Close() error {
	return e.lib.Shutdown()
}

func (r Reading) row() []string {
	return []string{
		strconv.Itoa(r.Index),
		r.UUID,
		r.Name,
		format(r.PowerWatts),
		format(r.EnergyJoule),
		format(r.Temperature),
		format(r.FanPercent),
		format(r.Utilization),
		format(r.MemoryUsed),
		format(r.MemoryTotal),
	}
}

func format(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func result(rows [][]string) protocol.Result {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, ";"))
	}
	return protocol.Result{Raw: strings.Join(lines, "\n"), Rows: rows}
}
