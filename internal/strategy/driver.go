// Package strategy runs the detection, discovery, collect and power stages
// of a resource cycle under a bounded timeout.
package strategy

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"github.com/google/uuid"
)

// Status is the outcome of one strategy run.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusGeneralError       Status = "general-error"
	StatusExecutionException Status = "execution-exception"
	StatusTimeout            Status = "timeout"
	StatusInterrupted        Status = "interrupted"
)

// DefaultTimeout bounds the execution of one strategy.
const DefaultTimeout = 15 * time.Minute

// Strategy is one stage of a resource cycle. Prepare, Execute and Post run
// in that order, each only if the previous one succeeded; Release always
// runs last.
type Strategy interface {
	Name() string
	Prepare(ctx context.Context) error
	Execute(ctx context.Context) error
	Post(ctx context.Context) error
	Release()
}

// Result reports one strategy run.
type Result struct {
	CycleID  uuid.UUID
	Strategy string
	Status   Status
	Err      error
	Started  time.Time
	Duration time.Duration
}

// OK reports whether the run succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Driver runs strategies. The zero value uses DefaultTimeout and a fresh
// cycle id per run.
type Driver struct {
	Timeout time.Duration
	CycleID uuid.UUID
	Log     logger.Logger
}

// Run executes s. Execute runs on its own goroutine and is abandoned when
// the timeout elapses or ctx is cancelled; whatever it already changed is
// kept. Run never panics on behalf of s.
func (d *Driver) Run(ctx context.Context, s Strategy) (result Result) {
	errFactory := errors.New()

	result = Result{CycleID: d.CycleID, Strategy: s.Name(), Started: time.Now()}
	if result.CycleID == uuid.Nil {
		result.CycleID = uuid.New()
	}
	defer func() {
		result.Duration = time.Since(result.Started)
		d.log(result)
	}()
	defer s.Release()

	if err := guard(func() error { return s.Prepare(ctx) }); err != nil {
		result.Status, result.Err = StatusGeneralError, errFactory.Wrap(ErrPrepare, err)
		return result
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- guard(func() error { return s.Execute(execCtx) })
	}()

	var err error
	select {
	case err = <-done:
	case <-execCtx.Done():
		err = execCtx.Err()
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			result.Status, result.Err = StatusInterrupted, ctx.Err()
		case execCtx.Err() != nil:
			result.Status = StatusTimeout
			result.Err = errFactory.Wrap(errors.ErrTimeout, execCtx.Err()).WithData(timeout.String())
		default:
			result.Status, result.Err = StatusExecutionException, errFactory.Wrap(ErrExecute, err)
		}
		return result
	}

	if err = guard(func() error { return s.Post(ctx) }); err != nil {
		result.Status, result.Err = StatusGeneralError, errFactory.Wrap(ErrPost, err)
		return result
	}

	result.Status = StatusSuccess
	return result
}

func (d *Driver) log(r Result) {
	if r.OK() {
		d.Log.Debug().
			Str("strategy", r.Strategy).
			Dur("duration", r.Duration).
			Msg("Strategy completed")
		return
	}
	d.Log.Warn().
		Err(r.Err).
		Str("strategy", r.Strategy).
		Str("status", string(r.Status)).
		Str("cycle", r.CycleID.String()).
		Msg("Strategy failed")
}

// guard turns a panic of fn into an ErrPanic error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrPanic, fmt.Sprint(r))
		}
	}()
	return fn()
}
