package strategy_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	prepareErr error
	execute    func(ctx context.Context) error
	postErr    error

	posted   bool
	released bool
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Prepare(context.Context) error { return f.prepareErr }

func (f *fakeStrategy) Execute(ctx context.Context) error {
	if f.execute == nil {
		return nil
	}
	return f.execute(ctx)
}

func (f *fakeStrategy) Post(context.Context) error {
	f.posted = true
	return f.postErr
}

func (f *fakeStrategy) Release() { f.released = true }

func driver(timeout time.Duration) *strategy.Driver {
	return &strategy.Driver{Timeout: timeout, Log: logger.Nop()}
}

func TestDriverStatuses(t *testing.T) {
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	cases := []struct {
		name     string
		strategy *fakeStrategy
		want     strategy.Status
		posted   bool
	}{
		{"success", &fakeStrategy{}, strategy.StatusSuccess, true},
		{"prepare fails", &fakeStrategy{prepareErr: fmt.Errorf("no session")}, strategy.StatusGeneralError, false},
		{"post fails", &fakeStrategy{postErr: fmt.Errorf("flush")}, strategy.StatusGeneralError, true},
		{"execute fails", &fakeStrategy{execute: func(context.Context) error { return fmt.Errorf("boom") }}, strategy.StatusExecutionException, false},
		{"execute panics", &fakeStrategy{execute: func(context.Context) error { panic("nil map") }}, strategy.StatusExecutionException, false},
		{"timeout", &fakeStrategy{execute: block}, strategy.StatusTimeout, false},
		{"ignores cancellation", &fakeStrategy{execute: func(context.Context) error {
			time.Sleep(time.Second)
			return nil
		}}, strategy.StatusTimeout, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := driver(30*time.Millisecond).Run(context.Background(), tc.strategy)

			assert.Equal(t, tc.want, result.Status)
			assert.Equal(t, tc.want == strategy.StatusSuccess, result.OK())
			assert.Equal(t, tc.posted, tc.strategy.posted)
			assert.True(t, tc.strategy.released)
			assert.Equal(t, "fake", result.Strategy)
			assert.NotEqual(t, uuid.Nil, result.CycleID)
			if tc.want != strategy.StatusSuccess {
				assert.Error(t, result.Err)
			}
		})
	}
}

func TestDriverPanicIsCoded(t *testing.T) {
	result := driver(time.Second).Run(context.Background(), &fakeStrategy{
		execute: func(context.Context) error { panic("nil map") },
	})
	assert.True(t, errors.HasCode(result.Err, strategy.ErrPanic))
	assert.Contains(t, result.Err.Error(), "nil map")
}

func TestDriverTimeoutIsCoded(t *testing.T) {
	result := driver(10*time.Millisecond).Run(context.Background(), &fakeStrategy{
		execute: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.Equal(t, strategy.StatusTimeout, result.Status)
	assert.True(t, errors.HasCode(result.Err, errors.ErrTimeout))
}

func TestDriverInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	s := &fakeStrategy{execute: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	result := driver(time.Minute).Run(ctx, s)

	assert.Equal(t, strategy.StatusInterrupted, result.Status)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.True(t, s.released)
}

func TestDriverKeepsCycleID(t *testing.T) {
	id := uuid.New()
	d := &strategy.Driver{CycleID: id, Log: logger.Nop()}

	assert.Equal(t, id, d.Run(context.Background(), &fakeStrategy{}).CycleID)
	assert.Equal(t, id, d.Run(context.Background(), &fakeStrategy{}).CycleID)
}
