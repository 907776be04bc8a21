// Package metrics keeps a sqlite history of the metric samples each collect
// cycle produces.
package metrics

import (
	"context"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopRecorder struct{}

// NewService returns the recorder described by cfg, a no-op one when the
// history is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metric history disabled, using no-op recorder")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, cfg: cfg}, nil
}

func (s *service) Record(ctx context.Context, samples []Sample) error {
	errFactory := errors.New()

	if len(samples) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(samples); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}
	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*service) IsEnabled() bool { return true }

func (noopRecorder) Record(context.Context, []Sample) error { return nil }

func (noopRecorder) Close() error { return nil }

func (noopRecorder) IsEnabled() bool { return false }
