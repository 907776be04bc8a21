package protocol

import (
	"context"
	"strings"
	"sync"

	"codeberg.org/mutker/hostmon/internal/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultHostPermits is the concurrent connection count allowed per host.
const DefaultHostPermits = 8

// HostLimiter caps concurrent connections to each host. It is shared by
// every resource session of the process.
type HostLimiter struct {
	permits int64

	mu    sync.Mutex
	hosts map[string]*semaphore.Weighted
}

// NewHostLimiter returns a limiter granting permits connections per host;
// non-positive values select DefaultHostPermits.
func NewHostLimiter(permits int) *HostLimiter {
	if permits <= 0 {
		permits = DefaultHostPermits
	}
	return &HostLimiter{
		permits: int64(permits),
		hosts:   make(map[string]*semaphore.Weighted),
	}
}

// Permits returns the per-host permit count.
func (l *HostLimiter) Permits() int {
	return int(l.permits)
}

func (l *HostLimiter) semaphore(hostname string) *semaphore.Weighted {
	key := strings.ToLower(hostname)

	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.hosts[key]
	if !ok {
		sem = semaphore.NewWeighted(l.permits)
		l.hosts[key] = sem
	}
	return sem
}

// Acquire waits for a permit on hostname until ctx is done. The returned
// function releases the permit.
func (l *HostLimiter) Acquire(ctx context.Context, hostname string) (func(), error) {
	sem := l.semaphore(hostname)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, errors.New().Wrap(ErrHostLimit, err).WithData(hostname)
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

// Hosts returns the number of hosts with a semaphore.
func (l *HostLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}
