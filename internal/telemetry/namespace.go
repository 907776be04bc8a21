package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/hostmon/internal/errors"
	"golang.org/x/sync/semaphore"
)

// ConnectorNamespace is the scratch space of one connector on one resource:
// the tables produced during the current cycle and the lock serializing the
// criteria, sources and computes flagged forceSerialization.
type ConnectorNamespace struct {
	connectorID string

	mu     sync.RWMutex
	tables map[string]*SourceTable

	serial *semaphore.Weighted
}

func newConnectorNamespace(connectorID string) *ConnectorNamespace {
	return &ConnectorNamespace{
		connectorID: connectorID,
		tables:      make(map[string]*SourceTable),
		serial:      semaphore.NewWeighted(1),
	}
}

func (n *ConnectorNamespace) ConnectorID() string {
	return n.connectorID
}

// Table returns the table cached under key, case-insensitively.
func (n *ConnectorNamespace) Table(key string) (*SourceTable, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.tables[strings.ToLower(key)]
	return t, ok
}

// SetTable caches t under key, replacing any previous table.
func (n *ConnectorNamespace) SetTable(key string, t *SourceTable) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables[strings.ToLower(key)] = t
}

// Keys returns the cached table keys.
func (n *ConnectorNamespace) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := make([]string, 0, len(n.tables))
	for k := range n.tables {
		keys = append(keys, k)
	}
	return keys
}

// acquire waits at most wait for the serialization lock.
func (n *ConnectorNamespace) acquire(ctx context.Context, wait time.Duration) error {
	errFactory := errors.New()

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := n.serial.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return errFactory.Wrap(ErrLockInterrupted, ctx.Err()).WithData(n.connectorID)
		}
		return errFactory.Wrap(ErrLockTimeout, err).WithData(n.connectorID)
	}
	return nil
}

func (n *ConnectorNamespace) release() {
	n.serial.Release(1)
}

// RunSerialized runs fn while holding the namespace's serialization lock,
// waiting at most wait for it. When the lock cannot be obtained, fn is not
// run and fallback is returned with an ErrLockTimeout or ErrLockInterrupted
// error. The lock is released on every exit path of fn, panics included.
// An interrupted wait leaves ctx cancelled, so callers above observe it.
func RunSerialized[T any](ctx context.Context, n *ConnectorNamespace, wait time.Duration,
	fn func(context.Context) T, fallback T,
) (T, error) {
	if err := n.acquire(ctx, wait); err != nil {
		return fallback, err
	}
	defer n.release()

	return fn(ctx), nil
}
