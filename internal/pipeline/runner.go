// Package pipeline runs connector sources and computes and evaluates job
// mappings over the resulting tables.
package pipeline

import (
	"context"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/protocol"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// QueryExecutor runs protocol queries against a resource.
type QueryExecutor interface {
	Execute(ctx context.Context, resource *config.Resource, q protocol.Query) (protocol.Result, error)
}

const defaultSerializationWait = 2 * time.Minute

// MonitorContext identifies what a pipeline run works for.
type MonitorContext struct {
	Resource    *config.Resource
	ConnectorID string
	Log         logger.Logger
}

// Runner executes source lists into connector namespaces.
type Runner struct {
	Executor          QueryExecutor
	SerializationWait time.Duration
}

// NewRunner returns a runner dispatching protocol sources to executor.
func NewRunner(executor QueryExecutor, serializationWait time.Duration) *Runner {
	if serializationWait <= 0 {
		serializationWait = defaultSerializationWait
	}
	return &Runner{Executor: executor, SerializationWait: serializationWait}
}

// Run executes sources in order, applies each source's computes in order
// and caches every resulting table in ns under the source key. A source
// that produces no table leaves its key untouched. A failing compute turns
// the table into an empty one. Run stops early when ctx is done.
func (r *Runner) Run(ctx context.Context, sources connector.Sources, ns *telemetry.ConnectorNamespace, mc MonitorContext) {
	for _, src := range sources {
		if ctx.Err() != nil {
			mc.Log.Debug().Str("connector", mc.ConnectorID).Msg("Pipeline interrupted")
			return
		}

		key := src.SourceKey()
		table := r.serialized(ctx, src, ns, mc, func(ctx context.Context) *telemetry.SourceTable {
			return r.execute(ctx, src, ns, mc)
		})
		if table == nil {
			mc.Log.Debug().Str("connector", mc.ConnectorID).Str("source", key).Msg("Source produced no table")
			continue
		}

		for i, c := range src.ComputeList() {
			input := table
			table = r.serialized(ctx, c, ns, mc, func(context.Context) *telemetry.SourceTable {
				out, err := Apply(c, input)
				if err != nil {
					mc.Log.Debug().Err(err).
						Str("connector", mc.ConnectorID).
						Str("source", key).
						Int("compute", i+1).
						Msg("Compute failed")
					return telemetry.EmptyTable()
				}
				return out
			})
			if table == nil {
				table = telemetry.EmptyTable()
			}
		}

		ns.SetTable(key, table)
	}
}

type serializable interface {
	Serialized() bool
}

func (r *Runner) serialized(ctx context.Context, s serializable, ns *telemetry.ConnectorNamespace, mc MonitorContext,
	fn func(context.Context) *telemetry.SourceTable,
) *telemetry.SourceTable {
	if !s.Serialized() {
		return fn(ctx)
	}
	wait := r.SerializationWait
	if wait <= 0 {
		wait = defaultSerializationWait
	}
	table, err := telemetry.RunSerialized(ctx, ns, wait, fn, telemetry.EmptyTable())
	if err != nil {
		mc.Log.Debug().Err(err).Str("connector", mc.ConnectorID).Msg("Serialized operation abandoned")
	}
	return table
}
