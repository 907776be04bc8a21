// Package detection decides which connectors apply to a resource.
package detection

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
// *protocol.Dispatcher implements it.
type QueryExecutor interface {
	Execute(ctx context.Context, resource *config.Resource, q protocol.Query) (protocol.Result, error)
	Supports(resource *config.Resource, protocol string) bool
}

// DefaultSerializationWait bounds the wait for a connector's serialization
// lock.
const DefaultSerializationWait = 2 * time.Minute

// Engine tests connectors against resources.
type Engine struct {
	Executor          QueryExecutor
	Processes         ProcessLister
	SerializationWait time.Duration
}

// NewEngine returns an engine listing local processes with gopsutil.
func NewEngine(executor QueryExecutor, serializationWait time.Duration) *Engine {
	if serializationWait <= 0 {
		serializationWait = DefaultSerializationWait
	}
	return &Engine{
		Executor:          executor,
		Processes:         SystemProcesses{},
		SerializationWait: serializationWait,
	}
}

// TestConnector evaluates every criterion of conn in order. The connector
// matches when it has criteria and all of them pass; a connector without
// detection never matches. Criteria flagged forceSerialization run under
// the lock of ns.
func (e *Engine) TestConnector(ctx context.Context, conn *connector.Connector, resource *config.Resource,
	ns *telemetry.ConnectorNamespace, log logger.Logger,
) ConnectorTestResult {
	result := ConnectorTestResult{
		ConnectorID: conn.ID,
		ResourceID:  resource.ID,
	}
	if !conn.HasDetection() {
		log.Debug().Str("connector", conn.ID).Msg("No detection criteria, connector does not match")
		return result
	}

	result.Success = true
	for _, criterion := range conn.Detection.Criteria {
		r := e.testCriterion(ctx, criterion, resource, ns)
		if !r.Success {
			result.Success = false
		}
		log.Debug().
			Str("connector", conn.ID).
			Str("criterion", criterion.Kind()).
			Bool("success", r.Success).
			Msg(r.Message)
		result.Criteria = append(result.Criteria, r)
	}
	return result
}

func (e *Engine) testCriterion(ctx context.Context, c connector.Criterion, resource *config.Resource,
	ns *telemetry.ConnectorNamespace,
) CriterionTestResult {
	run := func(ctx context.Context) CriterionTestResult {
		return e.process(ctx, c, resource)
	}
	if !c.Serialized() || ns == nil {
		return run(ctx)
	}

	failed := CriterionTestResult{Criterion: c}
	r, err := telemetry.RunSerialized(ctx, ns, e.wait(), run, failed)
	if err != nil {
		r.Err = err
		r.Message = "Failed: " + err.Error()
	}
	return r
}

func (e *Engine) wait() time.Duration {
	if e.SerializationWait <= 0 {
		return DefaultSerializationWait
	}
	return e.SerializationWait
}
