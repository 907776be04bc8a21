package agent

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrNoResources    = errors.ErrorCode("agent_no_resources")
	ErrRegisterMetric = errors.ErrorCode("agent_register_metric_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNoResources:    "No resources are configured",
		ErrRegisterMetric: "Failed to register agent metric",
	})
}
