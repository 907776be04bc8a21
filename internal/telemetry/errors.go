package telemetry

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrMissingMonitorID   = errors.ErrorCode("telemetry_missing_monitor_id")
	ErrMissingMonitorType = errors.ErrorCode("telemetry_missing_monitor_type")
	ErrUnresolvedParent   = errors.ErrorCode("telemetry_unresolved_parent")
	ErrParentCycle        = errors.ErrorCode("telemetry_parent_cycle")
	ErrInvalidNumber      = errors.ErrorCode("telemetry_invalid_number")
	ErrInvalidState       = errors.ErrorCode("telemetry_invalid_state")
	ErrLockTimeout        = errors.ErrorCode("telemetry_lock_timeout")
	ErrLockInterrupted    = errors.ErrorCode("telemetry_lock_interrupted")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrMissingMonitorID:   "Monitor has no id",
		ErrMissingMonitorType: "Monitor has no type",
		ErrUnresolvedParent:   "Monitor parent cannot be resolved",
		ErrParentCycle:        "Monitor parent would create a cycle",
		ErrInvalidNumber:      "Metric value is not a number",
		ErrInvalidState:       "Metric value is not a member of its state set",
		ErrLockTimeout:        "Timed out waiting for the connector serialization lock",
		ErrLockInterrupted:    "Interrupted while waiting for the connector serialization lock",
	})
}
