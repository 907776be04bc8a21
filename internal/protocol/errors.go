package protocol

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrNotConfigured = errors.ErrorCode("protocol_not_configured")
	ErrNoExecutor    = errors.ErrorCode("protocol_no_executor")
	ErrExecution     = errors.ErrorCode("protocol_execution_failed")
	ErrHostLimit     = errors.ErrorCode("protocol_host_limit")
	ErrUnsupported   = errors.ErrorCode("protocol_unsupported_operation")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNotConfigured: "Protocol is not configured for this resource",
		ErrNoExecutor:    "No executor is registered for this protocol",
		ErrExecution:     "Protocol query failed",
		ErrHostLimit:     "Could not obtain a connection permit for this host",
		ErrUnsupported:   "Protocol executor does not support this operation",
	})
}
