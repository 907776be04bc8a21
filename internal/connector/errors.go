package connector

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrUnknownVariant     = errors.ErrorCode("connector_unknown_variant")
	ErrDuplicateSourceKey = errors.ErrorCode("connector_duplicate_source_key")
	ErrMissingSourceKey   = errors.ErrorCode("connector_missing_source_key")
	ErrMissingMonitorType = errors.ErrorCode("connector_missing_monitor_type")
	ErrReadConnector      = errors.ErrorCode("connector_read_failed")
	ErrDuplicateConnector = errors.ErrorCode("connector_duplicate_id")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrUnknownVariant:     "Unknown connector element type",
		ErrDuplicateSourceKey: "Duplicate source key",
		ErrMissingSourceKey:   "Source without key",
		ErrMissingMonitorType: "Monitor job without type",
		ErrReadConnector:      "Failed to read connector",
		ErrDuplicateConnector: "Duplicate connector id",
	})
}
