package metrics

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitHistory
	ErrStorageQuery = errors.ErrorCode("metrics_storage_query_failed")
	ErrStorageClose = errors.ErrCloseHistory

	// Recording Errors
	ErrRecordFailed     = errors.ErrRecordHistory
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "History database path is empty",
		ErrSchemaInitFailed:       "Failed to initialize history schema",
		ErrSchemaValidationFailed: "Failed to validate history schema",
		ErrSchemaMigrationFailed:  "Failed to migrate history schema",
		ErrTransactionFailed:      "History transaction failed",
		ErrStorageQuery:           "Failed to query history",
	})
}
