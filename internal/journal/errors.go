package journal

import "codeberg.org/odysseus/odytelem/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidPath   = errors.ErrorCode("journal_invalid_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("journal_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("journal_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("journal_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("journal_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed
	ErrQueryFailed  = errors.ErrorCode("journal_query_failed")
	ErrClosed       = errors.ErrorCode("journal_closed")

	ErrInvalidEntry = errors.ErrorCode("journal_invalid_entry")
)
