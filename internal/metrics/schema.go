package metrics

import (
	"database/sql"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       timestamp    INTEGER NOT NULL,
	       resource_id  TEXT NOT NULL,
	       monitor_id   TEXT NOT NULL,
	       monitor_type TEXT NOT NULL,
	       metric       TEXT NOT NULL,
	       value        REAL NOT NULL,
	       state        TEXT NOT NULL DEFAULT ''
	   );
	   CREATE INDEX IF NOT EXISTS samples_monitor
	       ON samples (resource_id, monitor_id, timestamp);`

	insertSampleSQL = `
    INSERT INTO samples (
        timestamp, resource_id, monitor_id, monitor_type, metric, value, state
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectSamplesSQL = `
    SELECT timestamp, resource_id, monitor_id, monitor_type, metric, value, state
    FROM samples
    WHERE resource_id = ? AND monitor_id = ?
    ORDER BY timestamp, metric`
)

var schemaTables = []string{"samples", "schema_versions"}

// InitSchema creates the tables and records the current version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating history database")

	err := inTx(db, log, ErrSchemaInitFailed, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Error string
				SQL   string
			}{
				Error: err.Error(),
				SQL:   createTablesSQL,
			})
		}
		if _, err := tx.Exec(`INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`,
			SchemaVersion); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Error string
				Phase string
			}{
				Error: err.Error(),
				Phase: "record_version",
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("History schema initialized")
	return nil
}

// inTx runs fn in a transaction and commits when fn succeeds.
func inTx(db *sql.DB, log logger.Logger, code errors.ErrorCode, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(code, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(code, err)
	}
	return nil
}

// GetSchemaVersion returns the recorded schema version, 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}
	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
