package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []Sample
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens (or creates) the sqlite database at cfg.DBPath.
// Samples are buffered and written in one transaction when the buffer holds
// BatchSize samples or every BatchTimeout.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.DBPath), backupDirName)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]Sample, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(samples []Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, samples...)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}
	return nil
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

// Samples returns the stored samples of one monitor, oldest first. Buffered
// samples are not included until flushed.
func (r *repository) Samples(resourceID, monitorID string) ([]Sample, error) {
	errFactory := errors.New()

	rows, err := r.db.Query(selectSamplesSQL, resourceID, monitorID)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			s  Sample
			ms int64
		)
		if err := rows.Scan(&ms, &s.ResourceID, &s.MonitorID, &s.MonitorType, &s.Metric, &s.Value, &s.State); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}
		s.Timestamp = time.UnixMilli(ms).UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	return samples, nil
}

// Close flushes the buffer and closes the database. It is safe to call more
// than once.
func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.close()
	})
	return err
}

func (r *repository) close() error {
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}
	if flushErr != nil {
		return errors.New().Wrap(ErrStorageClose, flushErr)
	}

	r.logger.Info().Msg("History repository closed")
	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. The caller holds r.mu. A
// failed flush keeps the buffer for the next attempt.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	err := inTx(r.db, r.logger, ErrTransactionFailed, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertSampleSQL)
		if err != nil {
			return errors.New().Wrap(ErrTransactionFailed, err)
		}
		defer stmt.Close()

		for _, s := range r.buffer {
			if _, err := stmt.Exec(
				s.Timestamp.UnixMilli(),
				s.ResourceID,
				s.MonitorID,
				s.MonitorType,
				s.Metric,
				s.Value,
				s.State,
			); err != nil {
				return errors.New().Wrap(ErrTransactionFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed history samples")
	r.buffer = r.buffer[:0]
	return nil
}
