package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 500
	defaultBatchTimeout = 30 * time.Second
	backupDirName       = "backups"
)

type Config struct {
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

// ConfigFrom maps the [history] configuration section. Backups go next to
// the database.
func ConfigFrom(h config.History) Config {
	c := Config{
		DBPath:       h.DBPath,
		BatchSize:    h.BatchSize,
		BatchTimeout: h.BatchTimeout,
		Enabled:      h.Enabled,
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.DBPath != "" {
		c.BackupDir = filepath.Join(filepath.Dir(c.DBPath), backupDirName)
	}
	return c
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.Enabled && c.BatchSize <= 0 {
		return errFactory.WithData(ErrInvalidConfig, c.BatchSize)
	}
	return nil
}
