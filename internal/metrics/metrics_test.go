package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/hostmon/internal/config"
	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/logger"
	"codeberg.org/mutker/hostmon/internal/metrics"
	"codeberg.org/mutker/hostmon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(monitorID, metric string, value float64) metrics.Sample {
	return metrics.Sample{
		Timestamp:   at,
		ResourceID:  "server-1",
		MonitorID:   monitorID,
		MonitorType: "physical_disk",
		Metric:      metric,
		Value:       value,
	}
}

func testConfig(t *testing.T) metrics.Config {
	t.Helper()
	return metrics.ConfigFrom(config.History{
		Enabled: true,
		DBPath:  filepath.Join(t.TempDir(), "history", "history.db"),
		// A long timeout keeps the periodic flush out of the tests.
		BatchTimeout: time.Hour,
		BatchSize:    2,
	})
}

func TestConfigFrom(t *testing.T) {
	cfg := metrics.ConfigFrom(config.History{DBPath: "/var/lib/hostmon/history.db"})
	assert.Equal(t, "/var/lib/hostmon/backups", cfg.BackupDir)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.BatchTimeout)
	assert.False(t, cfg.Enabled)

	err := metrics.Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
	assert.NoError(t, metrics.Config{}.Validate())
}

func TestDisabledServiceIsNoop(t *testing.T) {
	rec, err := metrics.NewService(metrics.Config{}, logger.Nop())
	require.NoError(t, err)
	assert.False(t, rec.IsEnabled())
	assert.NoError(t, rec.Record(context.Background(), []metrics.Sample{sample("d1", "hw.power", 1)}))
	assert.NoError(t, rec.Close())
}

func TestRepositoryBatches(t *testing.T) {
	cfg := testConfig(t)
	repo, err := metrics.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, repo.Record([]metrics.Sample{sample("d1", "hw.power", 6)}))
	stored, err := repo.Samples("server-1", "d1")
	require.NoError(t, err)
	assert.Empty(t, stored, "below batch size nothing is written")

	require.NoError(t, repo.Record([]metrics.Sample{sample("d1", "hw.energy", 720)}))
	stored, err = repo.Samples("server-1", "d1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hw.energy", stored[0].Metric)
	assert.Equal(t, 720.0, stored[0].Value)
	assert.True(t, at.Equal(stored[0].Timestamp))

	require.NoError(t, repo.Record([]metrics.Sample{sample("d1", "hw.temperature", 41)}))
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	reopened, err := metrics.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	stored, err = reopened.Samples("server-1", "d1")
	require.NoError(t, err)
	assert.Len(t, stored, 3, "close flushes the buffer")
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	backups, err := filepath.Glob(filepath.Join(cfg.BackupDir, "history_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	require.NoError(t, repo.Record([]metrics.Sample{sample("d1", "hw.power", 1)}))
	require.NoError(t, repo.Flush())
	stored, err := repo.Samples("server-1", "d1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestServiceRecord(t *testing.T) {
	rec, err := metrics.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer rec.Close()
	assert.True(t, rec.IsEnabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, []metrics.Sample{sample("d1", "hw.power", 1)})
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
	assert.NoError(t, rec.Record(context.Background(), nil))
}

func TestSamplesAt(t *testing.T) {
	host := telemetry.NewHostTelemetry("server-1", "server-1.example.net", "linux")
	factory := &telemetry.MonitorFactory{Telemetry: host, ConnectorID: "linux", DiscoveryTime: at}
	disk, err := factory.CreateOrUpdate("physical_disk", map[string]string{"id": "sda"}, nil)
	require.NoError(t, err)

	mf := &telemetry.MetricFactory{}
	mf.CollectNumber(disk, "hw.power", 6, at.Add(-time.Minute))
	mf.CollectNumber(disk, "hw.temperature", 41, at)
	_, err = mf.CollectStateSet(disk, `hw.status{hw.type="physical_disk"}`, "OK", []string{"ok", "failed"}, at)
	require.NoError(t, err)

	samples := metrics.SamplesAt("server-1", host.All(), at)
	require.Len(t, samples, 2)
	byMetric := map[string]metrics.Sample{}
	for _, s := range samples {
		byMetric[s.Metric] = s
	}
	assert.Equal(t, 41.0, byMetric["hw.temperature"].Value)
	state := byMetric[`hw.status{hw.type="physical_disk"}`]
	assert.Equal(t, "ok", state.State)
	assert.Equal(t, disk.ID(), state.MonitorID)
	assert.Equal(t, "physical_disk", state.MonitorType)
}
