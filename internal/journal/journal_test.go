package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:          filepath.Join(t.TempDir(), "journal.db"),
		FlushInterval: time.Hour,
		Enabled:       true,
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	j, err := New(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, j.Record("TPU/OnBoard/CpuUsage", wire.Frame{Unit: "%"}, nil))
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, j.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate(), "disabled config is not validated")

	err := Config{Enabled: true, FlushInterval: time.Second}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidPath))

	err = Config{Enabled: true, Path: "/tmp/j.db"}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestRecordKeepsLastFramePerTopic(t *testing.T) {
	j, err := New(testConfig(t))
	require.NoError(t, err)
	defer j.Close()

	first := wire.Frame{Unit: "celsius", Values: []float32{41.5}, TimeUS: 100}
	second := wire.Frame{Unit: "celsius", Values: []float32{42.25}, TimeUS: 200}
	mem := wire.Frame{Unit: "MB", Values: []float32{512}, TimeUS: 150}

	require.NoError(t, j.Record("TPU/OnBoard/CpuTemp", first, []byte{1}))
	require.NoError(t, j.Record("TPU/OnBoard/CpuTemp", second, []byte{2}))
	require.NoError(t, j.Record("TPU/OnBoard/MemAvailable", mem, []byte{3}))

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		Topic:   "TPU/OnBoard/CpuTemp",
		Unit:    "celsius",
		Value:   42.25,
		Payload: []byte{2},
		TimeUS:  200,
		Count:   2,
	}, entries[0])
	assert.Equal(t, "TPU/OnBoard/MemAvailable", entries[1].Topic)
	assert.Equal(t, int64(1), entries[1].Count)
}

func TestCountsAccumulateAcrossFlushes(t *testing.T) {
	j, err := New(testConfig(t))
	require.NoError(t, err)
	defer j.Close()

	frame := wire.Frame{Unit: "%", Values: []float32{12}, TimeUS: 1}
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record("TPU/OnBoard/CpuUsage", frame, nil))
		require.NoError(t, j.Flush())
	}

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].Count)
}

func TestCloseFlushesAndSurvivesReopen(t *testing.T) {
	cfg := testConfig(t)

	j, err := New(cfg)
	require.NoError(t, err)
	frame := wire.Frame{Unit: "V", Values: []float32{3.7}, TimeUS: 1234}
	require.NoError(t, j.Record("TPU/OnBoard/CpuUsage", frame, []byte("payload")))
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "second close is a no-op")

	err = j.Record("TPU/OnBoard/CpuUsage", frame, nil)
	assert.True(t, errors.HasCode(err, ErrClosed))

	reopened, err := New(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, float32(3.7), entries[0].Value)
	assert.Equal(t, uint64(1234), entries[0].TimeUS)
	assert.Equal(t, []byte("payload"), entries[0].Payload)
}

func TestFlusherWritesOnInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlushInterval = 10 * time.Millisecond

	j, err := New(cfg)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record("TPU/OnBoard/CpuTemp", wire.Frame{Unit: "celsius", Values: []float32{40}}, nil))

	repo := j.(*repository)
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.pending) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRecordRejectsEmptyTopic(t *testing.T) {
	j, err := New(testConfig(t))
	require.NoError(t, err)
	defer j.Close()

	err = j.Record("", wire.Frame{}, nil)
	assert.True(t, errors.HasCode(err, ErrInvalidEntry))
}

func TestSchemaMismatchIsRecreated(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.Path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE publications (topic TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	j, err := New(cfg)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record("TPU/OnBoard/CpuTemp", wire.Frame{Unit: "celsius", Values: []float32{40}}, nil))
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.Path), backupDirName, "journal_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	version, err := GetSchemaVersion(j.(*repository).db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestGetSchemaVersionEmptyDatabase(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, InitSchema(db, logger.For("test")))
	version, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}
