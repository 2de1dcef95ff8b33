package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olbboy/streviz-engine/internal/config"
)

func testConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	return config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 6,
		MaxIdleConns: 3,
		LogLevel:     "silent",
	}
}

func TestNew_SQLite(t *testing.T) {
	db, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Driver = "oracle"
	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}

func TestDB_Close(t *testing.T) {
	db, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestSQLiteDSN_DefaultPragmas(t *testing.T) {
	cfg := testConfig(t)
	dsn := sqliteDSN(cfg)

	assert.True(t, strings.HasPrefix(dsn, cfg.DSN+"?"))
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(30000)")
}

func TestSQLiteDSN_ConfiguredPragmas(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLitePragmas = map[string]string{
		"journal_mode": "DELETE",
		"busy_timeout": "5000",
	}

	dsn := sqliteDSN(cfg)
	assert.Equal(t, cfg.DSN+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)", dsn,
		"pragmas are sorted by name so the DSN is deterministic")
}

func TestSQLiteDSN_AppendsToExistingQuery(t *testing.T) {
	cfg := testConfig(t)
	cfg.DSN = cfg.DSN + "?mode=rwc"
	cfg.SQLitePragmas = map[string]string{"foreign_keys": "ON"}

	dsn := sqliteDSN(cfg)
	assert.Equal(t, cfg.DSN+"&_pragma=foreign_keys(ON)", dsn)
}
