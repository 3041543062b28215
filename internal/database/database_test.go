package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/config"
	"github.com/wfunc/instant-win/internal/models"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpen_SQLiteFileWithMigration(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "instant-win.db")

	db, err := Open(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         dsn,
		LogLevel:    "silent",
		AutoMigrate: true,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.PlayerState{}))
	assert.True(t, db.Migrator().HasTable(&models.CardResult{}))

	// 迁移结束后锁文件应已释放
	_, err = os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "", sqlitePath(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}))
	assert.Equal(t, "", sqlitePath(&config.DatabaseConfig{Driver: "mysql", DSN: "root@/db"}))
	assert.Equal(t, "./data/x.db", sqlitePath(&config.DatabaseConfig{Driver: "sqlite", DSN: "./data/x.db?_busy_timeout=5000"}))
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, gormLevel("silent"))
	assert.Equal(t, gormlogger.Error, gormLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, gormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, gormLevel(""))
}

func TestGormLogger_LogModeKeepsThreshold(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), gormlogger.Warn)
	l.SlowThreshold = time.Second

	quiet, ok := l.LogMode(gormlogger.Silent).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, time.Second, quiet.SlowThreshold)
	assert.Equal(t, gormlogger.Warn, l.level)
}
