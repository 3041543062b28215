package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建内存测试数据库并迁移全部模型
func TestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.PlayerState{},
		&models.CardResult{},
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateTestCardResult 创建测试用卡片结果
func CreateTestCardResult(userID, instanceID string, wagerCents, payoutCents int64) *models.CardResult {
	return &models.CardResult{
		UserID:      userID,
		GameID:      "lucky-7s",
		InstanceID:  instanceID,
		SessionID:   "session-1",
		WagerCents:  wagerCents,
		PayoutCents: payoutCents,
		WinLevel:    "ZERO",
		Outcome:     "completed",
		PlayedAt:    time.Now(),
	}
}

// AssertCardResult 断言卡片结果相等
func AssertCardResult(t *testing.T, expected, actual *models.CardResult) {
	assert.Equal(t, expected.UserID, actual.UserID)
	assert.Equal(t, expected.GameID, actual.GameID)
	assert.Equal(t, expected.InstanceID, actual.InstanceID)
	assert.Equal(t, expected.WagerCents, actual.WagerCents)
	assert.Equal(t, expected.PayoutCents, actual.PayoutCents)
	assert.Equal(t, expected.WinLevel, actual.WinLevel)
	assert.Equal(t, expected.Outcome, actual.Outcome)
}
