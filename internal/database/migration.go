package database

import (
	"fmt"
	"os"
	"time"

	"github.com/wfunc/instant-win/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
//
// sqlitePath 非空时，迁移期间持有文件锁，避免多个模拟器进程同时迁移同一个库。
func AutoMigrate(db *gorm.DB, sqlitePath string, log *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	if sqlitePath != "" {
		lockFile, err := acquireMigrationLock(sqlitePath, log)
		if err != nil {
			return err
		}
		defer releaseMigrationLock(lockFile, log)
	}

	if err := db.AutoMigrate(&models.PlayerState{}, &models.CardResult{}); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}

	log.Info("数据库迁移完成")
	return nil
}

// acquireMigrationLock 获取迁移锁
func acquireMigrationLock(dbPath string, log *zap.Logger) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < 30; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			log.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 锁文件超过5分钟视为过期
		if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > 5*time.Minute {
			log.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		log.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File, log *zap.Logger) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	log.Debug("释放迁移锁", zap.String("lock", lockPath))
}
