package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel 基础模型
type BaseModel struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CardResult 已结束卡片的结果记录
type CardResult struct {
	BaseModel
	UserID      string    `gorm:"size:64;not null;index:idx_card_user_game" json:"user_id"`
	GameID      string    `gorm:"size:64;not null;index:idx_card_user_game" json:"game_id"`
	InstanceID  string    `gorm:"uniqueIndex;size:64;not null" json:"instance_id"`
	SessionID   string    `gorm:"size:64" json:"session_id"`
	WagerCents  int64     `gorm:"not null" json:"wager_cents"`
	PayoutCents int64     `gorm:"default:0" json:"payout_cents"`
	WinLevel    string    `gorm:"size:10" json:"win_level"` // ZERO, NORMAL, BIG, SUPER, MEGA
	Outcome     string    `gorm:"size:20" json:"outcome"`   // completed, held-proceed
	PlayedAt    time.Time `gorm:"index" json:"played_at"`
}

// TableName 指定表名
func (CardResult) TableName() string {
	return "card_results"
}

// IsWin 是否有派彩
func (r *CardResult) IsWin() bool {
	return r.PayoutCents > 0
}
