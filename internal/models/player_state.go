package models

import (
	"time"
)

// PlayerState 玩家会话状态模型（用于持久化刮刮乐状态机与玩家偏好）
type PlayerState struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"uniqueIndex:idx_player_game;size:64;not null" json:"user_id"`
	GameID        string    `gorm:"uniqueIndex:idx_player_game;size:64;not null" json:"game_id"`
	CurrentState  string    `gorm:"size:20;not null" json:"current_state"`
	InstanceID    string    `gorm:"size:64" json:"instance_id"`
	StakeIndex    int       `json:"stake_index"`
	SessionIndex  int       `json:"session_index"`
	PurchaseCount int       `json:"purchase_count"`
	AutoPlay      bool      `json:"auto_play"`
	StateData     string    `gorm:"type:text" json:"state_data"` // JSON格式的完整快照
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName 指定表名
func (PlayerState) TableName() string {
	return "player_states"
}
