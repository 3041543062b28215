package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/wfunc/instant-win/internal/models"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PlayerStateData 玩家会话状态（用于持久化）
type PlayerStateData struct {
	UserID        string    `json:"user_id"`
	GameID        string    `json:"game_id"`
	CurrentState  GameState `json:"current_state"`
	InstanceID    string    `json:"instance_id,omitempty"`
	StakeIndex    int       `json:"stake_index"`
	SessionIndex  int       `json:"session_index"`
	PurchaseCount int       `json:"purchase_count"`
	AutoPlay      bool      `json:"auto_play"`
	LastUpdate    time.Time `json:"last_update"`
}

// StatePersister 状态持久化接口
type StatePersister interface {
	Save(ctx context.Context, key string, state *PlayerStateData) error
	Load(ctx context.Context, key string) (*PlayerStateData, error)
	Delete(ctx context.Context, key string) error
}

// StateKey 持久化键
func StateKey(userID, gameID string) string {
	return userID + ":" + gameID
}

// MemoryStatePersister 内存状态持久化（用于测试及缓存层）
type MemoryStatePersister struct {
	mu     sync.RWMutex
	states map[string]*PlayerStateData
}

// NewMemoryStatePersister 创建内存持久化器
func NewMemoryStatePersister() *MemoryStatePersister {
	return &MemoryStatePersister{
		states: make(map[string]*PlayerStateData),
	}
}

// Save 保存状态
func (p *MemoryStatePersister) Save(ctx context.Context, key string, state *PlayerStateData) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stateCopy := *state
	p.states[key] = &stateCopy
	return nil
}

// Load 加载状态
func (p *MemoryStatePersister) Load(ctx context.Context, key string) (*PlayerStateData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, exists := p.states[key]
	if !exists {
		return nil, fmt.Errorf("状态不存在: %s", key)
	}

	stateCopy := *state
	return &stateCopy, nil
}

// Delete 删除状态
func (p *MemoryStatePersister) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, key)
	return nil
}

// DatabaseStatePersister 数据库状态持久化
type DatabaseStatePersister struct {
	db *gorm.DB
}

// NewDatabaseStatePersister 创建数据库持久化器
func NewDatabaseStatePersister(db *gorm.DB) *DatabaseStatePersister {
	return &DatabaseStatePersister{db: db}
}

// Save 保存状态到数据库（按玩家+游戏 upsert）
func (p *DatabaseStatePersister) Save(ctx context.Context, key string, state *PlayerStateData) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}

	record := models.PlayerState{
		UserID: state.UserID,
		GameID: state.GameID,
	}
	result := p.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", state.UserID, state.GameID).
		Assign(map[string]interface{}{
			"current_state":  string(state.CurrentState),
			"instance_id":    state.InstanceID,
			"stake_index":    state.StakeIndex,
			"session_index":  state.SessionIndex,
			"purchase_count": state.PurchaseCount,
			"auto_play":      state.AutoPlay,
			"state_data":     string(stateJSON),
		}).
		FirstOrCreate(&record)
	if result.Error != nil {
		return fmt.Errorf("保存状态失败: %w", result.Error)
	}
	return nil
}

// Load 从数据库加载状态
func (p *DatabaseStatePersister) Load(ctx context.Context, key string) (*PlayerStateData, error) {
	userID, gameID, err := splitStateKey(key)
	if err != nil {
		return nil, err
	}

	var record models.PlayerState
	result := p.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", userID, gameID).
		First(&record)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("玩家状态不存在: %s", key)
		}
		return nil, fmt.Errorf("查询状态失败: %w", result.Error)
	}

	var state PlayerStateData
	if err := json.Unmarshal([]byte(record.StateData), &state); err != nil {
		return nil, fmt.Errorf("反序列化状态失败: %w", err)
	}
	return &state, nil
}

// Delete 从数据库删除状态
func (p *DatabaseStatePersister) Delete(ctx context.Context, key string) error {
	userID, gameID, err := splitStateKey(key)
	if err != nil {
		return err
	}

	result := p.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", userID, gameID).
		Delete(&models.PlayerState{})
	if result.Error != nil {
		return fmt.Errorf("删除状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("状态不存在: %s", key)
	}
	return nil
}

func splitStateKey(key string) (string, string, error) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("无效的状态键: %s", key)
}

// CacheStatePersister 带缓存的持久化器（装饰器模式）
type CacheStatePersister struct {
	cache   StatePersister // 缓存层
	storage StatePersister // 存储层
}

// NewCacheStatePersister 创建带缓存的持久化器
func NewCacheStatePersister(cache, storage StatePersister) *CacheStatePersister {
	return &CacheStatePersister{cache: cache, storage: storage}
}

// Save 先写存储层，再写缓存层
func (p *CacheStatePersister) Save(ctx context.Context, key string, state *PlayerStateData) error {
	if err := p.storage.Save(ctx, key, state); err != nil {
		return err
	}
	_ = p.cache.Save(ctx, key, state)
	return nil
}

// Load 优先从缓存加载
func (p *CacheStatePersister) Load(ctx context.Context, key string) (*PlayerStateData, error) {
	if state, err := p.cache.Load(ctx, key); err == nil {
		return state, nil
	}

	state, err := p.storage.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Save(ctx, key, state)
	return state, nil
}

// Delete 同时删除缓存和存储
func (p *CacheStatePersister) Delete(ctx context.Context, key string) error {
	_ = p.cache.Delete(ctx, key)
	return p.storage.Delete(ctx, key)
}
