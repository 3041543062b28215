package repository

import (
	"context"
	"time"

	"github.com/wfunc/instant-win/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CardResultRepository 卡片结果仓储接口
type CardResultRepository interface {
	BaseRepository
	Create(ctx context.Context, result *models.CardResult) error
	BatchCreate(ctx context.Context, results []*models.CardResult) error
	FindByInstanceID(ctx context.Context, instanceID string) (*models.CardResult, error)
	FindByUser(ctx context.Context, userID, gameID string, p *Pagination) ([]*models.CardResult, error)
	FindWinsByUser(ctx context.Context, userID string, p *Pagination) ([]*models.CardResult, error)
	GetWinStatistics(ctx context.Context, userID string, startTime, endTime time.Time) (*WinStatistics, error)
	GetBigWins(ctx context.Context, minPayout int64, limit int) ([]*models.CardResult, error)
}

// WinStatistics 中奖统计
type WinStatistics struct {
	TotalCards      int64   `json:"total_cards"`
	WinCards        int64   `json:"win_cards"`
	WinRate         float64 `json:"win_rate"`
	TotalWagerCents int64   `json:"total_wager_cents"`
	TotalPayout     int64   `json:"total_payout"`
	MaxPayout       int64   `json:"max_payout"`
	AveragePayout   float64 `json:"average_payout"`
	RTP             float64 `json:"rtp"`             // 返还率（百分比）
	BigWinCount     int64   `json:"big_win_count"`   // BIG 档
	SuperWinCount   int64   `json:"super_win_count"` // SUPER 档
	MegaWinCount    int64   `json:"mega_win_count"`  // MEGA 档
}

// cardResultRepo 卡片结果仓储实现
type cardResultRepo struct {
	*BaseRepo
}

// NewCardResultRepository 创建卡片结果仓储
func NewCardResultRepository(db *gorm.DB) CardResultRepository {
	return &cardResultRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 记录卡片结果，同一张卡片重复记录时更新派彩与结果
func (r *cardResultRepo) Create(ctx context.Context, result *models.CardResult) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payout_cents", "win_level", "outcome", "played_at", "updated_at"}),
		}).
		Create(result).Error
}

// BatchCreate 批量记录
func (r *cardResultRepo) BatchCreate(ctx context.Context, results []*models.CardResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(results, 100).Error
}

// FindByInstanceID 根据卡片ID查找
func (r *cardResultRepo) FindByInstanceID(ctx context.Context, instanceID string) (*models.CardResult, error) {
	var result models.CardResult
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindByUser 查询玩家在某游戏的记录，gameID 为空时查询全部游戏
func (r *cardResultRepo) FindByUser(ctx context.Context, userID, gameID string, p *Pagination) ([]*models.CardResult, error) {
	var results []*models.CardResult

	byUser := func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", userID)
		if gameID != "" {
			db = db.Where("game_id = ?", gameID)
		}
		return db
	}

	// 查询总数
	r.db.WithContext(ctx).
		Model(&models.CardResult{}).
		Scopes(byUser).
		Count(&p.Total)

	// 查询数据
	err := r.db.WithContext(ctx).
		Scopes(byUser).
		Order("played_at desc").
		Scopes(Paginate(p)).
		Find(&results).Error

	return results, err
}

// FindWinsByUser 查找玩家的中奖记录
func (r *cardResultRepo) FindWinsByUser(ctx context.Context, userID string, p *Pagination) ([]*models.CardResult, error) {
	var results []*models.CardResult

	r.db.WithContext(ctx).
		Model(&models.CardResult{}).
		Where("user_id = ?", userID).
		Scopes(Winning).
		Count(&p.Total)

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(Winning).
		Order("payout_cents desc, played_at desc").
		Scopes(Paginate(p)).
		Find(&results).Error

	return results, err
}

// GetWinStatistics 获取中奖统计
func (r *cardResultRepo) GetWinStatistics(ctx context.Context, userID string, startTime, endTime time.Time) (*WinStatistics, error) {
	var stats WinStatistics

	err := r.db.WithContext(ctx).
		Model(&models.CardResult{}).
		Where("user_id = ?", userID).
		Scopes(PlayedBetween(startTime, endTime)).
		Select(
			"COUNT(*) as total_cards",
			"COUNT(CASE WHEN payout_cents > 0 THEN 1 END) as win_cards",
			"COALESCE(SUM(wager_cents), 0) as total_wager_cents",
			"COALESCE(SUM(payout_cents), 0) as total_payout",
			"COALESCE(MAX(payout_cents), 0) as max_payout",
			"COUNT(CASE WHEN win_level = 'BIG' THEN 1 END) as big_win_count",
			"COUNT(CASE WHEN win_level = 'SUPER' THEN 1 END) as super_win_count",
			"COUNT(CASE WHEN win_level = 'MEGA' THEN 1 END) as mega_win_count",
		).
		Row().Scan(
		&stats.TotalCards,
		&stats.WinCards,
		&stats.TotalWagerCents,
		&stats.TotalPayout,
		&stats.MaxPayout,
		&stats.BigWinCount,
		&stats.SuperWinCount,
		&stats.MegaWinCount,
	)
	if err != nil {
		return nil, err
	}

	// 计算胜率、平均派彩与返还率
	if stats.TotalCards > 0 {
		stats.WinRate = float64(stats.WinCards) / float64(stats.TotalCards) * 100
	}
	if stats.WinCards > 0 {
		stats.AveragePayout = float64(stats.TotalPayout) / float64(stats.WinCards)
	}
	if stats.TotalWagerCents > 0 {
		stats.RTP = float64(stats.TotalPayout) / float64(stats.TotalWagerCents) * 100
	}

	return &stats, nil
}

// GetBigWins 获取大额派彩记录
func (r *cardResultRepo) GetBigWins(ctx context.Context, minPayout int64, limit int) ([]*models.CardResult, error) {
	var results []*models.CardResult

	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	err := r.db.WithContext(ctx).
		Where("payout_cents >= ?", minPayout).
		Order("payout_cents desc, played_at desc").
		Limit(limit).
		Find(&results).Error

	return results, err
}
