package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// 分页限制
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// BaseRepository 可以暴露底层连接的仓储
type BaseRepository interface {
	GetDB() *gorm.DB
}

// Pagination 结果记录分页，Total 由查询回填
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页参数，页码从1开始，页大小限制在 MaxPageSize 以内
func NewPagination(page, pageSize int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize}
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// Offset 当前页之前的记录数
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pages 按 Total 计算的总页数
func (p *Pagination) Pages() int {
	if p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// HasNext 是否还有下一页
func (p *Pagination) HasNext() bool {
	return p.Page < p.Pages()
}

// Paginate 截取当前页
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// PlayedBetween 按开奖时间过滤，零值表示不限
func PlayedBetween(start, end time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !start.IsZero() {
			db = db.Where("played_at >= ?", start)
		}
		if !end.IsZero() {
			db = db.Where("played_at <= ?", end)
		}
		return db
	}
}

// Winning 只保留有派彩的记录
func Winning(db *gorm.DB) *gorm.DB {
	return db.Where("payout_cents > 0")
}

// BaseRepo 持有连接的仓储基类
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo 创建仓储基类
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB 底层连接
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Transaction 在事务中执行 fn，fn 返回错误时回滚
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
