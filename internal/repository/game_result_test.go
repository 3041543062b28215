package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/models"
	"gorm.io/gorm"
)

func TestCardResultRepository_Create(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	result := CreateTestCardResult("user-1", "inst-1", 500, 1500)
	err := repo.Create(ctx, result)
	require.NoError(t, err)
	assert.NotZero(t, result.ID)

	found, err := repo.FindByInstanceID(ctx, "inst-1")
	require.NoError(t, err)
	AssertCardResult(t, result, found)
}

func TestCardResultRepository_CreateUpsert(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, CreateTestCardResult("user-1", "inst-1", 500, 0)))

	// 同一张卡片再次记录时更新派彩
	again := CreateTestCardResult("user-1", "inst-1", 500, 2500)
	again.WinLevel = "BIG"
	require.NoError(t, repo.Create(ctx, again))

	found, err := repo.FindByInstanceID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), found.PayoutCents)
	assert.Equal(t, "BIG", found.WinLevel)

	var count int64
	db.Model(&models.CardResult{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCardResultRepository_BatchCreate(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	results := make([]*models.CardResult, 5)
	for i := range results {
		results[i] = CreateTestCardResult("user-1", fmt.Sprintf("inst-%d", i), 100, int64(i*100))
	}
	require.NoError(t, repo.BatchCreate(ctx, results))
	require.NoError(t, repo.BatchCreate(ctx, nil))

	for _, result := range results {
		found, err := repo.FindByInstanceID(ctx, result.InstanceID)
		require.NoError(t, err)
		assert.NotNil(t, found)
	}
}

func TestCardResultRepository_FindByUser(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := CreateTestCardResult("user-1", fmt.Sprintf("a-%d", i), 100, 0)
		require.NoError(t, repo.Create(ctx, result))
	}
	other := CreateTestCardResult("user-1", "b-0", 100, 0)
	other.GameID = "other-game"
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, repo.Create(ctx, CreateTestCardResult("user-2", "c-0", 100, 0)))

	p := NewPagination(1, 10)
	results, err := repo.FindByUser(ctx, "user-1", "lucky-7s", p)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int64(5), p.Total)

	p = NewPagination(1, 10)
	results, err = repo.FindByUser(ctx, "user-1", "", p)
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestCardResultRepository_FindWinsByUser(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	payouts := []int64{0, 300, 0, 900, 100}
	for i, payout := range payouts {
		require.NoError(t, repo.Create(ctx, CreateTestCardResult("user-1", fmt.Sprintf("inst-%d", i), 100, payout)))
	}

	p := NewPagination(1, 10)
	wins, err := repo.FindWinsByUser(ctx, "user-1", p)
	require.NoError(t, err)
	require.Len(t, wins, 3)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, int64(900), wins[0].PayoutCents)
	for _, w := range wins {
		assert.True(t, w.IsWin())
	}
}

func TestCardResultRepository_GetWinStatistics(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	levels := []struct {
		payout int64
		level  string
	}{
		{0, "ZERO"},
		{500, "NORMAL"},
		{2500, "BIG"},
		{17500, "SUPER"},
	}
	for i, l := range levels {
		result := CreateTestCardResult("user-1", fmt.Sprintf("inst-%d", i), 500, l.payout)
		result.WinLevel = l.level
		require.NoError(t, repo.Create(ctx, result))
	}

	stats, err := repo.GetWinStatistics(ctx, "user-1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalCards)
	assert.Equal(t, int64(3), stats.WinCards)
	assert.Equal(t, int64(2000), stats.TotalWagerCents)
	assert.Equal(t, int64(20500), stats.TotalPayout)
	assert.Equal(t, int64(17500), stats.MaxPayout)
	assert.Equal(t, int64(1), stats.BigWinCount)
	assert.Equal(t, int64(1), stats.SuperWinCount)
	assert.Equal(t, int64(0), stats.MegaWinCount)
	assert.InDelta(t, 75.0, stats.WinRate, 0.001)
	assert.InDelta(t, 1025.0, stats.RTP, 0.001)
}

func TestCardResultRepository_GetBigWins(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	for i, payout := range []int64{100, 5000, 20000, 800} {
		require.NoError(t, repo.Create(ctx, CreateTestCardResult("user-1", fmt.Sprintf("inst-%d", i), 100, payout)))
	}

	wins, err := repo.GetBigWins(ctx, 1000, 0)
	require.NoError(t, err)
	require.Len(t, wins, 2)
	assert.Equal(t, int64(20000), wins[0].PayoutCents)
	assert.Equal(t, int64(5000), wins[1].PayoutCents)
}

func TestCardResultRepository_Pagination(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		result := CreateTestCardResult("user-1", fmt.Sprintf("inst-%02d", i), 100, 0)
		result.PlayedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, result))
	}

	p := NewPagination(3, 10)
	results, err := repo.FindByUser(ctx, "user-1", "", p)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int64(25), p.Total)
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 3, p.Pages())
	assert.False(t, p.HasNext())

	first := NewPagination(1, 10)
	_, err = repo.FindByUser(ctx, "user-1", "", first)
	require.NoError(t, err)
	assert.True(t, first.HasNext())

	// 不限时间范围
	stats, err := repo.GetWinStatistics(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), stats.TotalCards)

	// 越界参数被修正
	p = NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
}

func TestCardResultRepository_Transaction(t *testing.T) {
	db := TestDB(t)
	repo := NewCardResultRepository(db)
	ctx := context.Background()
	base := NewBaseRepo(db)

	err := base.Transaction(ctx, func(tx *gorm.DB) error {
		txRepo := NewCardResultRepository(tx)
		if err := txRepo.Create(ctx, CreateTestCardResult("user-1", "tx-1", 100, 0)); err != nil {
			return err
		}
		return fmt.Errorf("rollback")
	})
	require.Error(t, err)

	_, err = repo.FindByInstanceID(ctx, "tx-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Same(t, db, repo.GetDB())
}
