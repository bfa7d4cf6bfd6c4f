package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketfeed/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage persists candles in SQLite (pure Go driver). Implements
// domain.CandleStore: the (symbol, timeframe, period_start) composite
// key carries upsert semantics.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the candle database at path.
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Candle{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// FetchRecentCandles returns up to limit candles for the symbol and
// timeframe, ordered ascending by period start.
func (s *Storage) FetchRecentCandles(ctx context.Context, symbol string, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("period_start DESC").
		Limit(limit).
		Find(&candles).Error
	if err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want ascending.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// UpsertCandle inserts or overwrites the candle for its period.
func (s *Storage) UpsertCandle(ctx context.Context, candle *domain.Candle) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "timeframe"}, {Name: "period_start"},
			},
			UpdateAll: true,
		}).
		Create(candle).Error
}

// CountCandles returns the stored candle count for a symbol/timeframe.
func (s *Storage) CountCandles(ctx context.Context, symbol string, timeframe domain.Timeframe) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Candle{}).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Count(&count).Error
	return count, err
}

// PruneOlderThan deletes candles with a period start before the cutoff.
// Returns the number of rows removed.
func (s *Storage) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("period_start < ?", cutoff).
		Delete(&domain.Candle{})
	return res.RowsAffected, res.Error
}
