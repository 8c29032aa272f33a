package repository

import (
	"context"
	"errors"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// PairRepository stores exchange trading rules per (symbol, market).
type PairRepository struct {
	db *gorm.DB
}

func NewPairRepository() *PairRepository {
	return &PairRepository{db: database.MainDB}
}

func NewPairRepositoryWithDB(db *gorm.DB) *PairRepository {
	return &PairRepository{db: db}
}

// FindBySymbol returns (nil, nil) when the pair was never refreshed.
func (r *PairRepository) FindBySymbol(ctx context.Context, symbol, market string) (*model.Pair, error) {
	var pair model.Pair
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND market = ?", strings.ToUpper(symbol), market).
		First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "PairRepository",
			"op":     "FindBySymbol",
			"symbol": symbol,
			"market": market,
		}).WithError(err).Error("Failed to fetch pair")
		return nil, err
	}
	return &pair, nil
}

// ListByMarket returns every pair of a market.
func (r *PairRepository) ListByMarket(ctx context.Context, market string) ([]model.Pair, error) {
	var pairs []model.Pair
	err := r.db.WithContext(ctx).
		Where("market = ?", market).
		Order("symbol").
		Find(&pairs).Error
	return pairs, err
}

// Upsert inserts the pair or overwrites its rules on (symbol, market).
func (r *PairRepository) Upsert(ctx context.Context, pair *model.Pair) error {
	pair.Symbol = strings.ToUpper(pair.Symbol)

	logger.WithFields(map[string]interface{}{
		"repo":   "PairRepository",
		"op":     "Upsert",
		"symbol": pair.Symbol,
		"market": pair.Market,
	}).Debug("Upserting pair rules")

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "market"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_asset", "quote_asset", "min_price", "step_price",
			"step_quantity", "min_quantity", "min_amount", "updated_at",
		}),
	}).Create(pair).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PairRepository",
			"op":     "Upsert",
			"symbol": pair.Symbol,
		}).WithError(err).Error("Failed to upsert pair")
		return err
	}
	return nil
}
