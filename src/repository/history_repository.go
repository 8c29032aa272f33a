package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// HistoryRepository appends and reads the order and signal audit trail.
// It never updates or deletes rows.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{db: database.MainDB}
}

func NewHistoryRepositoryWithDB(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) AppendOrder(ctx context.Context, h *model.OrderHistory) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "HistoryRepository",
			"op":       "AppendOrder",
			"order_id": h.OrderID,
		}).WithError(err).Error("Failed to append order history")
		return err
	}
	return nil
}

func (r *HistoryRepository) AppendSignal(ctx context.Context, h *model.SignalHistory) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "HistoryRepository",
			"op":        "AppendSignal",
			"signal_id": h.SignalID,
		}).WithError(err).Error("Failed to append signal history")
		return err
	}
	return nil
}

// LastForOrder returns the newest history row of an order, or (nil, nil).
func (r *HistoryRepository) LastForOrder(ctx context.Context, orderID uint) (*model.OrderHistory, error) {
	var h model.OrderHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		First(&h).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

// ListForOrder returns the history of an order, oldest first.
func (r *HistoryRepository) ListForOrder(ctx context.Context, orderID uint) ([]model.OrderHistory, error) {
	var rows []model.OrderHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListForSignal returns the status transitions of a signal, oldest first.
func (r *HistoryRepository) ListForSignal(ctx context.Context, signalID uint) ([]model.SignalHistory, error) {
	var rows []model.SignalHistory
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
