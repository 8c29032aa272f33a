package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// OrderFilter selects orders of one signal. Zero values do not filter.
type OrderFilter struct {
	Side          model.OrderSide
	Kinds         []model.OrderKind
	Statuses      []model.OrderStatus
	HandledWorked *bool
	LocalCanceled *bool
	// Lock takes FOR UPDATE row locks on the selected orders.
	Lock bool
}

func Bool(v bool) *bool { return &v }

// OrderRepository handles read/write operations for orders and their history.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		db: database.MainDB,
	}
}

func NewOrderRepositoryWithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "Create",
		"signal_id": order.SignalID,
		"client_id": order.ClientOrderID,
		"qty":       order.Quantity.String(),
	}).Debug("Creating new order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "Create",
			"client_id": order.ClientOrderID,
		}).WithError(err).Error("Failed to create order")
		return err
	}

	return nil
}

// Save writes every column of an existing order.
func (r *OrderRepository) Save(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Save(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Save",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to save order")
		return err
	}
	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")
		return nil, err
	}

	return &order, nil
}

// ForSignal returns the orders of a signal matching filter, ordered by side,
// index and id.
func (r *OrderRepository) ForSignal(ctx context.Context, signalID uint, filter OrderFilter) ([]model.Order, error) {
	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "ForSignal",
		"signal_id": signalID,
		"side":      filter.Side,
		"lock":      filter.Lock,
	}).Debug("Fetching signal orders")

	q := r.db.WithContext(ctx).Where("signal_id = ?", signalID)
	if filter.Lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if filter.Side != "" {
		q = q.Where("side = ?", filter.Side)
	}
	if len(filter.Kinds) > 0 {
		q = q.Where("kind IN ?", filter.Kinds)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.HandledWorked != nil {
		q = q.Where("handled_worked = ?", *filter.HandledWorked)
	}
	if filter.LocalCanceled != nil {
		q = q.Where("local_canceled = ?", *filter.LocalCanceled)
	}

	var orders []model.Order
	if err := q.Order(`side ASC, "index" ASC, id ASC`).Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "OrderRepository",
			"op":        "ForSignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch signal orders")
		return nil, err
	}

	return orders, nil
}

// CountOpen counts the non-terminal orders of a signal.
func (r *OrderRepository) CountOpen(ctx context.Context, signalID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("signal_id = ? AND status IN ?", signalID, model.OpenOrderStatuses).
		Count(&count).Error
	return count, err
}

// UpdateStateWithHistory stores the exchange view of an order (status,
// executed quantity and exchange id) and appends a history row when status or
// executed quantity changed since the last row. It reports whether anything
// was written.
func (r *OrderRepository) UpdateStateWithHistory(
	ctx context.Context,
	order *model.Order,
	status model.OrderStatus,
	executed decimal.Decimal,
) (bool, error) {
	var changed bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		history := NewHistoryRepositoryWithDB(tx)

		last, err := history.LastForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if last != nil && last.Same(status, executed) && order.Status == status {
			return nil
		}

		order.Status = status
		order.ExecutedQuantity = executed
		if err := tx.Model(&model.Order{ID: order.ID}).
			Select("status", "executed_quantity", "exchange_order_id", "updated_at").
			Updates(order).Error; err != nil {
			return err
		}

		if last == nil || !last.Same(status, executed) {
			if err := history.AppendOrder(ctx, &model.OrderHistory{
				OrderID:          order.ID,
				Status:           status,
				ExecutedQuantity: executed,
				CreatedAt:        time.Now(),
			}); err != nil {
				return err
			}
		}

		changed = true
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "UpdateStateWithHistory",
			"order_id": order.ID,
			"status":   status,
		}).WithError(err).Error("Failed to update order state")
		return false, err
	}

	return changed, nil
}
