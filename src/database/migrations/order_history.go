package migrations

import (
	"gorm.io/gorm"

	"signalexecutor/src/model"
)

// backfillOrderHistory gives every order already known to the exchange a first
// history row, so the "nothing changed" check has a baseline.
func backfillOrderHistory(db *gorm.DB) error {
	return db.Exec(`
		INSERT INTO order_history (order_id, status, executed_quantity, created_at)
		SELECT o.id, o.status, o.executed_quantity, o.updated_at
		FROM orders o
		WHERE o.status <> ?
		AND NOT EXISTS (SELECT 1 FROM order_history h WHERE h.order_id = o.id)`,
		model.OrderStatusNotSent,
	).Error
}

// createOpenOrdersIndex adds a partial index for the per-signal open order
// lookups done by every worker. Only postgres supports it as written.
func createOpenOrdersIndex(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_open_by_signal ON orders (signal_id, side)
		WHERE status IN ('NOT_SENT', 'SENT', 'PARTIAL', 'NOT_EXISTS', 'UNKNOWN')`).Error
}
