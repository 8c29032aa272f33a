package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

// fillLookup is the market view of one order together with the row state it
// was read against.
type fillLookup struct {
	status   model.OrderStatus
	executed decimal.Decimal
	info     *connectors.OrderInfo
}

func (l fillLookup) current(o *model.Order) bool {
	return o.Status == l.status && o.ExecutedQuantity.Equal(l.executed)
}

// PollFills reads every order the market knows about and records status and
// executed quantity changes. Orders the market cannot find after the retry
// bound become NOT_EXISTS, and UNKNOWN when that happens again.
//
// The market is read before the signal is locked, so the not-found retries
// never hold the lock. A lookup is applied only when the order row did not
// change in between; otherwise the next poll picks the order up again.
func (e *Engine) PollFills(ctx context.Context, signalID uint) error {
	lookups, err := e.lookupFills(ctx, signalID)
	if err != nil {
		return fmt.Errorf("PollFills: signal %d: %w", signalID, err)
	}
	if len(lookups) == 0 {
		return nil
	}

	return e.run(ctx, "PollFills", signalID, false, func(uow *unitOfWork) error {
		if !statusIn(uow.signal.Status, PollStatuses) {
			return nil
		}

		orders, err := uow.lockOrders(repository.OrderFilter{Statuses: model.PollableOrderStatuses})
		if err != nil {
			return err
		}

		changed, stale := 0, 0
		for i := range orders {
			o := &orders[i]
			l, ok := lookups[o.ID]
			if !ok || !l.current(o) {
				stale++
				continue
			}

			status, executed := missingStatus(o), o.ExecutedQuantity
			if l.info != nil {
				status, executed = l.info.Status, l.info.ExecutedQuantity
			} else {
				uow.log.WithFields(map[string]interface{}{
					"client_order_id": o.ClientOrderID,
					"status":          status,
				}).Warn("Order not found on the market")
			}

			updated, err := uow.orders.UpdateStateWithHistory(uow.ctx, o, status, executed)
			if err != nil {
				return err
			}
			if updated {
				changed++
			}
		}

		if stale > 0 {
			uow.log.WithField("stale", stale).Debug("Orders changed since lookup, left for the next poll")
		}
		if changed > 0 {
			uow.log.WithField("changed", changed).Info("Order fills updated")
		}
		return nil
	})
}

// lookupFills reads the pollable orders of a signal from the market without
// holding any lock.
func (e *Engine) lookupFills(ctx context.Context, signalID uint) (map[uint]fillLookup, error) {
	signal, err := repository.NewSignalRepositoryWithDB(e.db).FindByID(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, ErrSignalNotFound
	}
	if !statusIn(signal.Status, PollStatuses) {
		return nil, nil
	}

	orders, err := repository.NewOrderRepositoryWithDB(e.db).ForSignal(ctx, signalID, repository.OrderFilter{
		Statuses: model.PollableOrderStatuses,
	})
	if err != nil {
		return nil, err
	}

	lookups := make(map[uint]fillLookup, len(orders))
	for i := range orders {
		o := &orders[i]
		info, err := e.orderInfo(ctx, o)
		if err != nil && !errors.Is(err, connectors.ErrOrderNotFound) {
			return nil, fmt.Errorf("order info %s: %w", o.ClientOrderID, err)
		}
		lookups[o.ID] = fillLookup{status: o.Status, executed: o.ExecutedQuantity, info: info}
	}
	return lookups, nil
}

// missingStatus is what an order the market cannot find becomes: NOT_EXISTS
// the first time, UNKNOWN after that.
func missingStatus(o *model.Order) model.OrderStatus {
	if o.Status == model.OrderStatusNotExists || o.Status == model.OrderStatusUnknown {
		return model.OrderStatusUnknown
	}
	return model.OrderStatusNotExists
}

// orderInfo retries a lookup while the market answers "not found", which
// happens right after submission until the order replicates. It must not be
// called while a signal lock is held.
func (e *Engine) orderInfo(ctx context.Context, o *model.Order) (*connectors.OrderInfo, error) {
	attempts := e.settings.NotFoundAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var info *connectors.OrderInfo
		info, err = e.market.OrderInfo(ctx, o)
		if !errors.Is(err, connectors.ErrOrderNotFound) {
			return info, err
		}
		if attempt < attempts {
			if sleepErr := e.sleep(ctx, e.settings.NotFoundDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, err
}
