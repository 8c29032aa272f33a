package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
	"signalexecutor/src/risk"
)

// FormOrders allocates capital to a NEW long signal and creates one buy order
// per entry point, highest entry first. Nothing is created when any entry
// fails the pair minimums.
func (e *Engine) FormOrders(ctx context.Context, signalID uint) error {
	return e.run(ctx, "FormOrders", signalID, true, func(uow *unitOfWork) error {
		signal := uow.signal
		if !statusIn(signal.Status, FormStatuses) {
			return nil
		}
		if signal.Position != model.PositionLong {
			uow.log.WithField("position", signal.Position).Debug("Only long signals are formed")
			return nil
		}

		free, err := e.market.FreeBalance(uow.ctx, e.settings.MainCoin)
		if err != nil {
			return fmt.Errorf("free balance: %w", err)
		}
		capital := risk.CapitalPerSignal(free, e.settings.BalancePercent)

		entries := signal.EntryValues()
		buys := make([]*model.Order, 0, len(entries))
		for i := range entries {
			// index 0 is the highest entry
			entry := entries[len(entries)-1-i]

			price, err := risk.QuantizePrice(entry, uow.pair)
			if err != nil {
				return &InsufficientCapitalError{SignalID: signal.ID, Err: err}
			}
			qty := risk.PerEntryQuantity(capital, len(entries), price, uow.pair.StepQuantity)
			if err := risk.CheckSufficiency(qty, price, e.fee(), uow.pair); err != nil {
				return &InsufficientCapitalError{SignalID: signal.ID, Err: err}
			}

			buy := &model.Order{
				SignalID:         signal.ID,
				Side:             model.OrderSideBuy,
				Kind:             model.OrderKindEntry,
				Symbol:           signal.Symbol,
				Quantity:         qty,
				Price:            price,
				StopLoss:         signal.StopLoss,
				ExecutedQuantity: decimal.Zero,
				Status:           model.OrderStatusNotSent,
				Index:            i,
			}
			buy.ClientOrderID = model.ClientID(buy.SignalID, buy.Side, buy.Kind, buy.Index, buy.Suffix)
			buys = append(buys, buy)
		}

		for _, buy := range buys {
			if err := uow.orders.Create(uow.ctx, buy); err != nil {
				return err
			}
		}

		uow.log.WithFields(map[string]interface{}{
			"capital": capital.String(),
			"orders":  len(buys),
		}).Info("Buy orders formed")

		return e.transition(uow, model.SignalStatusFormed, "orders formed")
	})
}

// IsInsufficientCapital reports whether err left a signal NEW for lack of
// capital.
func IsInsufficientCapital(err error) bool {
	var target *InsufficientCapitalError
	return errors.As(err, &target)
}
