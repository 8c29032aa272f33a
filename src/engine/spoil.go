package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
	"signalexecutor/src/risk"
)

// TrySpoil abandons a signal whose price reached the first target before any
// entry filled, or any live signal when forced by an operator. Every open
// order is marked for cancellation and a market sell is queued for what is
// still held. Forcing outside the allowed statuses is an ErrInvalidTransition.
// On a CANCELING signal it sells fills that surfaced while its orders were
// being canceled.
func (e *Engine) TrySpoil(ctx context.Context, signalID uint, force bool) error {
	return e.run(ctx, "TrySpoil", signalID, true, func(uow *unitOfWork) error {
		signal := uow.signal

		allowed := SpoilStatuses
		if force {
			allowed = ForcedSpoilStatuses
		}
		if !statusIn(signal.Status, allowed) {
			if force {
				return &TransitionError{SignalID: signal.ID, From: signal.Status, To: model.SignalStatusCanceling}
			}
			return nil
		}
		if signal.Status == model.SignalStatusCanceling {
			return e.sellLateFills(uow)
		}

		var price decimal.Decimal
		if !force {
			var err error
			price, err = e.market.CurrentPrice(uow.ctx, signal.Symbol)
			if err != nil {
				return fmt.Errorf("current price: %w", err)
			}
			if price.LessThan(signal.MinTakeProfit()) {
				return nil
			}
		}

		orders, err := uow.lockOrders(repository.OrderFilter{})
		if err != nil {
			return err
		}

		now := e.now()
		canceled := 0
		for i := range orders {
			o := &orders[i]
			if !o.IsOpen() || o.LocalCanceled {
				continue
			}
			o.MarkLocalCanceled(now)
			if err := uow.orders.Save(uow.ctx, o); err != nil {
				return err
			}
			canceled++
		}

		residual := e.heldQuantity(uow, orders)
		if residual.IsPositive() {
			if price.IsZero() {
				price, err = e.market.CurrentPrice(uow.ctx, signal.Symbol)
				if err != nil {
					return fmt.Errorf("current price: %w", err)
				}
			}
			if err := e.queueMarketSell(uow, orders, residual, price); err != nil {
				return err
			}
		}

		if force {
			signal.AllTargets = false
		}

		uow.log.WithFields(map[string]interface{}{
			"force":    force,
			"canceled": canceled,
			"residual": residual.String(),
		}).Info("Signal spoiled")

		reason := "price reached target before entry"
		if force {
			reason = "forced by operator"
		}
		return e.transition(uow, model.SignalStatusCanceling, reason)
	})
}

// sellLateFills handles fills recorded after the signal started canceling,
// typically an entry that filled before its cancel reached the market. Once
// no order is open, whatever is still held is sold at market.
func (e *Engine) sellLateFills(uow *unitOfWork) error {
	orders, err := uow.lockOrders(repository.OrderFilter{})
	if err != nil {
		return err
	}

	var late []*model.Order
	for i := range orders {
		o := &orders[i]
		if o.IsOpen() {
			return nil
		}
		if o.Kind != model.OrderKindMarket && o.IsWorked() && !o.HandledWorked {
			late = append(late, o)
		}
	}
	if len(late) == 0 {
		return nil
	}

	residual := e.heldQuantity(uow, orders)
	if residual.IsPositive() {
		price, err := e.market.CurrentPrice(uow.ctx, uow.signal.Symbol)
		if err != nil {
			return fmt.Errorf("current price: %w", err)
		}
		if err := e.queueMarketSell(uow, orders, residual, price); err != nil {
			return err
		}
	}

	uow.log.WithFields(map[string]interface{}{
		"orders":   len(late),
		"residual": residual.String(),
	}).Warn("Fills found while canceling")
	return e.markHandled(uow, late)
}

func (e *Engine) queueMarketSell(uow *unitOfWork, orders []model.Order, qty, price decimal.Decimal) error {
	if err := risk.CheckSufficiency(qty, price, e.fee(), uow.pair); err != nil {
		uow.log.WithError(err).Warn("Residual quantity below pair minimums, no market sell")
		return nil
	}

	quantized := risk.RoundStep(price, uow.pair.StepPrice)
	o := &model.Order{
		SignalID:         uow.signal.ID,
		Side:             model.OrderSideSell,
		Kind:             model.OrderKindMarket,
		Symbol:           uow.signal.Symbol,
		Quantity:         qty,
		Price:            quantized,
		ExecutedQuantity: decimal.Zero,
		Status:           model.OrderStatusNotSent,
		Suffix:           nextSuffix(orders, model.OrderKindMarket, 0),
	}
	o.ClientOrderID = model.ClientID(o.SignalID, o.Side, o.Kind, o.Index, o.Suffix)
	return uow.orders.Create(uow.ctx, o)
}

// TryClose closes a signal once no order is open and every fill was handled.
// Income and amount are settled in the same step and never recomputed.
func (e *Engine) TryClose(ctx context.Context, signalID uint) error {
	return e.close(ctx, "TryClose", signalID, false)
}

// ForceClose is TryClose for operators: it reports why a signal cannot be
// closed instead of skipping it.
func (e *Engine) ForceClose(ctx context.Context, signalID uint) error {
	return e.close(ctx, "ForceClose", signalID, true)
}

func (e *Engine) close(ctx context.Context, op string, signalID uint, strict bool) error {
	return e.run(ctx, op, signalID, false, func(uow *unitOfWork) error {
		signal := uow.signal
		if !statusIn(signal.Status, CloseStatuses) {
			if strict {
				return &TransitionError{SignalID: signal.ID, From: signal.Status, To: model.SignalStatusClosed}
			}
			return nil
		}

		orders, err := uow.lockOrders(repository.OrderFilter{})
		if err != nil {
			return err
		}

		for i := range orders {
			o := &orders[i]
			pending := o.IsOpen() ||
				(o.Kind != model.OrderKindMarket && o.IsWorked() && !o.HandledWorked)
			if !pending {
				continue
			}
			if strict {
				return fmt.Errorf("order %s is %s: %w", o.ClientOrderID, o.Status, ErrOrdersOpen)
			}
			return nil
		}

		signal.Amount, signal.Income = e.settle(orders)
		return e.transition(uow, model.SignalStatusClosed, "no open orders")
	})
}

// settle computes what was spent and earned. The fee is taken from the
// bought quantity and from the sell proceeds.
func (e *Engine) settle(orders []model.Order) (amount, income decimal.Decimal) {
	amount, proceeds := decimal.Zero, decimal.Zero
	for i := range orders {
		o := &orders[i]
		if !o.IsWorked() {
			continue
		}
		switch o.Side {
		case model.OrderSideBuy:
			amount = amount.Add(o.Price.Mul(risk.FeeAdjusted(o.ExecutedQuantity, e.fee())))
		case model.OrderSideSell:
			proceeds = proceeds.Add(o.Price.Mul(o.ExecutedQuantity))
		}
	}
	return amount, risk.FeeAdjusted(proceeds, e.fee()).Sub(amount)
}
