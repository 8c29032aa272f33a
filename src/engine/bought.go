package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
	"signalexecutor/src/risk"
	"signalexecutor/src/tp_sl"
)

// HandleBoughtOrders reacts to buy fills not handled yet. Open take-profits
// are copied forward with the held quantity shared between them; without
// open take-profits the first ladder is formed, one take-profit per target
// each paired with a stop-loss leg.
func (e *Engine) HandleBoughtOrders(ctx context.Context, signalID uint) error {
	return e.run(ctx, "HandleBoughtOrders", signalID, true, func(uow *unitOfWork) error {
		if !statusIn(uow.signal.Status, BoughtStatuses) {
			return nil
		}

		orders, err := uow.lockOrders(repository.OrderFilter{})
		if err != nil {
			return err
		}

		var fresh []*model.Order
		for i := range orders {
			o := &orders[i]
			if o.Side == model.OrderSideBuy && o.IsWorked() && !o.HandledWorked {
				fresh = append(fresh, o)
			}
		}
		if len(fresh) == 0 {
			return nil
		}

		held := e.heldQuantity(uow, orders)
		stop, err := e.currentStop(uow, orders)
		if err != nil {
			return err
		}

		if open := openTakeProfits(orders); len(open) > 0 {
			err = e.resizeTakeProfits(uow, orders, open, held, stop)
		} else {
			var formed int
			formed, err = e.formLadder(uow, orders, held, stop)
			if err == nil && formed == 0 {
				uow.log.WithField("held", held.String()).Warn("Held quantity too small for a take-profit, waiting for more fills")
				return nil
			}
		}
		if err != nil {
			return err
		}

		if err := e.markHandled(uow, fresh); err != nil {
			return err
		}
		return e.transition(uow, model.SignalStatusBought, "buy filled")
	})
}

func (e *Engine) resizeTakeProfits(uow *unitOfWork, orders []model.Order, open []*model.Order, held, stop decimal.Decimal) error {
	byID := indexByID(orders)

	qty := risk.PerExitQuantity(held, len(open), uow.pair.StepQuantity)
	if err := risk.CheckSufficiency(qty, open[0].Price, e.fee(), uow.pair); err != nil {
		uow.log.WithError(err).Warn("Resized take-profits would not clear pair minimums, keeping current ones")
		return nil
	}

	for _, tp := range open {
		sl, err := partnerOf(tp, byID)
		if err != nil {
			return err
		}
		next, _ := tp_sl.RaiseStopLoss(uow.signal.Position, tp.StopLoss, stop)
		if _, err := e.copyForwardPair(uow, tp, sl, qty, next); err != nil {
			return err
		}
	}
	return nil
}

// formLadder creates take-profit pairs for the targets above the highest one
// already worked. When the held quantity cannot be split over every target
// the ladder keeps only the lowest targets that each clear the minimums.
func (e *Engine) formLadder(uow *unitOfWork, orders []model.Order, held, stop decimal.Decimal) (int, error) {
	targets := uow.signal.TakeProfitValues()
	start := 0
	if idx, ok := tp_sl.HighestFilledIndex(orders); ok {
		start = idx + 1
	}
	if start >= len(targets) || !held.IsPositive() {
		return 0, nil
	}

	prices := make([]decimal.Decimal, 0, len(targets)-start)
	for _, target := range targets[start:] {
		price, err := risk.QuantizePrice(target, uow.pair)
		if err != nil {
			return 0, err
		}
		prices = append(prices, price)
	}

	n, qty := len(prices), decimal.Zero
	for ; n > 0; n-- {
		qty = risk.PerExitQuantity(held, n, uow.pair.StepQuantity)
		if risk.CheckSufficiency(qty, prices[0], e.fee(), uow.pair) == nil {
			break
		}
	}
	if n == 0 {
		return 0, nil
	}

	for i := 0; i < n; i++ {
		index := start + i
		tp, sl := e.newPair(uow, index, nextSuffix(orders, model.OrderKindTakeProfit, index), prices[i], qty, stop)
		if err := e.createPair(uow, tp, sl); err != nil {
			return i, err
		}
	}

	uow.log.WithFields(map[string]interface{}{
		"take_profits": n,
		"quantity":     qty.String(),
		"stop":         stop.String(),
	}).Info("Take-profit ladder formed")

	return n, nil
}
