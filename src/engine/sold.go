package engine

import (
	"context"

	"signalexecutor/src/model"
	"signalexecutor/src/repository"
	"signalexecutor/src/risk"
	"signalexecutor/src/tp_sl"
)

// HandleSoldOrders reacts to sell fills not handled yet. Open buys are
// canceled. After a filled take-profit the remaining take-profits are copied
// forward with the raised stop and their unfilled quantity; after a stop-loss
// every remaining sell is canceled. A take-profit canceled after a partial
// fill only counts as sold quantity.
func (e *Engine) HandleSoldOrders(ctx context.Context, signalID uint) error {
	return e.run(ctx, "HandleSoldOrders", signalID, true, func(uow *unitOfWork) error {
		if !statusIn(uow.signal.Status, SoldStatuses) {
			return nil
		}

		orders, err := uow.lockOrders(repository.OrderFilter{})
		if err != nil {
			return err
		}
		byID := indexByID(orders)

		var fresh, hits []*model.Order
		stopHit := false
		for i := range orders {
			o := &orders[i]
			if o.Side != model.OrderSideSell || o.Kind == model.OrderKindMarket || !o.IsWorked() || o.HandledWorked {
				continue
			}
			fresh = append(fresh, o)
			switch {
			case o.Kind == model.OrderKindStopLoss:
				stopHit = true
				hits = append(hits, o)
			case o.IsFilled():
				hits = append(hits, o)
			}
		}
		if len(fresh) == 0 {
			return nil
		}
		if len(hits) == 0 {
			uow.log.WithField("orders", len(fresh)).Info("Partial take-profit rests recorded as sold")
			return e.markHandled(uow, fresh)
		}

		now := e.now()
		for i := range orders {
			o := &orders[i]
			if o.Side != model.OrderSideBuy || !o.IsOpen() || o.LocalCanceled {
				continue
			}
			o.MarkLocalCanceled(now)
			if err := uow.orders.Save(uow.ctx, o); err != nil {
				return err
			}
		}

		// the other leg of a worked pair is gone with it
		for _, o := range hits {
			partner, ok := pairedOpen(o, byID)
			if !ok {
				continue
			}
			if _, err := uow.orders.UpdateStateWithHistory(uow.ctx, partner, model.OrderStatusCanceled, partner.ExecutedQuantity); err != nil {
				return err
			}
		}

		reason := "take-profit filled"
		if stopHit {
			reason = "stop-loss filled"
			for _, tp := range openTakeProfits(orders) {
				if err := e.dropPair(uow, tp, byID); err != nil {
					return err
				}
			}
		} else if err := e.trailTakeProfits(uow, orders, byID); err != nil {
			return err
		}

		if err := e.markHandled(uow, fresh); err != nil {
			return err
		}
		return e.transition(uow, model.SignalStatusSold, reason)
	})
}

func (e *Engine) trailTakeProfits(uow *unitOfWork, orders []model.Order, byID map[uint]*model.Order) error {
	stop, err := e.currentStop(uow, orders)
	if err != nil {
		return err
	}

	for _, tp := range openTakeProfits(orders) {
		sl, err := partnerOf(tp, byID)
		if err != nil {
			return err
		}

		next, _ := tp_sl.RaiseStopLoss(uow.signal.Position, tp.StopLoss, stop)
		qty := risk.RoundStep(tp.RemainingQuantity(), uow.pair.StepQuantity)
		if next.Equal(tp.StopLoss) && qty.Equal(tp.Quantity) {
			continue
		}

		if risk.CheckSufficiency(qty, tp.Price, e.fee(), uow.pair) != nil {
			uow.log.WithField("client_order_id", tp.ClientOrderID).Warn("Unfilled take-profit rest is below pair minimums, dropping it")
			if err := e.dropPair(uow, tp, byID); err != nil {
				return err
			}
			continue
		}

		if _, err := e.copyForwardPair(uow, tp, sl, qty, next); err != nil {
			return err
		}
	}
	return nil
}
