package engine

import (
	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
	"signalexecutor/src/risk"
	"signalexecutor/src/tp_sl"
)

func executedSum(orders []model.Order, side model.OrderSide) decimal.Decimal {
	total := decimal.Zero
	for i := range orders {
		if orders[i].Side == side {
			total = total.Add(orders[i].ExecutedQuantity)
		}
	}
	return total
}

// heldQuantity is what the signal owns right now: bought minus sold, with the
// fee taken from the bought quantity.
func (e *Engine) heldQuantity(uow *unitOfWork, orders []model.Order) decimal.Decimal {
	return risk.ResidualQuantity(
		executedSum(orders, model.OrderSideBuy),
		executedSum(orders, model.OrderSideSell),
		e.fee(),
		uow.pair.StepQuantity,
	)
}

// openTakeProfits returns the take-profits still working on the market.
func openTakeProfits(orders []model.Order) []*model.Order {
	var open []*model.Order
	for i := range orders {
		o := &orders[i]
		if o.Kind == model.OrderKindTakeProfit && o.IsOpen() && !o.LocalCanceled {
			open = append(open, o)
		}
	}
	return open
}

// currentStop is the stop the open sell orders should carry: the signal stop,
// raised to the level derived from the highest take-profit already worked.
func (e *Engine) currentStop(uow *unitOfWork, orders []model.Order) (decimal.Decimal, error) {
	stop, err := risk.QuantizePrice(uow.signal.StopLoss, uow.pair)
	if err != nil {
		return decimal.Zero, err
	}

	idx, ok := tp_sl.HighestFilledIndex(orders)
	if !ok {
		return stop, nil
	}
	candidate, ok := tp_sl.NextStopLoss(idx, uow.signal.TakeProfitValues(), uow.signal.EntryValues())
	if !ok {
		return stop, nil
	}
	candidate, err = risk.QuantizePrice(candidate, uow.pair)
	if err != nil {
		return decimal.Zero, err
	}
	raised, _ := tp_sl.RaiseStopLoss(uow.signal.Position, stop, candidate)
	return raised, nil
}

func nextSuffix(orders []model.Order, kind model.OrderKind, index int) int {
	next := 0
	for i := range orders {
		if orders[i].Kind == kind && orders[i].Index == index && orders[i].Suffix >= next {
			next = orders[i].Suffix + 1
		}
	}
	return next
}

// createPair stores a take-profit and its intent-only stop-loss leg and links
// them.
func (e *Engine) createPair(uow *unitOfWork, tp, sl *model.Order) error {
	if err := uow.orders.Create(uow.ctx, tp); err != nil {
		return err
	}
	if err := uow.orders.Create(uow.ctx, sl); err != nil {
		return err
	}
	if err := model.PairOrders(tp, sl); err != nil {
		return err
	}
	if err := uow.orders.Save(uow.ctx, tp); err != nil {
		return err
	}
	return uow.orders.Save(uow.ctx, sl)
}

func (e *Engine) newPair(uow *unitOfWork, index, suffix int, price, qty, stop decimal.Decimal) (*model.Order, *model.Order) {
	signal := uow.signal
	tp := &model.Order{
		SignalID:         signal.ID,
		Side:             model.OrderSideSell,
		Kind:             model.OrderKindTakeProfit,
		Symbol:           signal.Symbol,
		Quantity:         qty,
		Price:            price,
		StopLoss:         stop,
		ExecutedQuantity: decimal.Zero,
		Status:           model.OrderStatusNotSent,
		Index:            index,
		Suffix:           suffix,
	}
	tp.ClientOrderID = model.ClientID(tp.SignalID, tp.Side, tp.Kind, tp.Index, tp.Suffix)

	sl := &model.Order{
		SignalID:         signal.ID,
		Side:             model.OrderSideSell,
		Kind:             model.OrderKindStopLoss,
		Symbol:           signal.Symbol,
		Quantity:         qty,
		Price:            stop,
		ExecutedQuantity: decimal.Zero,
		Status:           model.OrderStatusNotSent,
		Index:            index,
		Suffix:           suffix,
		NoNeedPush:       true,
	}
	sl.ClientOrderID = model.ClientID(sl.SignalID, sl.Side, sl.Kind, sl.Index, sl.Suffix)
	return tp, sl
}

// copyForwardPair replaces an open take-profit and its stop-loss leg with new
// orders carrying qty and stop. The old orders are only marked locally
// canceled; PushOrders cancels them on the market.
func (e *Engine) copyForwardPair(uow *unitOfWork, tp, sl *model.Order, qty, stop decimal.Decimal) (*model.Order, error) {
	now := e.now()

	tp.MarkLocalCanceled(now)
	if err := uow.orders.Save(uow.ctx, tp); err != nil {
		return nil, err
	}
	sl.MarkLocalCanceled(now)
	if err := uow.orders.Save(uow.ctx, sl); err != nil {
		return nil, err
	}

	nextTP := tp.CopyForward()
	nextTP.Quantity = qty
	nextTP.StopLoss = stop

	nextSL := sl.CopyForward()
	nextSL.Quantity = qty
	nextSL.Price = stop

	if err := e.createPair(uow, nextTP, nextSL); err != nil {
		return nil, err
	}

	uow.log.WithFields(map[string]interface{}{
		"from":     tp.ClientOrderID,
		"to":       nextTP.ClientOrderID,
		"quantity": qty.String(),
		"stop":     stop.String(),
	}).Info("Take-profit copied forward")

	return nextTP, nil
}

// dropPair marks a take-profit and its stop-loss leg for cancellation without
// a replacement.
func (e *Engine) dropPair(uow *unitOfWork, tp *model.Order, byID map[uint]*model.Order) error {
	now := e.now()
	tp.MarkLocalCanceled(now)
	if err := uow.orders.Save(uow.ctx, tp); err != nil {
		return err
	}
	if sl, ok := pairedOpen(tp, byID); ok {
		sl.MarkLocalCanceled(now)
		return uow.orders.Save(uow.ctx, sl)
	}
	return nil
}

func (e *Engine) markHandled(uow *unitOfWork, orders []*model.Order) error {
	for _, o := range orders {
		o.HandledWorked = true
		if err := uow.orders.Save(uow.ctx, o); err != nil {
			return err
		}
	}
	return nil
}
