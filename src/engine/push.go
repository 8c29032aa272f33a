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

// PushOrders sends pending work to the market in three passes: cancels for
// locally canceled orders, then new sell orders, then new buy orders. Sells
// go before buys so the position is protected before it grows. A FORMED
// signal becomes PUSHED after the first order is sent.
func (e *Engine) PushOrders(ctx context.Context, signalID uint) error {
	return e.run(ctx, "PushOrders", signalID, false, func(uow *unitOfWork) error {
		if !statusIn(uow.signal.Status, PushStatuses) {
			return nil
		}

		orders, err := uow.lockOrders(repository.OrderFilter{})
		if err != nil {
			return err
		}
		byID := indexByID(orders)

		canceled, err := e.pushCancels(uow, orders, byID)
		if err != nil {
			return err
		}

		sent := 0
		for i := range orders {
			o := &orders[i]
			if o.Side != model.OrderSideSell || o.Status != model.OrderStatusNotSent || o.LocalCanceled {
				continue
			}
			switch o.Kind {
			case model.OrderKindTakeProfit:
				sl, err := partnerOf(o, byID)
				if err != nil {
					return err
				}
				if err := e.pushTakeProfit(uow, o, sl); err != nil {
					return err
				}
			case model.OrderKindStopLoss:
				// sent as the stop leg of its take-profit
				continue
			default:
				if err := e.pushSingle(uow, o, e.market.PushSellMarketOrder); err != nil {
					return err
				}
			}
			sent++
		}

		for i := range orders {
			o := &orders[i]
			if o.Side != model.OrderSideBuy || o.Status != model.OrderStatusNotSent || o.LocalCanceled {
				continue
			}
			if err := e.pushSingle(uow, o, e.market.PushBuyLimitOrder); err != nil {
				return err
			}
			sent++
		}

		if sent > 0 || canceled > 0 {
			uow.log.WithFields(map[string]interface{}{
				"sent":     sent,
				"canceled": canceled,
			}).Info("Orders pushed")
		}

		if sent > 0 && uow.signal.Status == model.SignalStatusFormed {
			return e.transition(uow, model.SignalStatusPushed, "orders sent")
		}
		return nil
	})
}

func indexByID(orders []model.Order) map[uint]*model.Order {
	byID := make(map[uint]*model.Order, len(orders))
	for i := range orders {
		byID[orders[i].ID] = &orders[i]
	}
	return byID
}

// partnerOf returns the stop-loss paired with a take-profit.
func partnerOf(tp *model.Order, byID map[uint]*model.Order) (*model.Order, error) {
	if tp.PairedOrderID == nil {
		return nil, fmt.Errorf("take-profit %s has no stop-loss: %w", tp.ClientOrderID, model.ErrPairingInvariant)
	}
	sl, ok := byID[*tp.PairedOrderID]
	if !ok || sl.PairedOrderID == nil || *sl.PairedOrderID != tp.ID {
		return nil, fmt.Errorf("take-profit %s stop-loss %d is not paired back: %w", tp.ClientOrderID, *tp.PairedOrderID, model.ErrPairingInvariant)
	}
	return sl, nil
}

// pushCancels settles every locally canceled order that is still open.
// Unsent orders are canceled without a market call. A stop-loss leg follows
// its take-profit.
func (e *Engine) pushCancels(uow *unitOfWork, orders []model.Order, byID map[uint]*model.Order) (int, error) {
	canceled := 0
	for i := range orders {
		o := &orders[i]
		if !o.LocalCanceled || !o.IsOpen() || o.Kind == model.OrderKindStopLoss {
			continue
		}
		if err := e.cancelOrder(uow, o, byID, true); err != nil {
			return canceled, err
		}
		canceled++
	}

	for i := range orders {
		o := &orders[i]
		if !o.LocalCanceled || !o.IsOpen() || o.Kind != model.OrderKindStopLoss {
			continue
		}
		if tp, ok := pairedOpen(o, byID); ok && !tp.LocalCanceled {
			continue
		}
		if _, err := uow.orders.UpdateStateWithHistory(uow.ctx, o, model.OrderStatusCanceled, o.ExecutedQuantity); err != nil {
			return canceled, err
		}
		canceled++
	}
	return canceled, nil
}

func pairedOpen(o *model.Order, byID map[uint]*model.Order) (*model.Order, bool) {
	if o.PairedOrderID == nil {
		return nil, false
	}
	p, ok := byID[*o.PairedOrderID]
	if !ok || !p.IsOpen() {
		return nil, false
	}
	return p, true
}

// cancelOrder cancels o on the market and records the outcome. A paired
// stop-loss is only canceled with it when withPair is set.
func (e *Engine) cancelOrder(uow *unitOfWork, o *model.Order, byID map[uint]*model.Order, withPair bool) error {
	status, executed := model.OrderStatusCanceled, o.ExecutedQuantity

	if o.Status != model.OrderStatusNotSent {
		info, err := e.market.CancelOrder(uow.ctx, o)
		switch {
		case errors.Is(err, connectors.ErrOrderNotFound):
			status, executed, err = e.recheckCanceled(uow, o)
			if err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("cancel %s: %w", o.ClientOrderID, err)
		default:
			status, executed = info.Status, info.ExecutedQuantity
		}
	}

	if _, err := uow.orders.UpdateStateWithHistory(uow.ctx, o, status, executed); err != nil {
		return err
	}

	if !withPair || o.Kind != model.OrderKindTakeProfit {
		return nil
	}
	sl, ok := pairedOpen(o, byID)
	if !ok {
		return nil
	}
	sl.MarkLocalCanceled(e.now())
	if err := uow.orders.Save(uow.ctx, sl); err != nil {
		return err
	}
	_, err := uow.orders.UpdateStateWithHistory(uow.ctx, sl, model.OrderStatusCanceled, sl.ExecutedQuantity)
	return err
}

// recheckCanceled reads back an order the market refused to cancel as
// unknown. Markets answer that way for orders that already filled, so the
// real state is recorded. An order still missing stays open as NOT_EXISTS or
// UNKNOWN for PollFills to resolve. One lookup only: the signal is locked.
func (e *Engine) recheckCanceled(uow *unitOfWork, o *model.Order) (model.OrderStatus, decimal.Decimal, error) {
	info, err := e.market.OrderInfo(uow.ctx, o)
	switch {
	case errors.Is(err, connectors.ErrOrderNotFound):
		status := missingStatus(o)
		uow.log.WithFields(map[string]interface{}{
			"client_order_id": o.ClientOrderID,
			"status":          status,
		}).Warn("Order to cancel is unknown to the market")
		return status, o.ExecutedQuantity, nil
	case err != nil:
		return "", decimal.Zero, fmt.Errorf("order info %s: %w", o.ClientOrderID, err)
	}

	uow.log.WithFields(map[string]interface{}{
		"client_order_id": o.ClientOrderID,
		"status":          info.Status,
		"executed":        info.ExecutedQuantity.String(),
	}).Warn("Order to cancel was already settled on the market")
	return info.Status, info.ExecutedQuantity, nil
}

type pushFunc func(ctx context.Context, o *model.Order) (*connectors.Ack, error)

// submit sends an order, resolving a duplicate client id rejection by reading
// the order back: the client id is idempotent, so the earlier send stands.
func (e *Engine) submit(uow *unitOfWork, o *model.Order, push func() (*connectors.Ack, error)) (*connectors.Ack, error) {
	if err := o.CheckPushable(); err != nil {
		return nil, err
	}

	ack, err := push()
	if errors.Is(err, connectors.ErrDuplicateOrder) {
		uow.log.WithField("client_order_id", o.ClientOrderID).Warn("Order already on the market, reading it back")
		info, infoErr := e.market.OrderInfo(uow.ctx, o)
		if infoErr != nil {
			return nil, fmt.Errorf("resolve duplicate %s: %w", o.ClientOrderID, infoErr)
		}
		return &connectors.Ack{ExchangeOrderID: o.ExchangeOrderID, Status: info.Status, ExecutedQuantity: info.ExecutedQuantity}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", o.ClientOrderID, err)
	}
	return ack, nil
}

func (e *Engine) pushSingle(uow *unitOfWork, o *model.Order, push pushFunc) error {
	ack, err := e.submit(uow, o, func() (*connectors.Ack, error) { return push(uow.ctx, o) })
	if err != nil {
		return err
	}
	return e.recordAck(uow, o, ack.ExchangeOrderID, ack)
}

func (e *Engine) pushTakeProfit(uow *unitOfWork, tp, sl *model.Order) error {
	ack, err := e.submit(uow, tp, func() (*connectors.Ack, error) {
		return e.market.PushSellOcoOrder(uow.ctx, tp, sl)
	})
	if err != nil {
		return err
	}
	if err := e.recordAck(uow, tp, ack.ExchangeOrderID, ack); err != nil {
		return err
	}
	slAck := &connectors.Ack{Status: model.OrderStatusSent, ExecutedQuantity: sl.ExecutedQuantity}
	return e.recordAck(uow, sl, ack.StopLossOrderID, slAck)
}

func (e *Engine) recordAck(uow *unitOfWork, o *model.Order, exchangeID string, ack *connectors.Ack) error {
	if exchangeID != "" {
		o.ExchangeOrderID = exchangeID
	}
	status := ack.Status
	if status == "" || status == model.OrderStatusNotSent {
		status = model.OrderStatusSent
	}
	_, err := uow.orders.UpdateStateWithHistory(uow.ctx, o, status, ack.ExecutedQuantity)
	return err
}
