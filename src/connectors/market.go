package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

var (
	// ErrOrderNotFound is returned when the exchange does not know an order,
	// typically right after submission. Callers may retry it.
	ErrOrderNotFound = errors.New("order not found on exchange")

	// ErrDuplicateOrder is returned when the client order id was already used.
	ErrDuplicateOrder = errors.New("duplicate client order id")
)

// ExchangeError is any other rejection by the exchange. It is not retried
// in-process and aborts the enclosing unit of work.
type ExchangeError struct {
	Market     string
	Op         string
	StatusCode int
	Code       int
	Msg        string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s %s: http %d code %d (%s): %s", e.Market, e.Op, e.StatusCode, e.Code, GetErrorMsg(e.Code), e.Msg)
}

// Ack is the exchange acknowledgement of a new order. StopLossOrderID is only
// set for OCO submissions.
type Ack struct {
	ExchangeOrderID  string
	StopLossOrderID  string
	Status           model.OrderStatus
	ExecutedQuantity decimal.Decimal
}

// OrderInfo is the current exchange view of one order.
type OrderInfo struct {
	Status           model.OrderStatus
	ExecutedQuantity decimal.Decimal
}

// Market is everything the engine needs from an exchange.
type Market interface {
	Name() string
	// Fee is a fraction, 0.001 for 0.1%.
	Fee() decimal.Decimal
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	FreeBalance(ctx context.Context, coin string) (decimal.Decimal, error)
	PushBuyLimitOrder(ctx context.Context, order *model.Order) (*Ack, error)
	// PushSellOcoOrder sends a take-profit limit and its stop-loss leg as one list.
	PushSellOcoOrder(ctx context.Context, takeProfit, stopLoss *model.Order) (*Ack, error)
	PushSellMarketOrder(ctx context.Context, order *model.Order) (*Ack, error)
	CancelOrder(ctx context.Context, order *model.Order) (*OrderInfo, error)
	OrderInfo(ctx context.Context, order *model.Order) (*OrderInfo, error)
	PairRules(ctx context.Context, symbol string) (*model.Pair, error)
}
