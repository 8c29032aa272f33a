package connectors

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

const paperMarketName = "paper"

type paperOrder struct {
	exchangeID string
	symbol     string
	side       model.OrderSide
	quantity   decimal.Decimal
	price      decimal.Decimal
	status     model.OrderStatus
	executed   decimal.Decimal
}

// PaperMarket is an in-memory Market. Orders rest until Fill is called, market
// sells fill immediately. It backs MARKET=paper dry runs and the engine tests.
type PaperMarket struct {
	mu       sync.Mutex
	fee      decimal.Decimal
	balances map[string]decimal.Decimal
	prices   map[string]decimal.Decimal
	pairs    map[string]*model.Pair
	orders   map[string]*paperOrder
	hidden   map[string]int
	failures map[string]error
	calls    map[string]int
}

func NewPaperMarket(fee decimal.Decimal) *PaperMarket {
	return &PaperMarket{
		fee:      fee,
		balances: map[string]decimal.Decimal{},
		prices:   map[string]decimal.Decimal{},
		pairs:    map[string]*model.Pair{},
		orders:   map[string]*paperOrder{},
		hidden:   map[string]int{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

func (m *PaperMarket) SetBalance(coin string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[strings.ToUpper(coin)] = amount
}

func (m *PaperMarket) SetPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

func (m *PaperMarket) SetPair(pair model.Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair.Market = paperMarketName
	m.pairs[strings.ToUpper(pair.Symbol)] = &pair
}

// Fill sets the executed quantity of an order, completing it when the whole
// quantity is executed.
func (m *PaperMarket) Fill(clientOrderID string, executed decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[clientOrderID]
	if !ok {
		return false
	}
	o.executed = decimal.Min(executed, o.quantity)
	if o.executed.Equal(o.quantity) {
		o.status = model.OrderStatusCompleted
	} else if o.executed.IsPositive() {
		o.status = model.OrderStatusPartial
	}
	return true
}

// Hide makes the next n lookups of an order answer "not found".
func (m *PaperMarket) Hide(clientOrderID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden[clientOrderID] = n
}

// FailNext makes the next call of op return err.
func (m *PaperMarket) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Calls returns how many times op was invoked.
func (m *PaperMarket) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Status returns the exchange-side status of an order.
func (m *PaperMarket) Status(clientOrderID string) (model.OrderStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[clientOrderID]
	if !ok {
		return "", false
	}
	return o.status, true
}

func (m *PaperMarket) enter(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func (m *PaperMarket) Name() string { return paperMarketName }

func (m *PaperMarket) Fee() decimal.Decimal { return m.fee }

func (m *PaperMarket) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CurrentPrice"); err != nil {
		return decimal.Zero, err
	}
	price, ok := m.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, &ExchangeError{Market: paperMarketName, Op: "CurrentPrice", Msg: "no price for " + symbol}
	}
	return price, nil
}

func (m *PaperMarket) FreeBalance(_ context.Context, coin string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FreeBalance"); err != nil {
		return decimal.Zero, err
	}
	return m.balances[strings.ToUpper(coin)], nil
}

func (m *PaperMarket) place(op string, order *model.Order, status model.OrderStatus) (*paperOrder, error) {
	if err := m.enter(op); err != nil {
		return nil, err
	}
	if _, exists := m.orders[order.ClientOrderID]; exists {
		return nil, ErrDuplicateOrder
	}
	o := &paperOrder{
		exchangeID: uuid.NewString(),
		symbol:     order.Symbol,
		side:       order.Side,
		quantity:   order.Quantity,
		price:      order.Price,
		status:     status,
		executed:   decimal.Zero,
	}
	if status == model.OrderStatusCompleted {
		o.executed = order.Quantity
	}
	m.orders[order.ClientOrderID] = o
	return o, nil
}

func (m *PaperMarket) PushBuyLimitOrder(_ context.Context, order *model.Order) (*Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.place("PushBuyLimitOrder", order, model.OrderStatusSent)
	if err != nil {
		return nil, err
	}
	return &Ack{ExchangeOrderID: o.exchangeID, Status: o.status, ExecutedQuantity: o.executed}, nil
}

func (m *PaperMarket) PushSellOcoOrder(_ context.Context, takeProfit, stopLoss *model.Order) (*Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[stopLoss.ClientOrderID]; exists {
		m.calls["PushSellOcoOrder"]++
		return nil, ErrDuplicateOrder
	}
	tp, err := m.place("PushSellOcoOrder", takeProfit, model.OrderStatusSent)
	if err != nil {
		return nil, err
	}
	sl := &paperOrder{
		exchangeID: uuid.NewString(),
		symbol:     stopLoss.Symbol,
		side:       stopLoss.Side,
		quantity:   stopLoss.Quantity,
		price:      stopLoss.Price,
		status:     model.OrderStatusSent,
		executed:   decimal.Zero,
	}
	m.orders[stopLoss.ClientOrderID] = sl
	return &Ack{ExchangeOrderID: tp.exchangeID, StopLossOrderID: sl.exchangeID, Status: tp.status, ExecutedQuantity: tp.executed}, nil
}

func (m *PaperMarket) PushSellMarketOrder(_ context.Context, order *model.Order) (*Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.place("PushSellMarketOrder", order, model.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}
	return &Ack{ExchangeOrderID: o.exchangeID, Status: o.status, ExecutedQuantity: o.executed}, nil
}

func (m *PaperMarket) lookup(clientOrderID string) (*paperOrder, error) {
	if n := m.hidden[clientOrderID]; n > 0 {
		m.hidden[clientOrderID] = n - 1
		return nil, ErrOrderNotFound
	}
	o, ok := m.orders[clientOrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (m *PaperMarket) CancelOrder(_ context.Context, order *model.Order) (*OrderInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CancelOrder"); err != nil {
		return nil, err
	}
	o, err := m.lookup(order.ClientOrderID)
	if err != nil {
		return nil, err
	}
	if !o.status.IsTerminal() {
		o.status = model.OrderStatusCanceled
	}
	return &OrderInfo{Status: o.status, ExecutedQuantity: o.executed}, nil
}

func (m *PaperMarket) OrderInfo(_ context.Context, order *model.Order) (*OrderInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OrderInfo"); err != nil {
		return nil, err
	}
	o, err := m.lookup(order.ClientOrderID)
	if err != nil {
		return nil, err
	}
	return &OrderInfo{Status: o.status, ExecutedQuantity: o.executed}, nil
}

func (m *PaperMarket) PairRules(_ context.Context, symbol string) (*model.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PairRules"); err != nil {
		return nil, err
	}
	pair, ok := m.pairs[strings.ToUpper(symbol)]
	if !ok {
		return nil, &ExchangeError{Market: paperMarketName, Op: "PairRules", Msg: "symbol not listed: " + symbol}
	}
	copied := *pair
	return &copied, nil
}
