package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"signalexecutor/src/connectors"
	"signalexecutor/src/database/testdb"
	"signalexecutor/src/model"
	"signalexecutor/src/pairs"
	"signalexecutor/src/repository"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	t           *testing.T
	ctx         context.Context
	db          *gorm.DB
	market      *connectors.PaperMarket
	engine      *Engine
	transitions []Transition
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), db: testdb.Open(t)}

	f.market = connectors.NewPaperMarket(decimal.Zero)
	f.market.SetBalance("USDT", d("30000"))
	f.market.SetPrice("BTCUSDT", d("95"))
	f.market.SetPair(model.Pair{
		Symbol:       "BTCUSDT",
		MinPrice:     d("0.01"),
		StepPrice:    d("0.01"),
		StepQuantity: d("0.001"),
		MinQuantity:  d("0.001"),
		MinAmount:    d("10"),
	})

	stored, err := pairs.Refresh(f.ctx, f.db, f.market, []string{"BTCUSDT"})
	require.NoError(t, err)
	require.Equal(t, 1, stored)

	settings := Settings{
		BalancePercent:   d("10"),
		MainCoin:         "USDT",
		NotFoundAttempts: 3,
	}
	f.engine = New(f.db, f.market, pairs.NewCache(f.db, f.market.Name(), time.Minute), settings,
		WithObserver(func(tr Transition) { f.transitions = append(f.transitions, tr) }))
	return f
}

// useMarket rebuilds the engine on top of m, keeping settings and observers.
func (f *fixture) useMarket(m connectors.Market) {
	f.t.Helper()
	f.engine = New(f.db, m, pairs.NewCache(f.db, f.market.Name(), time.Minute), f.engine.Settings(),
		WithObserver(func(tr Transition) { f.transitions = append(f.transitions, tr) }))
}

func (f *fixture) create(sourceID string) *model.Signal {
	f.t.Helper()
	signal, err := f.engine.CreateSignal(f.ctx, NewSignal{
		SourceID:    sourceID,
		Symbol:      "btcusdt",
		StopLoss:    d("70"),
		EntryPoints: []decimal.Decimal{d("100"), d("90"), d("80")},
		TakeProfits: []decimal.Decimal{d("120"), d("130")},
		Leverage:    1,
	})
	require.NoError(f.t, err)
	return signal
}

func (f *fixture) signal(id uint) *model.Signal {
	f.t.Helper()
	signal, err := repository.NewSignalRepositoryWithDB(f.db).FindByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, signal)
	return signal
}

func (f *fixture) orders(id uint, filter repository.OrderFilter) []model.Order {
	f.t.Helper()
	orders, err := repository.NewOrderRepositoryWithDB(f.db).ForSignal(f.ctx, id, filter)
	require.NoError(f.t, err)
	return orders
}

func (f *fixture) order(clientOrderID string) *model.Order {
	f.t.Helper()
	var o model.Order
	require.NoError(f.t, f.db.Where("client_order_id = ?", clientOrderID).First(&o).Error)
	return &o
}

func (f *fixture) history(orderID uint) []model.OrderHistory {
	f.t.Helper()
	rows, err := repository.NewHistoryRepositoryWithDB(f.db).ListForOrder(f.ctx, orderID)
	require.NoError(f.t, err)
	return rows
}

func (f *fixture) count(table interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(table).Count(&n).Error)
	return n
}

func (f *fixture) fill(clientOrderID string, qty string) {
	f.t.Helper()
	require.True(f.t, f.market.Fill(clientOrderID, d(qty)), "unknown order %s", clientOrderID)
}

func buyID(signalID uint, index int) string {
	return model.ClientID(signalID, model.OrderSideBuy, model.OrderKindEntry, index, 0)
}

func tpID(signalID uint, index, suffix int) string {
	return model.ClientID(signalID, model.OrderSideSell, model.OrderKindTakeProfit, index, suffix)
}

func slID(signalID uint, index, suffix int) string {
	return model.ClientID(signalID, model.OrderSideSell, model.OrderKindStopLoss, index, suffix)
}

func TestClassifyPosition(t *testing.T) {
	levels := func(values ...string) []decimal.Decimal {
		out := make([]decimal.Decimal, len(values))
		for i, v := range values {
			out[i] = d(v)
		}
		return out
	}

	tests := []struct {
		name     string
		entries  []decimal.Decimal
		tps      []decimal.Decimal
		stop     string
		expected model.Position
		valid    bool
	}{
		{name: "long", entries: levels("100", "90", "80"), tps: levels("120", "130"), stop: "70", expected: model.PositionLong, valid: true},
		{name: "short", entries: levels("80", "90"), tps: levels("70", "60"), stop: "100", expected: model.PositionShort, valid: true},
		{name: "target inside entries", entries: levels("100", "90"), tps: levels("95", "130"), stop: "70"},
		{name: "long stop above entry", entries: levels("100", "90"), tps: levels("120"), stop: "95"},
		{name: "short stop below entry", entries: levels("80", "90"), tps: levels("70"), stop: "85"},
		{name: "no targets", entries: levels("100"), stop: "70"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			position, err := ClassifyPosition(tt.entries, tt.tps, d(tt.stop))
			if !tt.valid {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, position)
		})
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(model.SignalStatusNew, model.SignalStatusFormed))
	require.True(t, CanTransition(model.SignalStatusSold, model.SignalStatusBought))
	require.True(t, CanTransition(model.SignalStatusBought, model.SignalStatusBought))
	require.True(t, CanTransition(model.SignalStatusCanceling, model.SignalStatusClosed))
	require.False(t, CanTransition(model.SignalStatusNew, model.SignalStatusPushed))
	require.False(t, CanTransition(model.SignalStatusFormed, model.SignalStatusBought))
	require.False(t, CanTransition(model.SignalStatusClosed, model.SignalStatusNew))
	require.False(t, CanTransition(model.SignalStatusCanceling, model.SignalStatusCanceling))
}

func TestCreateSignal(t *testing.T) {
	f := newFixture(t)

	signal := f.create("msg-1")
	require.Equal(t, model.SignalStatusNew, signal.Status)
	require.Equal(t, model.PositionLong, signal.Position)
	require.Equal(t, "BTCUSDT", signal.Symbol)
	require.Equal(t, "paper", signal.Market)
	require.True(t, signal.AllTargets)

	stored := f.signal(signal.ID)
	require.Len(t, stored.EntryPoints, 3)
	require.Len(t, stored.TakeProfits, 2)
	require.True(t, stored.MaxEntry().Equal(d("100")))

	_, err := f.engine.CreateSignal(f.ctx, NewSignal{
		SourceID:    "msg-1",
		Symbol:      "BTCUSDT",
		StopLoss:    d("70"),
		EntryPoints: []decimal.Decimal{d("100")},
		TakeProfits: []decimal.Decimal{d("120")},
	})
	require.True(t, errors.Is(err, ErrDuplicateSignal), "got %v", err)

	_, err = f.engine.CreateSignal(f.ctx, NewSignal{
		SourceID:    "msg-2",
		Symbol:      "BTCUSDT",
		StopLoss:    d("70"),
		EntryPoints: []decimal.Decimal{d("100"), d("100")},
		TakeProfits: []decimal.Decimal{d("120")},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "entry_points", verr.Field)

	require.EqualValues(t, 1, f.count(&model.Signal{}))
}

func TestFormOrdersCreatesOneBuyPerEntry(t *testing.T) {
	f := newFixture(t)
	signal := f.create("msg-1")

	require.NoError(t, f.engine.FormOrders(f.ctx, signal.ID))

	buys := f.orders(signal.ID, repository.OrderFilter{Side: model.OrderSideBuy})
	require.Len(t, buys, 3)
	require.True(t, buys[0].Price.Equal(d("100")))
	require.True(t, buys[1].Price.Equal(d("90")))
	require.True(t, buys[2].Price.Equal(d("80")))

	// 30000 * 10% = 3000 split over three entries
	require.True(t, buys[0].Quantity.Equal(d("10")), "got %s", buys[0].Quantity)
	require.True(t, buys[1].Quantity.Equal(d("11.111")), "got %s", buys[1].Quantity)
	require.True(t, buys[2].Quantity.Equal(d("12.5")), "got %s", buys[2].Quantity)
	for _, b := range buys {
		require.Equal(t, model.OrderStatusNotSent, b.Status)
		require.Equal(t, buyID(signal.ID, b.Index), b.ClientOrderID)
	}

	require.Equal(t, model.SignalStatusFormed, f.signal(signal.ID).Status)

	require.NoError(t, f.engine.FormOrders(f.ctx, signal.ID))
	require.Len(t, f.orders(signal.ID, repository.OrderFilter{}), 3)
}

func TestFormOrdersInsufficientCapitalKeepsSignalNew(t *testing.T) {
	f := newFixture(t)
	f.market.SetBalance("USDT", d("100"))
	signal := f.create("msg-1")

	err := f.engine.FormOrders(f.ctx, signal.ID)
	require.True(t, IsInsufficientCapital(err), "got %v", err)

	require.Equal(t, model.SignalStatusNew, f.signal(signal.ID).Status)
	require.Empty(t, f.orders(signal.ID, repository.OrderFilter{}))
}

func TestFormOrdersSkipsShortSignals(t *testing.T) {
	f := newFixture(t)
	signal, err := f.engine.CreateSignal(f.ctx, NewSignal{
		SourceID:    "short-1",
		Symbol:      "BTCUSDT",
		StopLoss:    d("110"),
		EntryPoints: []decimal.Decimal{d("100")},
		TakeProfits: []decimal.Decimal{d("90")},
	})
	require.NoError(t, err)
	require.Equal(t, model.PositionShort, signal.Position)

	require.NoError(t, f.engine.FormOrders(f.ctx, signal.ID))
	require.Equal(t, model.SignalStatusNew, f.signal(signal.ID).Status)
	require.Empty(t, f.orders(signal.ID, repository.OrderFilter{}))
}

func TestSignalLifecycle(t *testing.T) {
	f := newFixture(t)
	signal := f.create("msg-1")
	id := signal.ID

	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, model.SignalStatusPushed, f.signal(id).Status)
	for _, b := range f.orders(id, repository.OrderFilter{Side: model.OrderSideBuy}) {
		require.Equal(t, model.OrderStatusSent, b.Status)
		require.NotEmpty(t, b.ExchangeOrderID)
	}

	// the highest entry fills
	f.fill(buyID(id, 0), "10")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusCompleted, f.order(buyID(id, 0)).Status)

	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))
	require.Equal(t, model.SignalStatusBought, f.signal(id).Status)
	require.True(t, f.order(buyID(id, 0)).HandledWorked)

	tps := f.orders(id, repository.OrderFilter{Kinds: []model.OrderKind{model.OrderKindTakeProfit}})
	require.Len(t, tps, 2)
	for i, tp := range tps {
		require.Equal(t, i, tp.Index)
		require.True(t, tp.Quantity.Equal(d("5")), "got %s", tp.Quantity)
		require.True(t, tp.StopLoss.Equal(d("70")))
		require.NotNil(t, tp.PairedOrderID)

		sl := f.order(slID(id, i, 0))
		require.True(t, sl.NoNeedPush)
		require.True(t, sl.Price.Equal(d("70")))
		require.True(t, sl.Quantity.Equal(d("5")))
		require.Equal(t, tp.ID, *sl.PairedOrderID)
		require.Equal(t, sl.ID, *tp.PairedOrderID)
	}
	require.True(t, tps[0].Price.Equal(d("120")))
	require.True(t, tps[1].Price.Equal(d("130")))

	// nothing new filled: no orders, no status change, no history
	ordersBefore := f.count(&model.Order{})
	signalHistoryBefore := f.count(&model.SignalHistory{})
	orderHistoryBefore := f.count(&model.OrderHistory{})
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))
	require.Equal(t, ordersBefore, f.count(&model.Order{}))
	require.Equal(t, signalHistoryBefore, f.count(&model.SignalHistory{}))
	require.Equal(t, orderHistoryBefore, f.count(&model.OrderHistory{}))
	require.Equal(t, model.SignalStatusBought, f.signal(id).Status)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, model.OrderStatusSent, f.order(tpID(id, 0, 0)).Status)
	require.Equal(t, model.OrderStatusSent, f.order(slID(id, 0, 0)).Status)
	require.Equal(t, 2, f.market.Calls("PushSellOcoOrder"))

	// the lower target fills: the stop of the remaining target moves to the highest entry
	f.fill(tpID(id, 0, 0), "5")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleSoldOrders(f.ctx, id))
	require.Equal(t, model.SignalStatusSold, f.signal(id).Status)

	require.Equal(t, model.OrderStatusCanceled, f.order(slID(id, 0, 0)).Status)
	require.True(t, f.order(buyID(id, 1)).LocalCanceled)
	require.True(t, f.order(buyID(id, 2)).LocalCanceled)

	oldTP := f.order(tpID(id, 1, 0))
	require.True(t, oldTP.LocalCanceled)
	require.NotNil(t, oldTP.LocalCanceledAt)
	require.Len(t, f.history(oldTP.ID), 1)

	newTP := f.order(tpID(id, 1, 1))
	require.False(t, newTP.LocalCanceled)
	require.Equal(t, model.OrderStatusNotSent, newTP.Status)
	require.True(t, newTP.StopLoss.Equal(d("100")), "got %s", newTP.StopLoss)
	require.True(t, newTP.Quantity.Equal(d("5")))
	newSL := f.order(slID(id, 1, 1))
	require.True(t, newSL.Price.Equal(d("100")))
	require.Equal(t, newTP.ID, *newSL.PairedOrderID)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, model.OrderStatusCanceled, f.order(buyID(id, 1)).Status)
	require.Equal(t, model.OrderStatusCanceled, f.order(buyID(id, 2)).Status)
	require.Equal(t, model.OrderStatusCanceled, f.order(tpID(id, 1, 0)).Status)
	require.Equal(t, model.OrderStatusCanceled, f.order(slID(id, 1, 0)).Status)
	require.Equal(t, model.OrderStatusSent, f.order(tpID(id, 1, 1)).Status)
	require.Len(t, f.history(oldTP.ID), 2)

	// not closable while a take-profit is live
	require.NoError(t, f.engine.TryClose(f.ctx, id))
	require.Equal(t, model.SignalStatusSold, f.signal(id).Status)

	f.fill(tpID(id, 1, 1), "5")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleSoldOrders(f.ctx, id))
	require.Equal(t, model.OrderStatusCanceled, f.order(slID(id, 1, 1)).Status)

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	closed := f.signal(id)
	require.Equal(t, model.SignalStatusClosed, closed.Status)
	require.True(t, closed.Amount.Equal(d("1000")), "got %s", closed.Amount)
	require.True(t, closed.Income.Equal(d("250")), "got %s", closed.Income)

	var statuses []model.SignalStatus
	for _, tr := range f.transitions {
		statuses = append(statuses, tr.To)
	}
	require.Equal(t, []model.SignalStatus{
		model.SignalStatusFormed,
		model.SignalStatusPushed,
		model.SignalStatusBought,
		model.SignalStatusSold,
		model.SignalStatusSold,
		model.SignalStatusClosed,
	}, statuses)

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	require.Len(t, f.transitions, 6)
}

func TestHandleBoughtOrdersResizesOpenTakeProfits(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID

	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	f.fill(buyID(id, 0), "10")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	f.fill(buyID(id, 1), "11.111")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))

	for index := 0; index < 2; index++ {
		old := f.order(tpID(id, index, 0))
		require.True(t, old.LocalCanceled)

		next := f.order(tpID(id, index, 1))
		require.True(t, next.Quantity.Equal(d("10.555")), "got %s", next.Quantity)
		require.True(t, next.StopLoss.Equal(d("70")))
		require.True(t, f.order(slID(id, index, 1)).Quantity.Equal(d("10.555")))
	}
	require.True(t, f.order(buyID(id, 1)).HandledWorked)
	require.Equal(t, model.SignalStatusBought, f.signal(id).Status)
}

func TestPollFillsRecordsUnchangedFillOnce(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	f.fill(buyID(id, 2), "4")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.PollFills(f.ctx, id))

	untouched := f.order(buyID(id, 0))
	require.Len(t, f.history(untouched.ID), 1)

	partial := f.order(buyID(id, 2))
	require.Equal(t, model.OrderStatusPartial, partial.Status)
	rows := f.history(partial.ID)
	require.Len(t, rows, 2)
	require.Equal(t, model.OrderStatusSent, rows[0].Status)
	require.Equal(t, model.OrderStatusPartial, rows[1].Status)
	require.True(t, rows[1].ExecutedQuantity.Equal(d("4")))
}

func TestPollFillsNotFoundBecomesNotExistsThenUnknown(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	f.market.Hide(buyID(id, 0), 100)

	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusNotExists, f.order(buyID(id, 0)).Status)
	// three attempts for the hidden order, one for each other
	require.Equal(t, 5, f.market.Calls("OrderInfo"))

	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusUnknown, f.order(buyID(id, 0)).Status)

	require.NoError(t, f.engine.PollFills(f.ctx, id))
	hidden := f.order(buyID(id, 0))
	require.Len(t, f.history(hidden.ID), 3)

	f.market.Hide(buyID(id, 0), 0)
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusSent, f.order(buyID(id, 0)).Status)
}

func TestPushOrdersResolvesDuplicateClientID(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))

	// an earlier push reached the market but its result was lost
	_, err := f.market.PushBuyLimitOrder(f.ctx, f.order(buyID(id, 0)))
	require.NoError(t, err)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, model.OrderStatusSent, f.order(buyID(id, 0)).Status)
	require.Equal(t, 1, f.market.Calls("OrderInfo"))
	require.Equal(t, model.SignalStatusPushed, f.signal(id).Status)
}

func TestPushOrdersRollsBackOnExchangeError(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))

	f.market.FailNext("PushBuyLimitOrder", &connectors.ExchangeError{Market: "paper", Op: "PushBuyLimitOrder", Code: -2010, Msg: "insufficient balance"})

	err := f.engine.PushOrders(f.ctx, id)
	var exErr *connectors.ExchangeError
	require.True(t, errors.As(err, &exErr), "got %v", err)

	require.Equal(t, model.SignalStatusFormed, f.signal(id).Status)
	for _, o := range f.orders(id, repository.OrderFilter{}) {
		require.Equal(t, model.OrderStatusNotSent, o.Status)
	}
	require.Zero(t, f.count(&model.OrderHistory{}))
}

func TestPushOrdersRejectsUnpairedTakeProfit(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))

	orphan := &model.Order{
		SignalID: id, Side: model.OrderSideSell, Kind: model.OrderKindTakeProfit,
		Symbol: "BTCUSDT", Quantity: d("1"), Price: d("120"), Status: model.OrderStatusNotSent,
	}
	orphan.ClientOrderID = tpID(id, 0, 0)
	require.NoError(t, repository.NewOrderRepositoryWithDB(f.db).Create(f.ctx, orphan))

	err := f.engine.PushOrders(f.ctx, id)
	require.True(t, errors.Is(err, model.ErrPairingInvariant), "got %v", err)
	require.Zero(t, f.market.Calls("PushBuyLimitOrder"))
}

func TestForceSpoilCancelsEverythingWithoutFills(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	repo := repository.NewOrderRepositoryWithDB(f.db)
	for i, price := range []string{"120", "130"} {
		tp := &model.Order{
			SignalID: id, Side: model.OrderSideSell, Kind: model.OrderKindTakeProfit,
			Symbol: "BTCUSDT", Quantity: d("1"), Price: d(price), Index: i, Status: model.OrderStatusSent,
		}
		tp.ClientOrderID = tpID(id, i, 0)
		require.NoError(t, repo.Create(f.ctx, tp))
	}

	require.NoError(t, f.engine.TrySpoil(f.ctx, id, true))

	orders := f.orders(id, repository.OrderFilter{})
	require.Len(t, orders, 5)
	for _, o := range orders {
		require.True(t, o.LocalCanceled, o.ClientOrderID)
	}
	require.Zero(t, f.market.Calls("PushSellMarketOrder"))

	signal := f.signal(id)
	require.Equal(t, model.SignalStatusCanceling, signal.Status)
	require.False(t, signal.AllTargets)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Zero(t, f.market.Calls("PushSellMarketOrder"))
	for _, o := range f.orders(id, repository.OrderFilter{}) {
		require.Equal(t, model.OrderStatusCanceled, o.Status, o.ClientOrderID)
	}

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	closed := f.signal(id)
	require.Equal(t, model.SignalStatusClosed, closed.Status)
	require.True(t, closed.Amount.IsZero())
	require.True(t, closed.Income.IsZero())
}

func TestTrySpoilWaitsForTargetPrice(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))

	require.NoError(t, f.engine.TrySpoil(f.ctx, id, false))
	require.Equal(t, model.SignalStatusFormed, f.signal(id).Status)

	f.market.SetPrice("BTCUSDT", d("121"))
	require.NoError(t, f.engine.TrySpoil(f.ctx, id, false))

	signal := f.signal(id)
	require.Equal(t, model.SignalStatusCanceling, signal.Status)
	require.True(t, signal.AllTargets)
}

func TestForceSpoilSellsResidual(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	f.fill(buyID(id, 0), "10")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))

	require.NoError(t, f.engine.TrySpoil(f.ctx, id, true))

	sells := f.orders(id, repository.OrderFilter{Kinds: []model.OrderKind{model.OrderKindMarket}})
	require.Len(t, sells, 1)
	require.True(t, sells[0].Quantity.Equal(d("10")))
	require.True(t, sells[0].Price.Equal(d("95")))

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, 1, f.market.Calls("PushSellMarketOrder"))
	require.Equal(t, model.OrderStatusCompleted, f.order(sells[0].ClientOrderID).Status)

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	closed := f.signal(id)
	require.Equal(t, model.SignalStatusClosed, closed.Status)
	require.True(t, closed.Amount.Equal(d("1000")))
	require.True(t, closed.Income.Equal(d("-50")), "got %s", closed.Income)
	require.False(t, closed.AllTargets)
}

func TestOperatorActionsOutsideStatusSet(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID

	err := f.engine.TrySpoil(f.ctx, id, true)
	require.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)

	err = f.engine.ForceClose(f.ctx, id)
	require.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)

	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	err = f.engine.ForceClose(f.ctx, id)
	require.True(t, errors.Is(err, ErrOrdersOpen), "got %v", err)

	err = f.engine.PushOrders(f.ctx, 4242)
	require.True(t, errors.Is(err, ErrSignalNotFound), "got %v", err)
}

// settledCancelMarket answers a cancel of a completed or canceled order the
// way Binance does: "unknown order".
type settledCancelMarket struct {
	*connectors.PaperMarket
}

func (m settledCancelMarket) CancelOrder(ctx context.Context, order *model.Order) (*connectors.OrderInfo, error) {
	if status, ok := m.Status(order.ClientOrderID); ok && status.IsTerminal() {
		return nil, connectors.ErrOrderNotFound
	}
	return m.PaperMarket.CancelOrder(ctx, order)
}

func TestCancelOfFilledOrderRecordsFillAndSellsIt(t *testing.T) {
	f := newFixture(t)
	f.useMarket(settledCancelMarket{f.market})
	id := f.create("msg-1").ID

	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	// fills on the market before any poll sees it
	f.fill(buyID(id, 0), "10")

	require.NoError(t, f.engine.TrySpoil(f.ctx, id, true))
	require.Equal(t, model.SignalStatusCanceling, f.signal(id).Status)
	require.Empty(t, f.orders(id, repository.OrderFilter{Kinds: []model.OrderKind{model.OrderKindMarket}}))

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	filled := f.order(buyID(id, 0))
	require.Equal(t, model.OrderStatusCompleted, filled.Status)
	require.True(t, filled.ExecutedQuantity.Equal(d("10")), "got %s", filled.ExecutedQuantity)
	require.Equal(t, model.OrderStatusCanceled, f.order(buyID(id, 1)).Status)
	require.Equal(t, model.OrderStatusCanceled, f.order(buyID(id, 2)).Status)

	// the late fill blocks closing until it is sold
	require.NoError(t, f.engine.TryClose(f.ctx, id))
	require.Equal(t, model.SignalStatusCanceling, f.signal(id).Status)
	err := f.engine.ForceClose(f.ctx, id)
	require.True(t, errors.Is(err, ErrOrdersOpen), "got %v", err)

	require.NoError(t, f.engine.TrySpoil(f.ctx, id, false))
	require.True(t, f.order(buyID(id, 0)).HandledWorked)
	sells := f.orders(id, repository.OrderFilter{Kinds: []model.OrderKind{model.OrderKindMarket}})
	require.Len(t, sells, 1)
	require.True(t, sells[0].Quantity.Equal(d("10")), "got %s", sells[0].Quantity)

	// handled once
	require.NoError(t, f.engine.TrySpoil(f.ctx, id, false))
	require.Len(t, f.orders(id, repository.OrderFilter{Kinds: []model.OrderKind{model.OrderKindMarket}}), 1)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, 1, f.market.Calls("PushSellMarketOrder"))

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	closed := f.signal(id)
	require.Equal(t, model.SignalStatusClosed, closed.Status)
	require.True(t, closed.Amount.Equal(d("1000")), "got %s", closed.Amount)
	require.True(t, closed.Income.Equal(d("-50")), "got %s", closed.Income)
}

func TestCancelOfMissingOrderLeavesItOpen(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.NoError(t, f.engine.TrySpoil(f.ctx, id, true))

	// unknown both to the cancel and to the read back
	f.market.Hide(buyID(id, 0), 2)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	missing := f.order(buyID(id, 0))
	require.Equal(t, model.OrderStatusNotExists, missing.Status)
	require.True(t, missing.LocalCanceled)

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	require.Equal(t, model.SignalStatusCanceling, f.signal(id).Status)

	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusSent, f.order(buyID(id, 0)).Status)

	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	require.Equal(t, model.OrderStatusCanceled, f.order(buyID(id, 0)).Status)

	require.NoError(t, f.engine.TryClose(f.ctx, id))
	require.Equal(t, model.SignalStatusClosed, f.signal(id).Status)
}

func TestPartialTakeProfitIsNotAReachedTarget(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID

	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	f.fill(buyID(id, 0), "10")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	f.fill(tpID(id, 0, 0), "1")
	f.fill(buyID(id, 1), "11.111")
	require.NoError(t, f.engine.PollFills(f.ctx, id))
	require.Equal(t, model.OrderStatusPartial, f.order(tpID(id, 0, 0)).Status)

	// the new buy resizes both take-profits, canceling the partly filled one
	require.NoError(t, f.engine.HandleBoughtOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))
	partial := f.order(tpID(id, 0, 0))
	require.Equal(t, model.OrderStatusCanceled, partial.Status)
	require.True(t, partial.ExecutedQuantity.Equal(d("1")))

	ordersBefore := f.count(&model.Order{})
	require.NoError(t, f.engine.HandleSoldOrders(f.ctx, id))

	require.True(t, f.order(tpID(id, 0, 0)).HandledWorked)
	require.Equal(t, model.SignalStatusBought, f.signal(id).Status)
	require.False(t, f.order(buyID(id, 2)).LocalCanceled)
	require.Equal(t, ordersBefore, f.count(&model.Order{}))
	for index := 0; index < 2; index++ {
		tp := f.order(tpID(id, index, 1))
		require.False(t, tp.LocalCanceled)
		require.True(t, tp.StopLoss.Equal(d("70")), "got %s", tp.StopLoss)
	}
	for _, tr := range f.transitions {
		require.NotEqual(t, model.SignalStatusSold, tr.To)
	}

	require.NoError(t, f.engine.HandleSoldOrders(f.ctx, id))
	require.Equal(t, model.SignalStatusBought, f.signal(id).Status)
}

// connCheckMarket checks on every order lookup that the database still has a
// free connection, which a transaction in progress would hold.
type connCheckMarket struct {
	*connectors.PaperMarket
	db   *gorm.DB
	errs []error
}

func (m *connCheckMarket) OrderInfo(ctx context.Context, order *model.Order) (*connectors.OrderInfo, error) {
	checkCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	m.errs = append(m.errs, m.db.WithContext(checkCtx).Exec("SELECT 1").Error)
	return m.PaperMarket.OrderInfo(ctx, order)
}

func TestPollFillsRetriesOutsideTransaction(t *testing.T) {
	f := newFixture(t)
	m := &connCheckMarket{PaperMarket: f.market, db: f.db}
	f.useMarket(m)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	f.market.Hide(buyID(id, 0), 2)
	f.fill(buyID(id, 1), "5")

	require.NoError(t, f.engine.PollFills(f.ctx, id))

	// three attempts for the hidden order, one for each other
	require.Len(t, m.errs, 5)
	for _, err := range m.errs {
		require.NoError(t, err)
	}
	require.Equal(t, model.OrderStatusSent, f.order(buyID(id, 0)).Status)
	require.Equal(t, model.OrderStatusPartial, f.order(buyID(id, 1)).Status)
}

func TestPollFillsSkipsOrdersChangedSinceLookup(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID
	require.NoError(t, f.engine.FormOrders(f.ctx, id))
	require.NoError(t, f.engine.PushOrders(f.ctx, id))

	lookups, err := f.engine.lookupFills(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, lookups, 3)

	o := f.order(buyID(id, 0))
	l := lookups[o.ID]
	require.True(t, l.current(o))

	o.ExecutedQuantity = d("2")
	require.False(t, l.current(o))
}

func TestConcurrentFormOrdersSerializeOnSignal(t *testing.T) {
	f := newFixture(t)
	id := f.create("msg-1").ID

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.engine.FormOrders(f.ctx, id)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, f.orders(id, repository.OrderFilter{}), 3)

	var formed int64
	require.NoError(t, f.db.Model(&model.SignalHistory{}).
		Where("signal_id = ? AND to_status = ?", id, model.SignalStatusFormed).
		Count(&formed).Error)
	require.EqualValues(t, 1, formed)
}
