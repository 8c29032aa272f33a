// Package engine drives signals through their lifecycle: order formation,
// pushing, fill polling, take-profit/stop-loss re-derivation, spoiling and
// closing. Every operation is one database transaction holding row locks on
// the signal and the orders it reads.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/pairs"
	"signalexecutor/src/repository"
)

type Engine struct {
	db        *gorm.DB
	market    connectors.Market
	pairs     pairs.Rules
	settings  Settings
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	observers []Observer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers a transition observer next to the log observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func New(db *gorm.DB, market connectors.Market, rules pairs.Rules, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		market:    market,
		pairs:     rules,
		settings:  settings,
		now:       time.Now,
		sleep:     sleepContext,
		observers: []Observer{logTransition},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithSettings returns a copy of the engine running with s.
func (e *Engine) WithSettings(s Settings) *Engine {
	c := *e
	c.settings = s
	return &c
}

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) Market() connectors.Market { return e.market }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// unitOfWork is the scope of one operation: the transaction, the locked
// signal and repositories bound to the transaction.
type unitOfWork struct {
	ctx         context.Context
	tx          *gorm.DB
	signal      *model.Signal
	pair        *model.Pair
	signals     *repository.SignalRepository
	orders      *repository.OrderRepository
	history     *repository.HistoryRepository
	log         *logrus.Entry
	transitions []Transition
}

// lockOrders reads the signal orders matching filter under FOR UPDATE.
func (u *unitOfWork) lockOrders(filter repository.OrderFilter) ([]model.Order, error) {
	filter.Lock = true
	return u.orders.ForSignal(u.ctx, u.signal.ID, filter)
}

// run executes fn inside a transaction holding the signal row lock. With
// withPair the trading rules are resolved before the transaction starts, so
// the cache never competes with the transaction for a connection.
func (e *Engine) run(ctx context.Context, op string, signalID uint, withPair bool, fn func(uow *unitOfWork) error) error {
	log := logrus.WithFields(logrus.Fields{
		"op":        op,
		"signal_id": signalID,
		"market":    e.market.Name(),
	})

	var pair *model.Pair
	if withPair {
		signal, err := repository.NewSignalRepositoryWithDB(e.db).FindByID(ctx, signalID)
		if err != nil {
			return fmt.Errorf("%s: load signal %d: %w", op, signalID, err)
		}
		if signal == nil {
			return fmt.Errorf("%s: signal %d: %w", op, signalID, ErrSignalNotFound)
		}
		pair, err = e.pairs.Get(ctx, signal.Symbol)
		if err != nil {
			return fmt.Errorf("%s: signal %d: %w", op, signalID, err)
		}
	}

	var committed []Transition
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signals := repository.NewSignalRepositoryWithDB(tx)
		signal, err := signals.FindByIDForUpdate(ctx, signalID)
		if err != nil {
			return err
		}
		if signal == nil {
			return ErrSignalNotFound
		}

		uow := &unitOfWork{
			ctx:     ctx,
			tx:      tx,
			signal:  signal,
			pair:    pair,
			signals: signals,
			orders:  repository.NewOrderRepositoryWithDB(tx),
			history: repository.NewHistoryRepositoryWithDB(tx),
			log:     log.WithField("status", signal.Status),
		}
		if err := fn(uow); err != nil {
			return err
		}
		committed = uow.transitions
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: signal %d: %w", op, signalID, err)
	}

	for _, t := range committed {
		for _, observe := range e.observers {
			observe(t)
		}
	}
	return nil
}

func statusIn(status model.SignalStatus, set []model.SignalStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (e *Engine) fee() decimal.Decimal { return e.market.Fee() }
