// Package pairs keeps the exchange trading rules the engine quantizes against.
package pairs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/connectors"
	"signalexecutor/src/model"
	"signalexecutor/src/repository"
)

// Rules resolves trading rules by symbol.
type Rules interface {
	Get(ctx context.Context, symbol string) (*model.Pair, error)
}

type entry struct {
	pair     model.Pair
	loadedAt time.Time
}

// Cache serves pair rules from memory and reloads them from the pairs table
// after ttl. It never calls the exchange; Refresh does.
type Cache struct {
	mu     sync.RWMutex
	market string
	ttl    time.Duration
	repo   *repository.PairRepository
	items  map[string]entry
	now    func() time.Time
}

func NewCache(db *gorm.DB, market string, ttl time.Duration) *Cache {
	return &Cache{
		market: market,
		ttl:    ttl,
		repo:   repository.NewPairRepositoryWithDB(db),
		items:  map[string]entry{},
		now:    time.Now,
	}
}

// ErrUnknownPair is returned for symbols never refreshed from the exchange.
type ErrUnknownPair struct {
	Symbol string
	Market string
}

func (e *ErrUnknownPair) Error() string {
	return fmt.Sprintf("no trading rules for %s on %s", e.Symbol, e.Market)
}

func (c *Cache) Get(ctx context.Context, symbol string) (*model.Pair, error) {
	symbol = strings.ToUpper(symbol)

	c.mu.RLock()
	e, ok := c.items[symbol]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		pair := e.pair
		return &pair, nil
	}

	pair, err := c.repo.FindBySymbol(ctx, symbol, c.market)
	if err != nil {
		return nil, fmt.Errorf("load pair %s: %w", symbol, err)
	}
	if pair == nil {
		return nil, &ErrUnknownPair{Symbol: symbol, Market: c.market}
	}

	c.mu.Lock()
	c.items[symbol] = entry{pair: *pair, loadedAt: c.now()}
	c.mu.Unlock()

	return pair, nil
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.items = map[string]entry{}
	c.mu.Unlock()
}

// Refresh pulls the rules of symbols from the market and upserts them. A
// symbol the market rejects is logged and skipped; the count of stored pairs
// is returned.
func Refresh(ctx context.Context, db *gorm.DB, market connectors.Market, symbols []string) (int, error) {
	repo := repository.NewPairRepositoryWithDB(db)
	stored := 0

	for _, symbol := range symbols {
		pair, err := market.PairRules(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			logrus.WithFields(logrus.Fields{
				"symbol": symbol,
				"market": market.Name(),
			}).WithError(err).Warn("Failed to read pair rules, skipping")
			continue
		}
		pair.Market = market.Name()

		if err := repo.Upsert(ctx, pair); err != nil {
			return stored, fmt.Errorf("store pair %s: %w", symbol, err)
		}
		stored++
	}

	logrus.WithFields(logrus.Fields{
		"market":  market.Name(),
		"symbols": len(symbols),
		"stored":  stored,
	}).Info("Pair rules refreshed")

	return stored, nil
}
