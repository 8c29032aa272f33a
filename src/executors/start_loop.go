package executors

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/engine"
	"signalexecutor/src/pairs"
	"signalexecutor/src/repository"
)

// StartLoop runs every worker on its own period until ctx is done. The first
// run of each worker is delayed by a random share of its period so workers do
// not tick in lockstep. Configuration is reloaded before every run. When
// cache is set the pair rules of the symbols in use are refreshed as well.
func StartLoop(ctx context.Context, fleet *Fleet, db *gorm.DB, cache *pairs.Cache) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, w := range Workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, config.Period(w), func() time.Duration {
				config, settings, ok := snapshot(w)
				if !ok {
					return 0
				}
				fleet.WithSettings(settings).Run(ctx, w, repository.SignalFilter{})
				return config.Period(w)
			})
		}()
	}

	if cache != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, config.PairsPeriod, func() time.Duration {
				refreshPairs(ctx, db, fleet.Engine(), cache)
				return 0
			})
		}()
	}

	logger.WithField("workers", len(Workers)).Info("Worker loop started")
	wg.Wait()
	logger.Info("loop stopped")
	return nil
}

// every calls tick after a jittered first delay and then once per period.
// A positive duration returned by tick replaces the period.
func every(ctx context.Context, period time.Duration, tick func() time.Duration) {
	if period <= 0 {
		period = time.Second
	}
	timer := time.NewTimer(time.Duration(rand.Int63n(int64(period))))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if next := tick(); next > 0 {
				period = next
			}
			timer.Reset(period)
		}
	}
}

func snapshot(w Worker) (Config, engine.Settings, bool) {
	config, err := LoadConfig()
	if err != nil {
		logger.WithField("worker", w).WithError(err).Error("Failed to load config, skipping tick")
		return Config{}, engine.Settings{}, false
	}
	settings, err := config.Settings()
	if err != nil {
		logger.WithField("worker", w).WithError(err).Error("Invalid settings, skipping tick")
		return Config{}, engine.Settings{}, false
	}
	return config, settings, true
}

func refreshPairs(ctx context.Context, db *gorm.DB, e *engine.Engine, cache *pairs.Cache) {
	symbols, err := repository.NewSignalRepositoryWithDB(db).SymbolsInUse(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list symbols in use")
		return
	}
	if len(symbols) == 0 {
		return
	}
	stored, err := pairs.Refresh(ctx, db, e.Market(), symbols)
	if err != nil {
		logger.WithError(err).Error("Failed to refresh pair rules")
		return
	}
	cache.Invalidate()
	logger.WithField("pairs", stored).Info("Pair rules refreshed")
}
