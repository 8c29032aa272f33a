package executor

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/connectors"
	"signalexecutor/src/database"
	"signalexecutor/src/engine"
	"signalexecutor/src/executors"
	"signalexecutor/src/pairs"
)

// Runtime is everything a command needs to drive signals.
type Runtime struct {
	DB     *gorm.DB
	Market connectors.Market
	Pairs  *pairs.Cache
	Engine *engine.Engine
	Fleet  *executors.Fleet
}

// Bootstrap connects the main database and the configured market and builds
// the engine with the settings currently in the environment.
func Bootstrap() (*Runtime, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, fmt.Errorf("connect main database: %w", err)
	}

	market, err := connectors.NewMarket(connectors.GetConfig())
	if err != nil {
		return nil, err
	}

	workers, err := executors.LoadConfig()
	if err != nil {
		return nil, err
	}
	settings, err := workers.Settings()
	if err != nil {
		return nil, err
	}

	cache := pairs.NewCache(database.MainDB, market.Name(), GetConfig().PairsCacheTTL)
	e := engine.New(database.MainDB, market, cache, settings, engine.WithObserver(executors.CountTransition))

	logrus.WithFields(logrus.Fields{
		"market":      market.Name(),
		"main_coin":   settings.MainCoin,
		"percent":     settings.BalancePercent.String(),
		"concurrency": workers.Concurrency,
	}).Info("Runtime ready")

	return &Runtime{
		DB:     database.MainDB,
		Market: market,
		Pairs:  cache,
		Engine: e,
		Fleet:  executors.NewFleet(e, database.MainDB, workers.Concurrency),
	}, nil
}
