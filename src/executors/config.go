package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"signalexecutor/src/engine"
)

type Config struct {
	BalanceToSignalPercent string        `envconfig:"BALANCE_TO_SIGNAL_PERCENT" default:"10"`
	MainCoin               string        `envconfig:"MAIN_COIN" default:"USDT"`
	NotFoundAttempts       int           `envconfig:"NOT_FOUND_ATTEMPTS" default:"5"`
	NotFoundDelay          time.Duration `envconfig:"NOT_FOUND_DELAY" default:"700ms"`
	Concurrency            int           `envconfig:"WORKER_CONCURRENCY" default:"8"`

	FormPeriod   time.Duration `envconfig:"FORM_PERIOD" default:"10s"`
	PushPeriod   time.Duration `envconfig:"PUSH_PERIOD" default:"5s"`
	PullPeriod   time.Duration `envconfig:"PULL_PERIOD" default:"5s"`
	BoughtPeriod time.Duration `envconfig:"BOUGHT_PERIOD" default:"5s"`
	SoldPeriod   time.Duration `envconfig:"SOLD_PERIOD" default:"5s"`
	SpoilPeriod  time.Duration `envconfig:"SPOIL_PERIOD" default:"30s"`
	ClosePeriod  time.Duration `envconfig:"CLOSE_PERIOD" default:"30s"`
	PairsPeriod  time.Duration `envconfig:"PAIRS_PERIOD" default:"1h"`
}

// LoadConfig reads the environment. The loop calls it on every tick so a
// changed setting applies without a restart.
func LoadConfig() (Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("error processing env config: %w", err)
	}
	return config, nil
}

func GetConfig() Config {
	config, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return config
}

// Settings builds the engine snapshot for one tick.
func (c Config) Settings() (engine.Settings, error) {
	percent, err := decimal.NewFromString(c.BalanceToSignalPercent)
	if err != nil {
		return engine.Settings{}, fmt.Errorf("parse BALANCE_TO_SIGNAL_PERCENT %q: %w", c.BalanceToSignalPercent, err)
	}
	if !percent.IsPositive() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return engine.Settings{}, fmt.Errorf("BALANCE_TO_SIGNAL_PERCENT %s out of (0, 100]", percent)
	}
	return engine.Settings{
		BalancePercent:   percent,
		MainCoin:         c.MainCoin,
		NotFoundAttempts: c.NotFoundAttempts,
		NotFoundDelay:    c.NotFoundDelay,
	}, nil
}

// Period returns how often a worker runs.
func (c Config) Period(w Worker) time.Duration {
	switch w {
	case WorkerForm:
		return c.FormPeriod
	case WorkerPush:
		return c.PushPeriod
	case WorkerPull:
		return c.PullPeriod
	case WorkerBought:
		return c.BoughtPeriod
	case WorkerSold:
		return c.SoldPeriod
	case WorkerSpoil:
		return c.SpoilPeriod
	case WorkerClose:
		return c.ClosePeriod
	}
	return 0
}
