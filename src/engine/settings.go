package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings is the configuration snapshot an operation runs with. Workers
// build a fresh one on every tick.
type Settings struct {
	// BalancePercent of the free main coin balance given to one signal.
	BalancePercent decimal.Decimal
	MainCoin       string
	// NotFoundAttempts bounds the order lookups retried while the exchange
	// does not know an order yet.
	NotFoundAttempts int
	NotFoundDelay    time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		BalancePercent:   decimal.NewFromInt(10),
		MainCoin:         "USDT",
		NotFoundAttempts: 5,
		NotFoundDelay:    700 * time.Millisecond,
	}
}
