package connectors

import (
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/security"
)

// NewMarket builds the Market selected by MARKET.
func NewMarket(config Config) (Market, error) {
	fee, err := decimal.NewFromString(config.MarketFee)
	if err != nil {
		return nil, fmt.Errorf("parse MARKET_FEE %q: %w", config.MarketFee, err)
	}

	switch config.Market {
	case paperMarketName:
		balance, err := decimal.NewFromString(config.PaperBalance)
		if err != nil {
			return nil, fmt.Errorf("parse PAPER_BALANCE %q: %w", config.PaperBalance, err)
		}
		m := NewPaperMarket(fee)
		m.SetBalance("USDT", balance)
		logger.WithField("balance", balance.String()).Warn("Using paper market, no order reaches an exchange")
		return m, nil

	case binanceMarketName:
		apiKey, apiSecret := config.BinanceAPIKey, config.BinanceAPISecret
		if config.BinanceKeysEncrypted {
			if apiKey, err = security.DecryptString(apiKey); err != nil {
				return nil, fmt.Errorf("decrypt BINANCE_API_KEY: %w", err)
			}
			if apiSecret, err = security.DecryptString(apiSecret); err != nil {
				return nil, fmt.Errorf("decrypt BINANCE_API_SECRET: %w", err)
			}
		}
		if apiKey == "" || apiSecret == "" {
			return nil, fmt.Errorf("binance market needs BINANCE_API_KEY and BINANCE_API_SECRET")
		}
		return NewBinanceConnector(apiKey, apiSecret, config.BinanceBaseURL, fee).
			WithRecvWindow(config.BinanceRecvWindowMs), nil

	default:
		return nil, fmt.Errorf("market %s not supported", config.Market)
	}
}
