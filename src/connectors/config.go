package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Market string `envconfig:"MARKET" default:"binance"`

	BinanceBaseURL   string `envconfig:"BINANCE_BASE_URL" default:"https://api.binance.com"`
	BinanceAPIKey    string `envconfig:"BINANCE_API_KEY"`
	BinanceAPISecret string `envconfig:"BINANCE_API_SECRET"`
	// Key and secret are XChaCha20-Poly1305 ciphertexts produced by "keys encrypt".
	BinanceKeysEncrypted bool   `envconfig:"BINANCE_KEYS_ENCRYPTED" default:"false"`
	BinanceRecvWindowMs  int64  `envconfig:"BINANCE_RECV_WINDOW_MS" default:"5000"`
	MarketFee            string `envconfig:"MARKET_FEE" default:"0.001"`

	PaperBalance string `envconfig:"PAPER_BALANCE" default:"10000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
