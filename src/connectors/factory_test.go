package connectors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"signalexecutor/src/security"
)

func TestNewMarketPaper(t *testing.T) {
	m, err := NewMarket(Config{Market: "paper", MarketFee: "0.001", PaperBalance: "500"})
	require.NoError(t, err)
	require.Equal(t, "paper", m.Name())
	require.True(t, m.Fee().Equal(d("0.001")))
}

func TestNewMarketBinanceWithEncryptedKeys(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "Pjk+k4hske5KkKtbaKSVDOgpllRl+0EI6oCAdx88XqI=")

	key, err := security.EncryptString("api-key")
	require.NoError(t, err)
	secret, err := security.EncryptString("api-secret")
	require.NoError(t, err)

	m, err := NewMarket(Config{
		Market:               "binance",
		MarketFee:            "0.001",
		BinanceBaseURL:       "http://127.0.0.1:1",
		BinanceAPIKey:        key,
		BinanceAPISecret:     secret,
		BinanceKeysEncrypted: true,
	})
	require.NoError(t, err)

	c, ok := m.(*BinanceConnector)
	require.True(t, ok)
	require.Equal(t, "api-key", c.apiKey)
	require.Equal(t, "api-secret", c.apiSecret)
}

func TestNewMarketRejectsUnknownAndMissingKeys(t *testing.T) {
	_, err := NewMarket(Config{Market: "kraken", MarketFee: "0"})
	require.Error(t, err)

	_, err = NewMarket(Config{Market: "binance", MarketFee: "0"})
	require.Error(t, err)

	_, err = NewMarket(Config{Market: "paper", MarketFee: "abc"})
	require.Error(t, err)
}
