package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/metrics"
	"signalexecutor/src/model"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 5 * time.Second

	binanceMarketName = "binance"
)

// quote assets checked in order when splitting a symbol into base/quote
var knownQuotes = []string{"FDUSD", "USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type binanceOrder struct {
	Symbol        string          `json:"symbol"`
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Status        string          `json:"status"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
}

type binanceOcoResponse struct {
	OrderListID  int64          `json:"orderListId"`
	OrderReports []binanceOrder `json:"orderReports"`
}

type binanceAccount struct {
	Balances []struct {
		Asset  string          `json:"asset"`
		Free   decimal.Decimal `json:"free"`
		Locked decimal.Decimal `json:"locked"`
	} `json:"balances"`
}

type binanceFilter struct {
	FilterType  string          `json:"filterType"`
	MinPrice    decimal.Decimal `json:"minPrice"`
	TickSize    decimal.Decimal `json:"tickSize"`
	MinQty      decimal.Decimal `json:"minQty"`
	StepSize    decimal.Decimal `json:"stepSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol     string          `json:"symbol"`
		BaseAsset  string          `json:"baseAsset"`
		QuoteAsset string          `json:"quoteAsset"`
		Filters    []binanceFilter `json:"filters"`
	} `json:"symbols"`
}

// BinanceConnector implements Market for Binance spot. Signed endpoints go
// through resty; the public ticker is read with goex.
type BinanceConnector struct {
	apiKey     string
	apiSecret  string
	recvWindow int64
	fee        decimal.Decimal
	http       *resty.Client
	now        func() time.Time

	tickerOnce sync.Once
	tickerCfg  *goex.APIConfig
	ticker     goex.API
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func NewBinanceConnector(apiKey, apiSecret, baseURL string, fee decimal.Decimal) *BinanceConnector {
	if baseURL == "" {
		baseURL = binance.GLOBAL_API_BASE_URL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BinanceConnector{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: 5000,
		fee:        fee,
		http:       httpClient,
		now:        time.Now,
		tickerCfg: &goex.APIConfig{
			HttpClient: httpClient.GetClient(),
			Endpoint:   baseURL,
		},
	}
}

// WithRecvWindow overrides the signed request validity window.
func (c *BinanceConnector) WithRecvWindow(ms int64) *BinanceConnector {
	if ms > 0 {
		c.recvWindow = ms
	}
	return c
}

func (c *BinanceConnector) Name() string { return binanceMarketName }

func (c *BinanceConnector) Fee() decimal.Decimal { return c.fee }

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// do sends one request and decodes the JSON response into out. Requests and
// their outcome are logged and counted here so every endpoint gets the same
// trail.
func (c *BinanceConnector) do(ctx context.Context, op, method, path string, params url.Values, signed bool, out interface{}) error {
	err := c.send(ctx, op, method, path, params, signed, out)
	metrics.ObserveExchange(binanceMarketName, op, err)
	return err
}

func (c *BinanceConnector) send(ctx context.Context, op, method, path string, params url.Values, signed bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}

	req := c.http.R().SetContext(ctx)
	query := params.Encode()
	if signed {
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query = params.Encode()
		query += "&signature=" + sign(query, c.apiSecret)
		req = req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}

	target := path
	if query != "" {
		target += "?" + query
	}

	fields := map[string]interface{}{
		"market": binanceMarketName,
		"op":     op,
		"method": method,
		"path":   path,
	}
	logger.WithFields(fields).Debug("Sending exchange request")

	resp, err := req.Execute(method, target)
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Exchange request failed")
		return &ExchangeError{Market: binanceMarketName, Op: op, Msg: err.Error()}
	}

	raw := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		var apiErr binanceAPIError
		_ = json.Unmarshal(raw, &apiErr)
		mapped := mapBinanceError(op, resp.StatusCode(), apiErr)
		logger.WithFields(fields).
			WithField("status", resp.StatusCode()).
			WithField("code", apiErr.Code).
			WithError(mapped).
			Warn("Exchange rejected request")
		return mapped
	}

	logger.WithFields(fields).WithField("status", resp.StatusCode()).Debug("Exchange request succeeded")

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ExchangeError{Market: binanceMarketName, Op: op, StatusCode: resp.StatusCode(), Msg: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// mapBinanceError turns the error codes the engine reacts to into sentinels.
func mapBinanceError(op string, status int, apiErr binanceAPIError) error {
	switch apiErr.Code {
	case codeUnknownOrder:
		return fmt.Errorf("%s: %s: %w", op, apiErr.Msg, ErrOrderNotFound)
	case codeCancelRejected:
		if strings.Contains(strings.ToLower(apiErr.Msg), "unknown order") {
			return fmt.Errorf("%s: %s: %w", op, apiErr.Msg, ErrOrderNotFound)
		}
	case codeNewOrderRejected:
		if strings.Contains(strings.ToLower(apiErr.Msg), "duplicate") {
			return fmt.Errorf("%s: %s: %w", op, apiErr.Msg, ErrDuplicateOrder)
		}
	}
	return &ExchangeError{Market: binanceMarketName, Op: op, StatusCode: status, Code: apiErr.Code, Msg: apiErr.Msg}
}

func mapBinanceStatus(status string) model.OrderStatus {
	switch status {
	case "NEW", "PENDING_NEW", "PENDING_CANCEL":
		return model.OrderStatusSent
	case "PARTIALLY_FILLED":
		return model.OrderStatusPartial
	case "FILLED":
		return model.OrderStatusCompleted
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return model.OrderStatusCanceled
	default:
		return model.OrderStatusUnknown
	}
}

func splitSymbol(symbol string) (string, string) {
	s := strings.ToUpper(symbol)
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote), quote
		}
	}
	return s, ""
}

// tickerAPI builds the goex client on first use; construction already talks to
// the exchange.
func (c *BinanceConnector) tickerAPI() goex.API {
	c.tickerOnce.Do(func() {
		c.ticker = binance.NewWithConfig(c.tickerCfg)
	})
	return c.ticker
}

func (c *BinanceConnector) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	base, quote := splitSymbol(symbol)
	if quote == "" {
		return decimal.Zero, &ExchangeError{Market: binanceMarketName, Op: "CurrentPrice", Msg: "cannot split symbol " + symbol}
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote})
	ticker, err := c.tickerAPI().GetTicker(pair)
	if err != nil {
		return decimal.Zero, &ExchangeError{Market: binanceMarketName, Op: "CurrentPrice", Msg: err.Error()}
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

func (c *BinanceConnector) FreeBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	var account binanceAccount
	if err := c.do(ctx, "FreeBalance", http.MethodGet, "/api/v3/account", nil, true, &account); err != nil {
		return decimal.Zero, err
	}
	for _, b := range account.Balances {
		if strings.EqualFold(b.Asset, coin) {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}

func (c *BinanceConnector) PushBuyLimitOrder(ctx context.Context, order *model.Order) (*Ack, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", order.Quantity.String())
	params.Set("price", order.Price.String())
	params.Set("newClientOrderId", order.ClientOrderID)
	params.Set("newOrderRespType", "RESULT")

	var resp binanceOrder
	if err := c.do(ctx, "PushBuyLimitOrder", http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return nil, err
	}
	return ackFromOrder(resp), nil
}

func (c *BinanceConnector) PushSellOcoOrder(ctx context.Context, takeProfit, stopLoss *model.Order) (*Ack, error) {
	params := url.Values{}
	params.Set("symbol", takeProfit.Symbol)
	params.Set("side", "SELL")
	params.Set("quantity", takeProfit.Quantity.String())
	params.Set("price", takeProfit.Price.String())
	params.Set("stopPrice", stopLoss.Price.String())
	params.Set("stopLimitPrice", stopLoss.Price.String())
	params.Set("stopLimitTimeInForce", "GTC")
	params.Set("listClientOrderId", takeProfit.ClientOrderID+"-l")
	params.Set("limitClientOrderId", takeProfit.ClientOrderID)
	params.Set("stopClientOrderId", stopLoss.ClientOrderID)
	params.Set("newOrderRespType", "RESULT")

	var resp binanceOcoResponse
	if err := c.do(ctx, "PushSellOcoOrder", http.MethodPost, "/api/v3/order/oco", params, true, &resp); err != nil {
		return nil, err
	}

	ack := &Ack{Status: model.OrderStatusSent, ExecutedQuantity: decimal.Zero}
	for _, report := range resp.OrderReports {
		id := strconv.FormatInt(report.OrderID, 10)
		switch report.ClientOrderID {
		case takeProfit.ClientOrderID:
			ack.ExchangeOrderID = id
			ack.Status = mapBinanceStatus(report.Status)
			ack.ExecutedQuantity = report.ExecutedQty
		case stopLoss.ClientOrderID:
			ack.StopLossOrderID = id
		}
	}
	return ack, nil
}

func (c *BinanceConnector) PushSellMarketOrder(ctx context.Context, order *model.Order) (*Ack, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", order.Quantity.String())
	params.Set("newClientOrderId", order.ClientOrderID)
	params.Set("newOrderRespType", "RESULT")

	var resp binanceOrder
	if err := c.do(ctx, "PushSellMarketOrder", http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return nil, err
	}
	return ackFromOrder(resp), nil
}

func (c *BinanceConnector) CancelOrder(ctx context.Context, order *model.Order) (*OrderInfo, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("origClientOrderId", order.ClientOrderID)

	var resp binanceOrder
	if err := c.do(ctx, "CancelOrder", http.MethodDelete, "/api/v3/order", params, true, &resp); err != nil {
		return nil, err
	}
	return &OrderInfo{Status: mapBinanceStatus(resp.Status), ExecutedQuantity: resp.ExecutedQty}, nil
}

func (c *BinanceConnector) OrderInfo(ctx context.Context, order *model.Order) (*OrderInfo, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("origClientOrderId", order.ClientOrderID)

	var resp binanceOrder
	if err := c.do(ctx, "OrderInfo", http.MethodGet, "/api/v3/order", params, true, &resp); err != nil {
		return nil, err
	}
	return &OrderInfo{Status: mapBinanceStatus(resp.Status), ExecutedQuantity: resp.ExecutedQty}, nil
}

func (c *BinanceConnector) PairRules(ctx context.Context, symbol string) (*model.Pair, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var info binanceExchangeInfo
	if err := c.do(ctx, "PairRules", http.MethodGet, "/api/v3/exchangeInfo", params, false, &info); err != nil {
		return nil, err
	}
	if len(info.Symbols) == 0 {
		return nil, &ExchangeError{Market: binanceMarketName, Op: "PairRules", Msg: "symbol not listed: " + symbol}
	}

	s := info.Symbols[0]
	pair := &model.Pair{
		Symbol:     s.Symbol,
		Market:     binanceMarketName,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			pair.MinPrice = f.MinPrice
			pair.StepPrice = f.TickSize
		case "LOT_SIZE":
			pair.MinQuantity = f.MinQty
			pair.StepQuantity = f.StepSize
		case "NOTIONAL", "MIN_NOTIONAL":
			pair.MinAmount = f.MinNotional
		}
	}
	return pair, nil
}

func ackFromOrder(o binanceOrder) *Ack {
	return &Ack{
		ExchangeOrderID:  strconv.FormatInt(o.OrderID, 10),
		Status:           mapBinanceStatus(o.Status),
		ExecutedQuantity: o.ExecutedQty,
	}
}
