// REST API CLIENT FOR GATE USDT-M FUTURES
// RESTY ONLY + INTERNAL RETRY ON READS
package connectors

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	// Reads retry twice with a linearly increasing delay; writes never retry.
	defaultReadRetries   = 2
	defaultRetryBaseWait = 500 * time.Millisecond
	defaultRetryMaxWait  = 2 * time.Second
)

// -----------------------------
// DOMAIN TYPES
// -----------------------------

// FuturesPosition mirrors the exchange position payload. Size is signed:
// positive = long, negative = short, zero = flat.
type FuturesPosition struct {
	Contract      string `json:"contract"`
	Size          int64  `json:"size"`
	Leverage      string `json:"leverage"`
	EntryPrice    string `json:"entry_price"`
	MarkPrice     string `json:"mark_price"`
	LiqPrice      string `json:"liq_price"`
	UnrealisedPnl string `json:"unrealised_pnl"`
	Margin        string `json:"margin"`
}

type FuturesAccount struct {
	Total         string `json:"total"`
	Available     string `json:"available"`
	UnrealisedPnl string `json:"unrealised_pnl"`
}

type FuturesOrder struct {
	ID           int64  `json:"id"`
	Contract     string `json:"contract"`
	Size         int64  `json:"size"`
	Left         int64  `json:"left"`
	Price        string `json:"price"`
	FillPrice    string `json:"fill_price"`
	Status       string `json:"status"`    // open | finished
	FinishAs     string `json:"finish_as"` // filled | cancelled | ...
	IsReduceOnly bool   `json:"is_reduce_only"`
	Text         string `json:"text"`
}

type Contract struct {
	Name             string `json:"name"`
	QuantoMultiplier string `json:"quanto_multiplier"`
	OrderSizeMin     int64  `json:"order_size_min"`
	OrderSizeMax     int64  `json:"order_size_max"`
	LeverageMax      string `json:"leverage_max"`
}

type FuturesTicker struct {
	Contract  string `json:"contract"`
	Last      string `json:"last"`
	MarkPrice string `json:"mark_price"`
}

type FuturesCandle struct {
	Timestamp int64  `json:"t"`
	Volume    int64  `json:"v"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Open      string `json:"o"`
}

// OrderRequest describes one order submission. Size is signed contracts;
// Price empty or "0" means market (IOC).
type OrderRequest struct {
	Contract   string
	Size       int64
	Price      string
	ReduceOnly bool
	Text       string
}

// ExchangeClient is the adapter surface the engine consumes. Reads are
// idempotent and internally retried; PlaceOrder is submitted exactly once.
type ExchangeClient interface {
	ListPositions() ([]FuturesPosition, error)
	GetAccount() (*FuturesAccount, error)
	PlaceOrder(req OrderRequest) (*FuturesOrder, error)
	GetOrder(orderID string) (*FuturesOrder, error)
	GetContract(contract string) (*Contract, error)
	GetTicker(contract string) (*FuturesTicker, error)
	GetCandles(contract, interval string, limit int) ([]FuturesCandle, error)
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------
type GateClient struct {
	apiKey    string
	apiSecret string
	settle    string
	read      *resty.Client
	write     *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewGateClient(apiKey, apiSecret string) *GateClient {
	config := GetConfig()

	timeout := time.Duration(config.HTTPTimeoutSec) * time.Second

	readClient := resty.New().
		SetBaseURL(config.GateBaseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultReadRetries).
		SetRetryWaitTime(defaultRetryBaseWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		AddRetryCondition(isRetryableResp)

	// Order placement is never blindly retried: a timed-out write may have
	// succeeded on the exchange, and a retry would double the execution.
	writeClient := resty.New().
		SetBaseURL(config.GateBaseURL).
		SetTimeout(timeout)

	return &GateClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		settle:    config.GateSettle,
		read:      readClient,
		write:     writeClient,
	}
}

func signRequest(method, path, query, body string, ts int64, secret string) string {
	payloadHash := sha512.Sum512([]byte(body))
	base := fmt.Sprintf("%s\n%s\n%s\n%s\n%d",
		method, path, query, hex.EncodeToString(payloadHash[:]), ts)
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *GateClient) doRequest(client *resty.Client, method, path, query string, body []byte) ([]byte, error) {
	ts := time.Now().Unix()

	bodyStr := ""
	if body != nil {
		bodyStr = string(body)
	}
	sig := signRequest(method, path, query, bodyStr, ts, c.apiSecret)

	req := client.R().
		SetHeader("KEY", c.apiKey).
		SetHeader("Timestamp", strconv.FormatInt(ts, 10)).
		SetHeader("SIGN", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, parseAPIError(resp.StatusCode(), raw)
	}

	return raw, nil
}

// -----------------------------
// ACCOUNT & POSITION METHODS
// -----------------------------

func (c *GateClient) ListPositions() ([]FuturesPosition, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/positions", c.settle)
	raw, err := c.doRequest(c.read, "GET", path, "holding=true", nil)
	if err != nil {
		return nil, err
	}

	var positions []FuturesPosition
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}
	return positions, nil
}

func (c *GateClient) GetAccount() (*FuturesAccount, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/accounts", c.settle)
	raw, err := c.doRequest(c.read, "GET", path, "", nil)
	if err != nil {
		return nil, err
	}

	var account FuturesAccount
	return &account, json.Unmarshal(raw, &account)
}

// -----------------------------
// TRADING METHODS
// -----------------------------

func (c *GateClient) PlaceOrder(req OrderRequest) (*FuturesOrder, error) {
	if req.Text == "" {
		req.Text = "t-" + uuid.NewString()
	}
	if req.Price == "" {
		req.Price = "0" // market
	}

	body := map[string]interface{}{
		"contract": req.Contract,
		"size":     req.Size,
		"price":    req.Price,
		"tif":      "ioc",
		"text":     req.Text,
	}
	if req.ReduceOnly {
		body["reduce_only"] = true
	}

	b, _ := json.Marshal(body)

	logger.WithFields(map[string]interface{}{
		"contract":    req.Contract,
		"size":        req.Size,
		"reduce_only": req.ReduceOnly,
		"text":        req.Text,
	}).Info("submitting futures order")

	path := fmt.Sprintf("/api/v4/futures/%s/orders", c.settle)
	raw, err := c.doRequest(c.write, "POST", path, "", b)
	if err != nil {
		return nil, err
	}

	var order FuturesOrder
	return &order, json.Unmarshal(raw, &order)
}

func (c *GateClient) GetOrder(orderID string) (*FuturesOrder, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/orders/%s", c.settle, orderID)
	raw, err := c.doRequest(c.read, "GET", path, "", nil)
	if err != nil {
		return nil, err
	}

	var order FuturesOrder
	return &order, json.Unmarshal(raw, &order)
}

// -----------------------------
// MARKET DATA METHODS
// -----------------------------

func (c *GateClient) GetContract(contract string) (*Contract, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/contracts/%s", c.settle, contract)
	raw, err := c.doRequest(c.read, "GET", path, "", nil)
	if err != nil {
		return nil, err
	}

	var info Contract
	return &info, json.Unmarshal(raw, &info)
}

func (c *GateClient) GetTicker(contract string) (*FuturesTicker, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/tickers", c.settle)
	raw, err := c.doRequest(c.read, "GET", path, "contract="+contract, nil)
	if err != nil {
		return nil, err
	}

	var tickers []FuturesTicker
	if err := json.Unmarshal(raw, &tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no ticker returned for %s", contract)
	}
	return &tickers[0], nil
}

func (c *GateClient) GetCandles(contract, interval string, limit int) ([]FuturesCandle, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/candlesticks", c.settle)
	query := fmt.Sprintf("contract=%s&interval=%s&limit=%d", contract, interval, limit)
	raw, err := c.doRequest(c.read, "GET", path, query, nil)
	if err != nil {
		return nil, err
	}

	var candles []FuturesCandle
	return candles, json.Unmarshal(raw, &candles)
}

// -----------------------------
// NUMERIC HELPERS
// -----------------------------

// ParsePrice converts an exchange decimal string to float64, returning 0 for
// empty or malformed values instead of failing the cycle.
func ParsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.WithField("value", s).Warn("unparseable decimal from exchange")
		return 0
	}
	f, _ := d.Float64()
	return f
}

// ContractMultiplier returns the quanto multiplier of a contract, defaulting
// to 1 when the exchange omits it (coin-sized contracts).
func ContractMultiplier(info *Contract) float64 {
	if info == nil || info.QuantoMultiplier == "" {
		return 1
	}
	m := ParsePrice(info.QuantoMultiplier)
	if m <= 0 {
		return 1
	}
	return m
}
