package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
)

// Options configures the adapter. Empty credentials produce a data-only
// client whose capability record is not tradable.
type Options struct {
	RestURL    string
	WSURL      string
	Key        string
	Secret     string
	Passphrase string

	Currency string
	Asset    string
}

// Client implements the exchange interface against Bitget V2 spot.
// Trading calls go over REST; the ticker is served from the websocket
// worker when one is connected and fresh.
type Client struct {
	http   *resty.Client
	signer *Signer
	log    *slog.Logger

	capability domain.Capability
	symbol     string
	worker     *TickerWorker
}

func marketTable() []domain.MarketPair {
	return []domain.MarketPair{
		{
			Currency:       "USDT",
			Asset:          "BTC",
			MinAmount:      decimal.RequireFromString("0.0001"),
			MinPrice:       decimal.RequireFromString("0.01"),
			TickSize:       decimal.RequireFromString("0.01"),
			AmountDecimals: 6,
		},
		{
			Currency:       "USDT",
			Asset:          "ETH",
			MinAmount:      decimal.RequireFromString("0.001"),
			MinPrice:       decimal.RequireFromString("0.01"),
			TickSize:       decimal.RequireFromString("0.01"),
			AmountDecimals: 5,
		},
	}
}

// New builds a Bitget client for one market.
func New(opts Options, log *slog.Logger) (*Client, error) {
	restURL := opts.RestURL
	if restURL == "" {
		restURL = defaultRestURL
	}
	wsURL := opts.WSURL
	if wsURL == "" {
		wsURL = defaultWSURL
	}

	markets := marketTable()
	capability := domain.Capability{
		Name:    "bitget",
		Markets: markets,
		// Bitget's cancel response does not report whether the order
		// filled while the cancel was in flight.
		LimitedCancelConfirmation: true,
		Requires:                  []string{"key", "secret", "passphrase"},
		Interval:                  time.Second,
	}
	for _, m := range markets {
		if !capability.HasCurrency(m.Currency) {
			capability.Currencies = append(capability.Currencies, m.Currency)
		}
		if !capability.HasAsset(m.Asset) {
			capability.Assets = append(capability.Assets, m.Asset)
		}
	}

	market, ok := capability.Market(opts.Currency, opts.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s on bitget", domain.ErrUnknownMarket, opts.Currency, opts.Asset)
	}
	symbol := market.Asset + market.Currency

	c := &Client{
		http: resty.New().
			SetBaseURL(restURL).
			SetTimeout(10 * time.Second).
			SetHeader("locale", "en-US"),
		log:        infra.Component(log, "bitget", "symbol", symbol),
		capability: capability,
		symbol:     symbol,
	}

	switch {
	case opts.Key != "" && opts.Secret != "" && opts.Passphrase != "":
		c.signer = NewSigner(opts.Key, opts.Secret, opts.Passphrase)
		c.capability.Tradable = true
	case opts.Key == "" && opts.Secret == "" && opts.Passphrase == "":
		c.capability.Tradable = false
	default:
		return nil, fmt.Errorf("%w: bitget needs key, secret and passphrase together", domain.ErrMissingCredentials)
	}

	c.worker = NewTickerWorker(wsURL, symbol, c.log)
	return c, nil
}

func (c *Client) Capabilities() domain.Capability {
	return c.capability
}

// Connect starts the websocket ticker feed. Optional: without it every
// GetTicker goes over REST.
func (c *Client) Connect(ctx context.Context) {
	c.worker.Connect(ctx)
}

// Disconnect stops the websocket ticker feed.
func (c *Client) Disconnect() {
	c.worker.Disconnect()
}

func (c *Client) GetTicker(ctx context.Context) (domain.Ticker, error) {
	if tk, ok := c.worker.Ticker(); ok {
		return tk, nil
	}

	var data []restTicker
	err := c.call(ctx, "getTicker", http.MethodGet, "/api/v2/spot/market/tickers", "symbol="+c.symbol, nil, &data)
	if err != nil {
		return domain.Ticker{}, err
	}
	if len(data) == 0 {
		return domain.Ticker{}, domain.NewRetryableError("getTicker", fmt.Errorf("no ticker for %s", c.symbol), 0)
	}

	bid, err1 := decimal.NewFromString(data[0].BidPr)
	ask, err2 := decimal.NewFromString(data[0].AskPr)
	if err1 != nil || err2 != nil {
		return domain.Ticker{}, domain.NewExchangeError("getTicker", fmt.Errorf("malformed ticker for %s", c.symbol))
	}
	return domain.Ticker{Bid: bid, Ask: ask}, nil
}

func (c *Client) Buy(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return c.place(ctx, "buy", amount, price)
}

func (c *Client) Sell(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return c.place(ctx, "sell", amount, price)
}

func (c *Client) place(ctx context.Context, side string, amount, price decimal.Decimal) (string, error) {
	req := placeOrderRequest{
		Symbol:    c.symbol,
		Side:      side,
		OrderType: "limit",
		Force:     "gtc",
		Price:     price.String(),
		Size:      amount.String(),
		ClientOID: uuid.NewString(),
	}

	var data placeOrderData
	if err := c.call(ctx, side, http.MethodPost, "/api/v2/spot/trade/place-order", "", req, &data); err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", domain.NewExchangeError(side, errors.New("order accepted without an id"))
	}

	c.log.Debug("order placed",
		slog.String("side", side),
		slog.String("id", data.OrderID),
		slog.String("price", req.Price),
		slog.String("size", req.Size))
	return data.OrderID, nil
}

func (c *Client) CheckOrder(ctx context.Context, id string) (domain.CheckResult, error) {
	info, err := c.orderInfo(ctx, "checkOrder", id)
	if err != nil {
		return domain.CheckResult{}, err
	}

	var res domain.CheckResult
	switch info.Status {
	case "filled":
		res.Executed = true
	case "live", "new", "init", "partially_filled":
		res.Open = true
	}
	if filled, err := decimal.NewFromString(info.BaseVolume); err == nil {
		res.Filled = &filled
	}
	return res, nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) (domain.CancelResult, error) {
	req := cancelOrderRequest{Symbol: c.symbol, OrderID: id}

	err := c.call(ctx, "cancelOrder", http.MethodPost, "/api/v2/spot/trade/cancel-order", "", req, nil)
	if err != nil {
		var ee *domain.ExchangeError
		if errors.As(err, &ee) && ee.Kind == domain.KindAbort {
			// The cancel lost the race: the order filled first.
			return domain.CancelResult{Filled: true}, nil
		}
		return domain.CancelResult{}, err
	}

	// No fill information in the cancel response; callers reconcile via
	// CheckOrder, as LimitedCancelConfirmation announces.
	return domain.CancelResult{}, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (domain.OrderRecord, error) {
	info, err := c.orderInfo(ctx, "getOrder", id)
	if err != nil {
		return domain.OrderRecord{}, err
	}

	rec := domain.OrderRecord{Fees: make(map[string]decimal.Decimal)}
	if p, err := decimal.NewFromString(info.PriceAvg); err == nil && p.Sign() > 0 {
		rec.Price = p
	} else if p, err := decimal.NewFromString(info.Price); err == nil {
		rec.Price = p
	}
	if v, err := decimal.NewFromString(info.BaseVolume); err == nil {
		rec.Amount = v
	}
	if ms, err := strconv.ParseInt(info.CTime, 10, 64); err == nil {
		rec.Date = time.UnixMilli(ms)
	}

	// feeDetail is a JSON blob keyed by fee currency. Fees come back
	// negative; store their magnitude.
	if info.FeeDetail != "" {
		var detail map[string]feeEntry
		if err := json.Unmarshal([]byte(info.FeeDetail), &detail); err == nil {
			for coin, entry := range detail {
				if coin == "newFees" {
					continue
				}
				if fee, err := decimal.NewFromString(entry.TotalFee); err == nil {
					rec.Fees[coin] = fee.Abs()
				}
			}
		}
	}
	return rec, nil
}

func (c *Client) orderInfo(ctx context.Context, op, id string) (orderInfoData, error) {
	var data []orderInfoData
	err := c.call(ctx, op, http.MethodGet, "/api/v2/spot/trade/orderInfo", "orderId="+id, nil, &data)
	if err != nil {
		return orderInfoData{}, err
	}
	if len(data) == 0 {
		return orderInfoData{}, domain.NewExchangeError(op, fmt.Errorf("order %s not found", id))
	}
	return data[0], nil
}

func (c *Client) GetPortfolio(ctx context.Context) ([]domain.Balance, error) {
	var data []assetData
	err := c.call(ctx, "getPortfolio", http.MethodGet, "/api/v2/spot/account/assets", "", nil, &data)
	if err != nil {
		return nil, err
	}

	balances := make([]domain.Balance, 0, len(data))
	for _, a := range data {
		amount, err := decimal.NewFromString(a.Available)
		if err != nil {
			continue
		}
		balances = append(balances, domain.Balance{Name: a.Coin, Amount: amount})
	}
	return balances, nil
}

func (c *Client) GetFee(ctx context.Context) (decimal.Decimal, error) {
	var data []symbolInfo
	err := c.call(ctx, "getFee", http.MethodGet, "/api/v2/spot/public/symbols", "symbol="+c.symbol, nil, &data)
	if err != nil {
		return decimal.Zero, err
	}
	if len(data) == 0 {
		return decimal.Zero, domain.NewExchangeError("getFee", fmt.Errorf("no symbol info for %s", c.symbol))
	}
	fee, err := decimal.NewFromString(data[0].TakerFeeRate)
	if err != nil {
		return decimal.Zero, domain.NewExchangeError("getFee", fmt.Errorf("malformed fee rate %q", data[0].TakerFeeRate))
	}
	return fee, nil
}

// call runs one REST round trip, signs it when credentials are present
// and classifies every failure at this boundary.
func (c *Client) call(ctx context.Context, op, method, path, query string, body, out any) error {
	req := c.http.R().SetContext(ctx)

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return domain.NewExchangeError(op, err)
		}
		bodyStr = string(raw)
		req.SetHeader("Content-Type", "application/json").SetBody(raw)
	}
	if query != "" {
		req.SetQueryString(query)
	}
	if c.signer != nil {
		req.SetHeaders(c.signer.Headers(method, path, query, bodyStr))
	}

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.Get(path)
	case http.MethodPost:
		resp, err = req.Post(path)
	default:
		return domain.NewExchangeError(op, fmt.Errorf("unsupported method %s", method))
	}
	if err != nil {
		// Transport-level failure, worth a bounded number of retries.
		return domain.NewRetryableError(op, err, 5)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return domain.NewAuthError(op, fmt.Errorf("auth rejected: %s", resp.Body()))
	case resp.StatusCode() == http.StatusTooManyRequests:
		return domain.NewTransientError(op, fmt.Errorf("rate limited: %s", resp.Status()), time.Second)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return domain.NewRetryableError(op, fmt.Errorf("server error: %s", resp.Status()), 5)
	case resp.StatusCode() != http.StatusOK:
		return domain.NewExchangeError(op, fmt.Errorf("http %d: %s", resp.StatusCode(), resp.Body()))
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return domain.NewExchangeError(op, fmt.Errorf("malformed response: %w", err))
	}
	if envelope.Code != codeOK {
		return c.classifyBusiness(op, envelope)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return domain.NewExchangeError(op, fmt.Errorf("malformed data: %w", err))
		}
	}
	return nil
}

func (c *Client) classifyBusiness(op string, envelope apiResponse) error {
	err := fmt.Errorf("bitget %s: %s", envelope.Code, envelope.Msg)
	switch envelope.Code {
	case codeInsufficientBalance:
		return domain.NewInsufficientFundsError(op, err)
	case codeOrderAlreadyFilled:
		return &domain.ExchangeError{Op: op, Kind: domain.KindAbort, Err: err}
	case codeTooManyRequests:
		return domain.NewTransientError(op, err, time.Second)
	case codeSignError, codeInvalidAPIKey:
		return domain.NewAuthError(op, err)
	}
	return domain.NewExchangeError(op, err)
}
