package bitget

import (
	"encoding/json"
	"time"
)

const (
	defaultRestURL = "https://api.bitget.com"
	defaultWSURL   = "wss://ws.bitget.com/v2/ws/public"

	codeOK = "00000"

	// Business codes the adapter classifies specially.
	codeInsufficientBalance = "43012"
	codeOrderAlreadyFilled  = "43026"
	codeTooManyRequests     = "429"
	codeSignError           = "40009"
	codeInvalidAPIKey       = "40037"

	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second

	// tickerStaleAfter bounds how old a websocket ticker may be before
	// GetTicker falls back to REST.
	tickerStaleAfter = 10 * time.Second
)

// apiResponse is the common Bitget V2 envelope.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Force     string `json:"force"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	ClientOID string `json:"clientOid"`
}

type placeOrderData struct {
	OrderID   string `json:"orderId"`
	ClientOID string `json:"clientOid"`
}

type cancelOrderRequest struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"orderId"`
}

type orderInfoData struct {
	OrderID    string `json:"orderId"`
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	PriceAvg   string `json:"priceAvg"`
	Size       string `json:"size"`
	BaseVolume string `json:"baseVolume"`
	Status     string `json:"status"`
	CTime      string `json:"cTime"`
	FeeDetail  string `json:"feeDetail"`
}

// feeEntry is one currency's slice of an order's feeDetail blob.
type feeEntry struct {
	TotalFee string `json:"totalFee"`
}

type restTicker struct {
	Symbol string `json:"symbol"`
	LastPr string `json:"lastPr"`
	BidPr  string `json:"bidPr"`
	AskPr  string `json:"askPr"`
}

type assetData struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

type symbolInfo struct {
	Symbol       string `json:"symbol"`
	TakerFeeRate string `json:"takerFeeRate"`
	MakerFeeRate string `json:"makerFeeRate"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type wsTickerResponse struct {
	Action string         `json:"action"`
	Arg    subscribeArg   `json:"arg"`
	Data   []wsTickerData `json:"data"`
	Ts     int64          `json:"ts"`
}

type wsTickerData struct {
	InstID string `json:"instId"`
	LastPr string `json:"lastPr"`
	BidPr  string `json:"bidPr"`
	AskPr  string `json:"askPr"`
}
