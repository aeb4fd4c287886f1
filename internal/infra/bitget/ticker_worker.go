package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
)

// TickerWorker keeps a live best bid/ask for one symbol over the Bitget
// public websocket. It reconnects forever with exponential backoff; the
// client falls back to REST while the cache is stale.
type TickerWorker struct {
	url    string
	symbol string
	log    *slog.Logger

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	ticker  *domain.Ticker
	updated time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTickerWorker(url, symbol string, log *slog.Logger) *TickerWorker {
	return &TickerWorker{
		url:    url,
		symbol: symbol,
		log:    log.With("worker", "ticker"),
	}
}

// Connect starts the connection loop in the background.
func (w *TickerWorker) Connect(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
}

// Ticker returns the cached book snapshot when it is fresh enough.
func (w *TickerWorker) Ticker() (domain.Ticker, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ticker == nil || time.Since(w.updated) > tickerStaleAfter {
		return domain.Ticker{}, false
	}
	return *w.ticker, true
}

func (w *TickerWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.log.Warn("websocket connection failed",
				slog.String("error", err.Error()),
				slog.Int("retry", retryCount))
			retryCount++
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay(retryCount)):
			}
			continue
		}
		retryCount = 0
		w.readLoop(ctx)
	}
}

func reconnectDelay(retry int) time.Duration {
	delay := time.Second
	for i := 1; i < retry && delay < time.Minute; i++ {
		delay *= 2
	}
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

func (w *TickerWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	go w.pingLoop(ctx)
	w.log.Info("websocket connected", slog.String("url", w.url))
	return nil
}

func (w *TickerWorker) subscribe() error {
	req := subscribeRequest{
		Op:   "subscribe",
		Args: []subscribeArg{{InstType: "SPOT", Channel: "ticker", InstID: w.symbol}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *TickerWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.threadSafeWrite(websocket.TextMessage, []byte("ping")) != nil {
				return
			}
		}
	}
}

func (w *TickerWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return errors.New("no connection")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *TickerWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.closeConnection()
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		if string(msg) == "pong" {
			continue
		}
		w.handleMessage(msg)
	}
}

func (w *TickerWorker) handleMessage(msg []byte) {
	var resp wsTickerResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return
	}
	if resp.Arg.Channel != "ticker" || len(resp.Data) == 0 {
		return
	}

	for _, data := range resp.Data {
		if data.InstID != w.symbol {
			continue
		}
		bid, err1 := decimal.NewFromString(data.BidPr)
		ask, err2 := decimal.NewFromString(data.AskPr)
		if err1 != nil || err2 != nil {
			continue
		}
		tk := domain.Ticker{Bid: bid, Ask: ask}
		if !tk.Valid() {
			continue
		}

		w.mu.Lock()
		w.ticker = &tk
		w.updated = time.Now()
		w.mu.Unlock()
	}
}

func (w *TickerWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Disconnect stops the loop and closes the connection.
func (w *TickerWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
