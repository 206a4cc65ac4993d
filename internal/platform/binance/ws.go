package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

const (
	defaultStreamURL = "wss://fstream.binance.com"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 3 * time.Minute

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// MarkPriceHandler is called for every mark price update on a subscribed
// symbol.
type MarkPriceHandler func(symbol domain.Symbol, quote domain.FundingRateQuote)

// WSClient streams mark price and funding rate updates from the futures
// combined-stream endpoint.
type WSClient struct {
	streamURL string
	symbols   []domain.Symbol
	canonical map[string]domain.Symbol // native ticker -> canonical symbol
	conn      *websocket.Conn

	mu     sync.RWMutex
	closed bool

	handlers  []MarkPriceHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a mark price stream client for the given symbols.
// streamURL may be empty to use the production endpoint.
func NewWSClient(streamURL string, symbols []domain.Symbol) *WSClient {
	if streamURL == "" {
		streamURL = defaultStreamURL
	}
	canonical := make(map[string]domain.Symbol, len(symbols))
	for _, s := range symbols {
		canonical[nativeSymbol(s)] = s
	}
	return &WSClient{
		streamURL: streamURL,
		symbols:   symbols,
		canonical: canonical,
		done:      make(chan struct{}),
	}
}

// Connect establishes the combined-stream connection and starts the read
// and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.streamEndpoint(), nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	return nil
}

// OnMarkPrice registers a handler called for every mark price update.
func (w *WSClient) OnMarkPrice(handler MarkPriceHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts down the stream connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// streamEndpoint builds the combined-stream URL with one markPrice stream
// per symbol.
func (w *WSClient) streamEndpoint() string {
	streams := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		streams = append(streams, strings.ToLower(nativeSymbol(s))+"@markPrice")
	}
	return w.streamURL + "/stream?streams=" + strings.Join(streams, "/")
}

// readLoop continuously reads messages and dispatches them to handlers.
// On disconnect it attempts reconnection.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a combined-stream message and routes mark price
// updates.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope wsCombinedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	var upd wsMarkPrice
	if err := json.Unmarshal(envelope.Data, &upd); err != nil {
		return
	}
	if upd.EventType != "markPriceUpdate" {
		return
	}

	rate, err := strconv.ParseFloat(upd.FundingRate, 64)
	if err != nil {
		return
	}
	mark, err := strconv.ParseFloat(upd.MarkPrice, 64)
	if err != nil {
		return
	}

	symbol, ok := w.canonical[upd.Symbol]
	if !ok {
		return
	}

	quote := domain.FundingRateQuote{
		Rate:            rate,
		MarkPrice:       mark,
		NextFundingTime: time.UnixMilli(upd.NextFundingTime).UTC(),
		Period:          domain.DefaultFundingPeriod,
		Timestamp:       time.UnixMilli(upd.EventTime).UTC(),
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(symbol, quote)
	}
}

// reconnect attempts to re-establish the connection with exponential
// backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
