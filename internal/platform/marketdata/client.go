// Package marketdata is the websocket-based MarketDataProvider (spec §6).
// It is always the provider wired in internal/app: the USE_IBKR_MARKET_DATA
// flag is read into config but does not select between providers, and the
// brokerage client (internal/platform/brokergw) serves no time, option-chain
// or VIX data.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zerodte/execd/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second

	// staleAfter bounds how long a cached push update may be served before
	// a read is treated as unavailable; the feed is expected to push at
	// least this often while connected.
	staleAfter = 15 * time.Second
)

// subscribeCommand is the outbound subscription message.
type subscribeCommand struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Ticker  string `json:"ticker,omitempty"`
	Expiry  string `json:"expiry,omitempty"`
}

// wireEnvelope identifies the channel a push message belongs to.
type wireEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wireTime struct {
	Now        time.Time `json:"now"`
	MarketOpen bool      `json:"market_open"`
	Status     string    `json:"status"`
	OpensAt    time.Time `json:"opens_at"`
	ClosesAt   time.Time `json:"closes_at"`
}

type wireVIX struct {
	Level float64 `json:"level"`
}

type wireQuote struct {
	Strike float64 `json:"strike"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
	OI     int64   `json:"oi"`
	IV     float64 `json:"iv"`
	ITM    bool    `json:"itm"`
}

type wireOptionChain struct {
	Ticker          string      `json:"ticker"`
	Expiry          string      `json:"expiry"`
	UnderlyingPrice float64     `json:"underlying_price"`
	Calls           []wireQuote `json:"calls"`
	Puts            []wireQuote `json:"puts"`
	AllExpiries     []string    `json:"all_expiries"`
}

// cachedSnapshot wraps a push-delivered value with the time it arrived, so
// reads can detect staleness independent of the sub-fetch's own deadline.
type cachedSnapshot[T any] struct {
	value     T
	updatedAt time.Time
	present   bool
}

// Client is a websocket MarketDataProvider. It connects once, subscribes to
// time/vix/option_chain channels, and serves the three read methods from an
// in-memory cache refreshed by the feed's pushes.
type Client struct {
	wsURL string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}

	timeSnap  cachedSnapshot[wireTime]
	vixSnap   cachedSnapshot[wireVIX]
	chains    map[string]cachedSnapshot[wireOptionChain] // key: ticker+"|"+expiry
	subscribed map[string]subscribeCommand
}

// New creates a Client bound to wsURL. Connect must be called before use.
func New(wsURL string) *Client {
	return &Client{
		wsURL:      wsURL,
		done:       make(chan struct{}),
		chains:     make(map[string]cachedSnapshot[wireOptionChain]),
		subscribed: make(map[string]subscribeCommand),
	}
}

// Connect dials the feed, subscribes to the always-on channels, and starts
// the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("marketdata: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("marketdata: connect: %w", err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	if err := c.send(subscribeCommand{Type: "subscribe", Channel: "time"}); err != nil {
		return fmt.Errorf("marketdata: subscribe time: %w", err)
	}
	if err := c.send(subscribeCommand{Type: "subscribe", Channel: "vix"}); err != nil {
		return fmt.Errorf("marketdata: subscribe vix: %w", err)
	}
	for _, cmd := range c.subscribed {
		if err := c.send(cmd); err != nil {
			return fmt.Errorf("marketdata: restore subscription: %w", err)
		}
	}

	return nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return c.conn.Close()
	}
	return nil
}

func (c *Client) send(cmd subscribeCommand) error {
	if c.conn == nil {
		return fmt.Errorf("marketdata: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func chainKey(ticker, expiry string) string { return ticker + "|" + expiry }

// ensureChainSubscription subscribes to an option-chain channel the first
// time it's requested; subsequent Time/VIX calls don't pay for it.
func (c *Client) ensureChainSubscription(ctx context.Context, ticker, expiry string) {
	key := chainKey(ticker, expiry)

	c.mu.Lock()
	if _, ok := c.subscribed[key]; ok {
		c.mu.Unlock()
		return
	}
	cmd := subscribeCommand{Type: "subscribe", Channel: "option_chain", Ticker: ticker, Expiry: expiry}
	c.subscribed[key] = cmd
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.send(cmd)
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.reconnect()
			return
		}

		c.handleMessage(message)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
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

func (c *Client) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-c.done:
			return
		default:
		}
		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.Connect(ctx)
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

func (c *Client) handleMessage(raw []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	now := time.Now()

	switch env.Channel {
	case "time":
		var wt wireTime
		if err := json.Unmarshal(env.Data, &wt); err != nil {
			return
		}
		c.mu.Lock()
		c.timeSnap = cachedSnapshot[wireTime]{value: wt, updatedAt: now, present: true}
		c.mu.Unlock()

	case "vix":
		var wv wireVIX
		if err := json.Unmarshal(env.Data, &wv); err != nil {
			return
		}
		c.mu.Lock()
		c.vixSnap = cachedSnapshot[wireVIX]{value: wv, updatedAt: now, present: true}
		c.mu.Unlock()

	case "option_chain":
		var wc wireOptionChain
		if err := json.Unmarshal(env.Data, &wc); err != nil {
			return
		}
		c.mu.Lock()
		c.chains[chainKey(wc.Ticker, wc.Expiry)] = cachedSnapshot[wireOptionChain]{value: wc, updatedAt: now, present: true}
		c.mu.Unlock()
	}
}

// Time implements domain.MarketDataProvider.
func (c *Client) Time(ctx context.Context) (domain.TimeSnapshot, error) {
	c.mu.RLock()
	snap := c.timeSnap
	c.mu.RUnlock()

	if !snap.present || time.Since(snap.updatedAt) > staleAfter {
		return domain.TimeSnapshot{}, fmt.Errorf("marketdata: time snapshot unavailable or stale")
	}

	return domain.TimeSnapshot{
		Now:        snap.value.Now,
		MarketOpen: snap.value.MarketOpen,
		Status:     domain.MarketStatus(snap.value.Status),
		OpensAt:    snap.value.OpensAt,
		ClosesAt:   snap.value.ClosesAt,
	}, nil
}

// VIX implements domain.MarketDataProvider.
func (c *Client) VIX(ctx context.Context) (domain.VIXSnapshot, error) {
	c.mu.RLock()
	snap := c.vixSnap
	c.mu.RUnlock()

	if !snap.present || time.Since(snap.updatedAt) > staleAfter {
		return domain.VIXSnapshot{}, fmt.Errorf("marketdata: vix snapshot unavailable or stale")
	}

	return domain.VIXSnapshot{Level: snap.value.Level, Band: domain.BandFor(snap.value.Level)}, nil
}

// OptionChain implements domain.MarketDataProvider. The first call for a
// given (ticker, expiry) triggers a subscription and returns unavailable
// until the feed's first push lands; callers retry on the next task.
func (c *Client) OptionChain(ctx context.Context, ticker, expiry string) (domain.OptionChainSnapshot, error) {
	c.ensureChainSubscription(ctx, ticker, expiry)

	c.mu.RLock()
	snap, ok := c.chains[chainKey(ticker, expiry)]
	c.mu.RUnlock()

	if !ok || !snap.present || time.Since(snap.updatedAt) > staleAfter {
		return domain.OptionChainSnapshot{}, fmt.Errorf("marketdata: option chain %s/%s unavailable or stale", ticker, expiry)
	}

	out := domain.OptionChainSnapshot{
		Ticker:          snap.value.Ticker,
		Expiry:          snap.value.Expiry,
		UnderlyingPrice: snap.value.UnderlyingPrice,
		AllExpiries:     snap.value.AllExpiries,
	}
	for _, q := range snap.value.Calls {
		out.Calls = append(out.Calls, quoteFromWire(q))
	}
	for _, q := range snap.value.Puts {
		out.Puts = append(out.Puts, quoteFromWire(q))
	}
	return out, nil
}

func quoteFromWire(q wireQuote) domain.OptionQuote {
	return domain.OptionQuote{
		Strike: q.Strike,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Last:   q.Last,
		Mid:    (q.Bid + q.Ask) / 2,
		Volume: q.Volume,
		OI:     q.OI,
		IV:     q.IV,
		ITM:    q.ITM,
	}
}

var _ domain.MarketDataProvider = (*Client)(nil)
