package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

const (
	defaultMarketFeedURL = "wss://api-feed.dhan.co"
	defaultOrderFeedURL  = "wss://api-order-update.dhan.co"

	subscribeRequestCode = 15
	subscribeChunkSize   = 100
)

// MarketFeed subscribes to the broker's live tick websocket and hands each
// tick to the supplied callback. Run blocks, reconnecting until the context
// is cancelled.
type MarketFeed struct {
	feedURL        string
	clientID       string
	token          string
	instruments    []string
	reconnectDelay time.Duration
	logger         ports.Logger
	onTick         func(ports.TickPayload)
}

// MarketFeedConfig holds configuration for the market feed.
type MarketFeedConfig struct {
	FeedURL        string
	ClientID       string
	AccessToken    string
	Instruments    []string // Security ids to subscribe
	ReconnectDelay time.Duration
	Logger         ports.Logger
	OnTick         func(ports.TickPayload)
}

// NewMarketFeed creates a market feed worker.
func NewMarketFeed(cfg MarketFeedConfig) (*MarketFeed, error) {
	if cfg.Logger == nil || cfg.OnTick == nil {
		return nil, fmt.Errorf("logger and tick callback are required for market feed")
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("%w: no instruments to subscribe", ports.ErrConfigurationError)
	}
	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = defaultMarketFeedURL
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &MarketFeed{
		feedURL:        feedURL,
		clientID:       cfg.ClientID,
		token:          cfg.AccessToken,
		instruments:    cfg.Instruments,
		reconnectDelay: delay,
		logger:         cfg.Logger,
		onTick:         cfg.OnTick,
	}, nil
}

// Run connects and consumes ticks until ctx is cancelled, reconnecting on
// any read or connect failure.
func (f *MarketFeed) Run(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			f.logger.Warn(ctx, "Market feed disconnected", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *MarketFeed) consume(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("subscribing instruments: %w", err)
	}
	f.logger.Info(ctx, "Market feed connected", map[string]interface{}{"instruments": len(f.instruments)})

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.handleFrame(data)
	}
}

func (f *MarketFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	q := url.Values{}
	q.Set("version", "2")
	q.Set("token", f.token)
	q.Set("clientId", f.clientID)
	q.Set("authType", "2")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.feedURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing market feed: %v", ports.ErrBrokerUnavailable, err)
	}
	return conn, nil
}

type subscribeInstrument struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityID      string `json:"SecurityId"`
}

type subscribeRequest struct {
	RequestCode     int                   `json:"RequestCode"`
	InstrumentCount int                   `json:"InstrumentCount"`
	InstrumentList  []subscribeInstrument `json:"InstrumentList"`
}

// subscribe sends the instrument list in chunks; the feed rejects oversized
// subscribe frames.
func (f *MarketFeed) subscribe(conn *websocket.Conn) error {
	for start := 0; start < len(f.instruments); start += subscribeChunkSize {
		end := start + subscribeChunkSize
		if end > len(f.instruments) {
			end = len(f.instruments)
		}
		list := make([]subscribeInstrument, 0, end-start)
		for _, id := range f.instruments[start:end] {
			list = append(list, subscribeInstrument{ExchangeSegment: exchangeSegmentNSE, SecurityID: id})
		}
		req := subscribeRequest{
			RequestCode:     subscribeRequestCode,
			InstrumentCount: len(list),
			InstrumentList:  list,
		}
		if err := conn.WriteJSON(req); err != nil {
			return err
		}
	}
	return nil
}

type tickFrame struct {
	SecurityID   string  `json:"securityId"`
	LTP          float64 `json:"LTP"`
	ExchangeTime int64   `json:"exchange_time"`
	LTT          int64   `json:"LTT"`
}

func (f *MarketFeed) handleFrame(data []byte) {
	var frame tickFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return // Non-tick frames (acks, heartbeats) are ignored.
	}
	if frame.SecurityID == "" || frame.LTP <= 0 {
		return
	}

	epoch := frame.ExchangeTime
	if epoch == 0 {
		epoch = frame.LTT
	}
	ts := time.Now()
	if epoch > 0 {
		if epoch > 1e10 {
			ts = time.UnixMilli(epoch)
		} else {
			ts = time.Unix(epoch, 0)
		}
	}
	f.onTick(ports.TickPayload{SecurityID: frame.SecurityID, Price: frame.LTP, EventTime: ts})
}

// OrderFeed subscribes to the broker's order-update websocket.
type OrderFeed struct {
	feedURL        string
	clientID       string
	token          string
	reconnectDelay time.Duration
	logger         ports.Logger
	onUpdate       func(ports.OrderUpdatePayload)
}

// OrderFeedConfig holds configuration for the order-update feed.
type OrderFeedConfig struct {
	FeedURL        string
	ClientID       string
	AccessToken    string
	ReconnectDelay time.Duration
	Logger         ports.Logger
	OnUpdate       func(ports.OrderUpdatePayload)
}

// NewOrderFeed creates an order-update feed worker.
func NewOrderFeed(cfg OrderFeedConfig) (*OrderFeed, error) {
	if cfg.Logger == nil || cfg.OnUpdate == nil {
		return nil, fmt.Errorf("logger and update callback are required for order feed")
	}
	feedURL := cfg.FeedURL
	if feedURL == "" {
		feedURL = defaultOrderFeedURL
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &OrderFeed{
		feedURL:        feedURL,
		clientID:       cfg.ClientID,
		token:          cfg.AccessToken,
		reconnectDelay: delay,
		logger:         cfg.Logger,
		onUpdate:       cfg.OnUpdate,
	}, nil
}

// Run connects and consumes order updates until ctx is cancelled.
func (f *OrderFeed) Run(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			f.logger.Warn(ctx, "Order feed disconnected", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *OrderFeed) consume(ctx context.Context) error {
	q := url.Values{}
	q.Set("token", f.token)
	q.Set("clientId", f.clientID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.feedURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: dialing order feed: %v", ports.ErrBrokerUnavailable, err)
	}
	defer conn.Close()
	f.logger.Info(ctx, "Order feed connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.handleFrame(data)
	}
}

type orderFrame struct {
	Data struct {
		OrderNo     string  `json:"OrderNo"`
		OrderStatus string  `json:"OrderStatus"`
		TradedQty   int     `json:"TradedQty"`
		TradedPrice float64 `json:"TradedPrice"`
	} `json:"Data"`
}

func (f *OrderFeed) handleFrame(data []byte) {
	var frame orderFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Data.OrderNo == "" {
		return
	}
	f.onUpdate(ports.OrderUpdatePayload{
		OrderID:     frame.Data.OrderNo,
		Status:      frame.Data.OrderStatus,
		FilledQty:   frame.Data.TradedQty,
		FilledPrice: frame.Data.TradedPrice,
		EventTime:   time.Now(),
	})
}
