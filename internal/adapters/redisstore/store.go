// Package redisstore backs the shared-state ports with Redis: atomic daily
// counters, the previous-day OHLC reference hash, the four event streams
// (consumer-group reads with a bounded block), and the publisher side used
// by the data worker.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

const (
	prevDayHashKey = "prev_day_ohlc"
	statusKeyBase  = "algo:status:"
	tokenKey       = "dhan_access_token"

	// Daily counters self-destruct well after the session they belong to.
	counterTTL = 48 * time.Hour

	tickStreamMaxLen = 5000
)

// Store implements ports.CounterStore, ports.ReferenceData, ports.EventFeed,
// ports.FeedPublisher and ports.StatusReporter on one Redis connection.
type Store struct {
	client *redis.Client
	logger ports.Logger

	group    string
	consumer string

	streamTicks   string
	streamCandles string
	streamOrders  string
	streamControl string
}

// Config holds configuration for the Redis store.
type Config struct {
	URL           string
	Logger        ports.Logger
	ConsumerGroup string
	ConsumerName  string

	StreamTicks   string
	StreamCandles string
	StreamOrders  string
	StreamControl string
}

// New connects to Redis and ensures the consumer groups exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for redis store")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %v", ports.ErrCounterUnavailable, err)
	}

	s := &Store{
		client:        client,
		logger:        cfg.Logger,
		group:         cfg.ConsumerGroup,
		consumer:      cfg.ConsumerName,
		streamTicks:   cfg.StreamTicks,
		streamCandles: cfg.StreamCandles,
		streamOrders:  cfg.StreamOrders,
		streamControl: cfg.StreamControl,
	}

	if s.group != "" {
		for _, stream := range s.streams() {
			err := client.XGroupCreateMkStream(ctx, stream, s.group, "$").Err()
			if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
				client.Close()
				return nil, fmt.Errorf("creating consumer group on %s: %w", stream, err)
			}
		}
	}

	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) streams() []string {
	return []string{s.streamCandles, s.streamTicks, s.streamOrders, s.streamControl}
}

// --- CounterStore ---

// Increment atomically adds one, arming the daily expiry on first use.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: INCR %s: %v", ports.ErrCounterUnavailable, key, err)
	}
	s.client.ExpireNX(ctx, key, counterTTL)
	return v, nil
}

// Decrement atomically subtracts one.
func (s *Store) Decrement(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: DECR %s: %v", ports.ErrCounterUnavailable, key, err)
	}
	return v, nil
}

// AddFloat atomically adds delta to a float counter.
func (s *Store) AddFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := s.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: INCRBYFLOAT %s: %v", ports.ErrCounterUnavailable, key, err)
	}
	s.client.ExpireNX(ctx, key, counterTTL)
	return v, nil
}

// GetFloat reads a float counter; missing keys read as zero.
func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %v", ports.ErrCounterUnavailable, key, err)
	}
	return v, nil
}

// Delete removes counters.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: DEL: %v", ports.ErrCounterUnavailable, err)
	}
	return nil
}

// --- ReferenceData ---

type prevDayRecord struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// PrevDayHigh returns the previous day's high for the symbol.
func (s *Store) PrevDayHigh(ctx context.Context, symbol string) (float64, bool, error) {
	rec, ok, err := s.prevDay(ctx, symbol)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.High, rec.High > 0, nil
}

// PrevDayLevels returns the full cached OHLC record, if present.
func (s *Store) PrevDayLevels(ctx context.Context, symbol string) (*ports.PrevDayLevels, bool, error) {
	rec, ok, err := s.prevDay(ctx, symbol)
	if err != nil || !ok {
		return nil, false, err
	}
	return &ports.PrevDayLevels{High: rec.High, Low: rec.Low, Close: rec.Close}, true, nil
}

func (s *Store) prevDay(ctx context.Context, symbol string) (*prevDayRecord, bool, error) {
	raw, err := s.client.HGet(ctx, prevDayHashKey, symbol).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("HGET %s %s: %w", prevDayHashKey, symbol, err)
	}
	var rec prevDayRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("malformed prev-day record for %s: %w", symbol, err)
	}
	return &rec, true, nil
}

// --- EventFeed ---

// Read blocks for at most `block` across the four streams and maps raw
// messages into typed events. Malformed payloads come back with a nil
// payload pointer so the consumer can log and ack them without stalling.
func (s *Store) Read(ctx context.Context, maxCount int, block time.Duration) ([]ports.FeedEvent, error) {
	streams := s.streams()
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  args,
		Count:    int64(maxCount),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil // Timed out with no messages; caller runs its periodic checks.
	}
	if err != nil {
		return nil, fmt.Errorf("XREADGROUP: %w", err)
	}

	var events []ports.FeedEvent
	for _, stream := range res {
		for _, msg := range stream.Messages {
			events = append(events, s.mapMessage(stream.Stream, msg))
		}
	}
	return events, nil
}

// Ack acknowledges one message in its consumer group.
func (s *Store) Ack(ctx context.Context, ev ports.FeedEvent) error {
	if ev.Stream == "" || ev.MessageID == "" {
		return nil
	}
	return s.client.XAck(ctx, ev.Stream, s.group, ev.MessageID).Err()
}

func (s *Store) mapMessage(stream string, msg redis.XMessage) ports.FeedEvent {
	ev := ports.FeedEvent{Stream: stream, MessageID: msg.ID}

	raw, _ := msg.Values["p"].(string)
	switch stream {
	case s.streamTicks:
		ev.Kind = ports.EventTick
		ev.Tick = parseTick(raw)
	case s.streamCandles:
		ev.Kind = ports.EventCandle
		ev.Candle = parseCandle(raw)
	case s.streamOrders:
		ev.Kind = ports.EventOrderUpdate
		ev.OrderUpdate = parseOrderUpdate(raw)
	case s.streamControl:
		ev.Kind = ports.EventControl
		ev.Control = parseControl(raw)
	}
	if raw == "" {
		s.logger.Debug(context.Background(), "Stream message missing payload field", map[string]interface{}{
			"stream": stream, "messageID": msg.ID,
		})
	}
	return ev
}

// The feed is lenient about field names: the broker's packets have shipped
// the price as LTP, last_price and lp across versions, and epoch timestamps
// in both seconds and milliseconds.

func parseTick(raw string) *ports.TickPayload {
	fields := decodeFields(raw)
	if fields == nil {
		return nil
	}
	secID := getString(fields, "securityId", "security_id")
	price := getFloat(fields, "LTP", "last_price", "lp", "ltp")
	if secID == "" || price <= 0 {
		return nil
	}

	ts := time.Now()
	if epoch := getFloat(fields, "exchange_time", "LTT", "ltt"); epoch > 0 {
		if epoch > 1e10 { // milliseconds
			ts = time.UnixMilli(int64(epoch))
		} else {
			ts = time.Unix(int64(epoch), 0)
		}
	}
	return &ports.TickPayload{SecurityID: secID, Price: price, EventTime: ts}
}

func parseCandle(raw string) *ports.CandlePayload {
	fields := decodeFields(raw)
	if fields == nil {
		return nil
	}
	tsStr := getString(fields, "ts")
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return nil
	}
	p := &ports.CandlePayload{
		Symbol:     getString(fields, "symbol"),
		SecurityID: getString(fields, "security_id", "securityId"),
		BucketTime: ts,
		Open:       getFloat(fields, "open"),
		High:       getFloat(fields, "high"),
		Low:        getFloat(fields, "low"),
		Close:      getFloat(fields, "close"),
	}
	if p.SecurityID == "" || p.Close <= 0 {
		return nil
	}
	return p
}

func parseOrderUpdate(raw string) *ports.OrderUpdatePayload {
	fields := decodeFields(raw)
	if fields == nil {
		return nil
	}
	p := &ports.OrderUpdatePayload{
		OrderID:     getString(fields, "orderId", "OrderNo"),
		Status:      getString(fields, "orderStatus", "OrderStatus"),
		FilledQty:   int(getFloat(fields, "filledQty", "FilledQty")),
		FilledPrice: getFloat(fields, "tradedPrice", "TradedPrice"),
		EventTime:   time.Now(),
	}
	if p.OrderID == "" {
		return nil
	}
	return p
}

func parseControl(raw string) *ports.ControlPayload {
	fields := decodeFields(raw)
	if fields == nil {
		return nil
	}
	p := &ports.ControlPayload{
		Action: getString(fields, "action"),
		Token:  getString(fields, "token"),
	}
	if p.Action == "" {
		return nil
	}
	return p
}

func decodeFields(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil
	}
	return fields
}

func getString(fields map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func getFloat(fields map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%f", &f); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}

// --- FeedPublisher ---

// PublishTick pushes a raw tick onto the market stream, trimmed so the
// stream stays light.
func (s *Store) PublishTick(ctx context.Context, p ports.TickPayload) error {
	payload, err := json.Marshal(map[string]interface{}{
		"securityId":    p.SecurityID,
		"LTP":           p.Price,
		"exchange_time": p.EventTime.Unix(),
	})
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamTicks,
		MaxLen: tickStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"p": string(payload)},
	}).Err()
}

// PublishCandle pushes a completed bar onto the candle stream.
func (s *Store) PublishCandle(ctx context.Context, p ports.CandlePayload) error {
	payload, err := json.Marshal(map[string]interface{}{
		"symbol":      p.Symbol,
		"security_id": p.SecurityID,
		"ts":          p.BucketTime.Format(time.RFC3339),
		"open":        p.Open,
		"high":        p.High,
		"low":         p.Low,
		"close":       p.Close,
	})
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamCandles,
		Values: map[string]interface{}{"p": string(payload)},
	}).Err()
}

// PublishOrderUpdate pushes a broker order event onto the orders stream.
func (s *Store) PublishOrderUpdate(ctx context.Context, p ports.OrderUpdatePayload) error {
	payload, err := json.Marshal(map[string]interface{}{
		"orderId":     p.OrderID,
		"orderStatus": p.Status,
		"filledQty":   p.FilledQty,
		"tradedPrice": p.FilledPrice,
	})
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamOrders,
		Values: map[string]interface{}{"p": string(payload)},
	}).Err()
}

// --- StatusReporter ---

// SetStatus publishes coarse process status for the dashboard.
func (s *Store) SetStatus(ctx context.Context, component, status string) error {
	return s.client.Set(ctx, statusKeyBase+component, status, 0).Err()
}

// AccessToken reads the broker session token the dashboard distributes.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", tokenKey, err)
	}
	return token, nil
}
