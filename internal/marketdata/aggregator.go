package marketdata

import (
	"context"
	"fmt"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// EmitFunc receives each completed candle. The candle is immutable once
// handed off.
type EmitFunc func(candle *domain.Candle)

// Aggregator folds a stream of ticks into one open 1-minute candle per
// instrument and hands completed candles to the emit callback on minute
// rollover. It also maintains the last-price snapshot used by the position
// monitor. The bucket map is private to one process and needs no locking:
// the engine drives Ingest from a single consumer goroutine.
type Aggregator struct {
	logger    ports.Logger
	symbols   map[string]string // security id -> trading symbol
	open      map[string]*domain.Candle
	lastPrice map[string]float64
	emit      EmitFunc
}

// Config holds dependencies for the aggregator.
type Config struct {
	Logger ports.Logger
	// Symbols maps security ids to trading symbols. Candles for unknown
	// instruments are still built but emitted with an empty Symbol.
	Symbols map[string]string
	Emit    EmitFunc
}

// New creates an aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for aggregator")
	}
	if cfg.Emit == nil {
		return nil, fmt.Errorf("emit callback is required for aggregator")
	}
	symbols := cfg.Symbols
	if symbols == nil {
		symbols = map[string]string{}
	}
	return &Aggregator{
		logger:    cfg.Logger,
		symbols:   symbols,
		open:      make(map[string]*domain.Candle),
		lastPrice: make(map[string]float64),
		emit:      cfg.Emit,
	}, nil
}

// Ingest processes one tick. Invalid ticks (missing id, non-positive price)
// are dropped with no state change.
//
// Ticks whose bucket is earlier than the currently open candle's bucket are
// applied to the open candle as ordinary updates. This mirrors the feed's
// last-write-wins behavior under out-of-order delivery and is a known source
// of minor OHLC distortion, accepted in favor of availability.
func (a *Aggregator) Ingest(tick domain.Tick) {
	if !tick.IsValid() {
		a.logger.Debug(context.Background(), "Dropping invalid tick", map[string]interface{}{
			"securityID": tick.SecurityID,
			"price":      tick.Price,
		})
		return
	}

	// Snapshot update is independent of bucket logic.
	a.lastPrice[tick.SecurityID] = tick.Price

	bucket := tick.Bucket()
	current, ok := a.open[tick.SecurityID]
	if !ok {
		a.open[tick.SecurityID] = domain.NewCandle(tick.SecurityID, bucket, tick.Price)
		return
	}

	if bucket.After(current.BucketTime) {
		a.finalize(current)
		a.open[tick.SecurityID] = domain.NewCandle(tick.SecurityID, bucket, tick.Price)
		return
	}

	current.Apply(tick.Price)
}

func (a *Aggregator) finalize(c *domain.Candle) {
	c.Symbol = a.symbols[c.SecurityID]
	a.emit(c)
}

// LastPrice returns the latest seen price for an instrument.
func (a *Aggregator) LastPrice(securityID string) (float64, bool) {
	p, ok := a.lastPrice[securityID]
	return p, ok
}

// Snapshot returns the full last-price map. The returned map is the live
// one; callers on the engine goroutine may read it directly.
func (a *Aggregator) Snapshot() map[string]float64 {
	return a.lastPrice
}
