package domain

import "time"

// Candle is a fixed-interval OHLC bar built from ticks for one instrument.
// The aggregator owns exactly one open candle per instrument; a candle is
// emitted (and becomes immutable) when a tick for a later bucket arrives.
type Candle struct {
	Symbol     string    // Trading symbol (resolved from SecurityID)
	SecurityID string    // Exchange instrument identifier
	BucketTime time.Time // Start of the 1-minute bucket
	Open       float64
	High       float64
	Low        float64
	Close      float64
}

// NewCandle opens a candle seeded with the first tick of a bucket.
// All four OHLC fields start at the tick price, so low <= open,close <= high
// holds from construction onward.
func NewCandle(securityID string, bucket time.Time, price float64) *Candle {
	return &Candle{
		SecurityID: securityID,
		BucketTime: bucket,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
	}
}

// Apply folds a tick price into the open candle: high=max, low=min, close=last.
func (c *Candle) Apply(price float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
}

// IsBullish reports whether the bar closed above its open.
func (c *Candle) IsBullish() bool {
	return c.Close > c.Open
}

// RangePct returns the bar's full range as a fraction of its close,
// used to filter abnormally wide bars. Returns 0 for a zero close.
func (c *Candle) RangePct() float64 {
	if c.Close == 0 {
		return 0
	}
	return (c.High - c.Low) / c.Close
}
