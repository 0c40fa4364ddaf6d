package domain

import "time"

// Shared counter keys, dated in the exchange timezone so the daily limits
// reset at the session boundary, not UTC midnight.

// TradeCountKey is the daily trade-admission counter key.
func TradeCountKey(day time.Time) string {
	return "trade_count:" + day.Format("2006-01-02")
}

// DailyPnLKey is the daily realized P&L counter key.
func DailyPnLKey(day time.Time) string {
	return "daily_pnl:" + day.Format("2006-01-02")
}
