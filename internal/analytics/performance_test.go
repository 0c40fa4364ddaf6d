package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

func closedTrade(symbol string, pnl float64, exit time.Time, reason domain.ExitReason) *domain.Trade {
	return &domain.Trade{
		Symbol:     symbol,
		Status:     domain.StatusClosed,
		Quantity:   10,
		PnL:        pnl,
		EntryTime:  exit.Add(-30 * time.Minute),
		ExitTime:   exit,
		ExitReason: reason,
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("RELIANCE", 1000, base, domain.ExitReasonTarget),
		closedTrade("TCS", -400, base.Add(time.Hour), domain.ExitReasonStopLoss),
	}

	m := Summarize(trades)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Equal(t, 600.0, m.NetPnL)
	assert.Equal(t, 1000.0, m.AverageWin)
	assert.Equal(t, -400.0, m.AverageLoss)
	assert.Equal(t, 2.5, m.ProfitFactor)
	assert.Equal(t, 30*time.Minute, m.AverageHoldTime)
	assert.Equal(t, 1, m.ByExitReason[domain.ExitReasonTarget])
	assert.Equal(t, 1, m.ByExitReason[domain.ExitReasonStopLoss])
	assert.Len(t, m.PnLCurve, 2)
}

func TestSummarizeEmpty(t *testing.T) {
	m := Summarize(nil)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.NetPnL)
	assert.Empty(t, m.PnLCurve)
}

func TestSummarizeDrawdown(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("A", 1000, base, domain.ExitReasonTarget),
		closedTrade("B", -600, base.Add(time.Hour), domain.ExitReasonStopLoss),
		closedTrade("C", -500, base.Add(2*time.Hour), domain.ExitReasonStopLoss),
		closedTrade("D", 300, base.Add(3*time.Hour), domain.ExitReasonTarget),
	}

	m := Summarize(trades)

	// Peak is 1000 after the first trade, trough is -100 two trades later.
	assert.Equal(t, 1100.0, m.MaxDrawdown)
	assert.Equal(t, 200.0, m.NetPnL)
	assert.Equal(t, 2, m.MaxConsecutiveLosses)
	assert.Equal(t, 1, m.MaxConsecutiveWins)
}

func TestSummarizeSkipsUnfilledTrades(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("RELIANCE", 500, base, domain.ExitReasonTarget),
		{Symbol: "TCS", Status: domain.StatusExpired, ExitReason: domain.ExitReasonTimeout},
	}

	m := Summarize(trades)

	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 500.0, m.NetPnL)
	assert.Equal(t, 1, m.ByExitReason[domain.ExitReasonTimeout])
}

func TestSortedSymbolPnL(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("TCS", -400, base, domain.ExitReasonStopLoss),
		closedTrade("RELIANCE", 1000, base.Add(time.Hour), domain.ExitReasonTarget),
		closedTrade("RELIANCE", 200, base.Add(2*time.Hour), domain.ExitReasonTarget),
	}

	ranked := Summarize(trades).SortedSymbolPnL()

	assert.Len(t, ranked, 2)
	assert.Equal(t, "RELIANCE", ranked[0].Symbol)
	assert.Equal(t, 1200.0, ranked[0].PnL)
	assert.Equal(t, "TCS", ranked[1].Symbol)
}
