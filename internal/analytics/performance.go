// Package analytics summarises closed trades into session performance
// metrics for the end-of-day report.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

// SessionMetrics holds performance metrics over a set of closed trades.
type SessionMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	NetPnL        float64
	GrossProfit   float64
	GrossLoss     float64
	ProfitFactor  float64
	AverageWin    float64
	AverageLoss   float64
	Expectancy    float64
	MaxDrawdown   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldTime      time.Duration

	ByExitReason map[domain.ExitReason]int
	BySymbol     map[string]float64
	PnLCurve     []PnLPoint
}

// PnLPoint is one step on the cumulative realised PnL curve.
type PnLPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// Summarize computes session metrics from closed trades. Trades without an
// exit time (failed entries, expired setups) count toward the reason
// breakdown but not the PnL statistics.
func Summarize(trades []*domain.Trade) *SessionMetrics {
	metrics := &SessionMetrics{
		ByExitReason: make(map[domain.ExitReason]int),
		BySymbol:     make(map[string]float64),
		PnLCurve:     make([]PnLPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return metrics
	}

	filled := make([]*domain.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade.ExitReason != "" {
			metrics.ByExitReason[trade.ExitReason]++
		}
		if trade.Status == domain.StatusClosed && !trade.ExitTime.IsZero() {
			filled = append(filled, trade)
		}
	}
	sort.Slice(filled, func(i, j int) bool {
		return filled[i].ExitTime.Before(filled[j].ExitTime)
	})

	var cumulative, peak float64
	var consecutiveWins, consecutiveLosses int
	var totalHold time.Duration

	for _, trade := range filled {
		metrics.TotalTrades++
		metrics.NetPnL += trade.PnL
		metrics.BySymbol[trade.Symbol] += trade.PnL
		totalHold += trade.ExitTime.Sub(trade.EntryTime)

		if trade.PnL > 0 {
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PnL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			metrics.GrossLoss += trade.PnL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		cumulative += trade.PnL
		peak = math.Max(peak, cumulative)
		drawdown := peak - cumulative
		if drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = drawdown
		}
		metrics.PnLCurve = append(metrics.PnLCurve, PnLPoint{
			Time:     trade.ExitTime,
			Value:    cumulative,
			Drawdown: drawdown,
		})
	}

	if metrics.TotalTrades > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
		metrics.AverageHoldTime = totalHold / time.Duration(metrics.TotalTrades)
	}
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss != 0 {
		metrics.ProfitFactor = metrics.GrossProfit / -metrics.GrossLoss
	}
	metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)

	return metrics
}

// SymbolPnL is realised PnL for one symbol.
type SymbolPnL struct {
	Symbol string
	PnL    float64
}

// SortedSymbolPnL returns the per-symbol PnL, best first.
func (m *SessionMetrics) SortedSymbolPnL() []SymbolPnL {
	out := make([]SymbolPnL, 0, len(m.BySymbol))
	for symbol, pnl := range m.BySymbol {
		out = append(out, SymbolPnL{Symbol: symbol, PnL: pnl})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PnL != out[j].PnL {
			return out[i].PnL > out[j].PnL
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
