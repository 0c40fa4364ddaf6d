// report prints a session performance summary over the closed trades in the
// local database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jravi291980-star/ravinderalgo/config"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/logger"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/sqlite"
	"github.com/jravi291980-star/ravinderalgo/internal/analytics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:   cfg.DBPath,
		Logger:   appLogger,
		Timezone: cfg.Timezone,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer repo.Close()

	trades, err := repo.FindClosed(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to load closed trades: %v", err)
	}
	if len(trades) == 0 {
		fmt.Println("No closed trades recorded.")
		return
	}

	m := analytics.Summarize(trades)

	fmt.Println("## Session Summary")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Trades\t%d\t\n", m.TotalTrades)
	fmt.Fprintf(w, "Wins / Losses\t%d / %d\t\n", m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\t\n", m.WinRate*100)
	fmt.Fprintf(w, "Net PnL\t%.2f\t\n", m.NetPnL)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\t\n", m.AverageWin, m.AverageLoss)
	fmt.Fprintf(w, "Profit factor\t%.2f\t\n", m.ProfitFactor)
	fmt.Fprintf(w, "Expectancy\t%.2f\t\n", m.Expectancy)
	fmt.Fprintf(w, "Max drawdown\t%.2f\t\n", m.MaxDrawdown)
	fmt.Fprintf(w, "Max consec W/L\t%d / %d\t\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Avg hold time\t%s\t\n", m.AverageHoldTime.Round(time.Second))
	w.Flush()

	fmt.Println("\n## Exits by Reason")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	for reason, count := range m.ByExitReason {
		fmt.Fprintf(w, "%s\t%d\t\n", reason, count)
	}
	w.Flush()

	fmt.Println("\n## PnL by Symbol")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	for _, entry := range m.SortedSymbolPnL() {
		fmt.Fprintf(w, "%s\t%.2f\t\n", entry.Symbol, entry.PnL)
	}
	w.Flush()
}
