// resetstate clears the daily Redis counters (trade count and realised PnL)
// for a given trading day. Intended for pre-open maintenance or for undoing
// a bad state after manual intervention.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/jravi291980-star/ravinderalgo/config"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/logger"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/redisstore"
	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

func main() {
	dateStr := flag.String("date", "", "Trading day to reset (YYYY-MM-DD, default today)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	day := time.Now().In(cfg.Timezone)
	if *dateStr != "" {
		day, err = time.ParseInLocation("2006-01-02", *dateStr, cfg.Timezone)
		if err != nil {
			log.Fatalf("FATAL: Invalid -date %q: %v", *dateStr, err)
		}
	}

	store, err := redisstore.New(ctx, redisstore.Config{
		URL:           cfg.RedisURL,
		Logger:        appLogger,
		StreamTicks:   cfg.StreamTicks,
		StreamCandles: cfg.StreamCandles,
		StreamOrders:  cfg.StreamOrders,
		StreamControl: cfg.StreamControl,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	keys := []string{domain.TradeCountKey(day), domain.DailyPnLKey(day)}
	if err := store.Delete(ctx, keys...); err != nil {
		appLogger.Error(ctx, err, "Counter reset failed", map[string]interface{}{"keys": keys})
		log.Fatalf("FATAL: Counter reset failed: %v", err)
	}

	appLogger.Info(ctx, "Daily counters reset", map[string]interface{}{
		"day": day.Format("2006-01-02"), "keys": keys,
	})
}
