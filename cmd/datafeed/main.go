// The datafeed worker bridges the broker's websockets to the Redis event
// streams the engine consumes: live ticks onto the market stream and order
// updates onto the order stream.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jravi291980-star/ravinderalgo/config"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/dhan"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/logger"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/redisstore"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

const statusComponent = "datafeed"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publisher only: no consumer group so this process never competes with
	// the engine for stream messages.
	store, err := redisstore.New(ctx, redisstore.Config{
		URL:           cfg.RedisURL,
		Logger:        appLogger,
		StreamTicks:   cfg.StreamTicks,
		StreamCandles: cfg.StreamCandles,
		StreamOrders:  cfg.StreamOrders,
		StreamControl: cfg.StreamControl,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Redis store")
		log.Fatalf("FATAL: Failed to initialize Redis store: %v", err)
	}
	defer store.Close()

	token := cfg.DhanAccessToken
	if stored, terr := store.AccessToken(ctx); terr == nil && stored != "" {
		token = stored
	}
	if token == "" {
		log.Fatalf("FATAL: No Dhan access token available (set DHAN_ACCESS_TOKEN or publish one)")
	}

	instruments := make([]string, 0, len(cfg.Watchlist))
	for securityID := range cfg.Watchlist {
		instruments = append(instruments, securityID)
	}

	marketFeed, err := dhan.NewMarketFeed(dhan.MarketFeedConfig{
		FeedURL:        cfg.DhanFeedURL,
		ClientID:       cfg.DhanClientID,
		AccessToken:    token,
		Instruments:    instruments,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         appLogger,
		OnTick: func(p ports.TickPayload) {
			if perr := store.PublishTick(ctx, p); perr != nil {
				appLogger.Warn(ctx, "Tick publish failed", map[string]interface{}{
					"securityID": p.SecurityID, "error": perr.Error(),
				})
			}
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market feed")
		log.Fatalf("FATAL: Failed to initialize market feed: %v", err)
	}

	orderFeed, err := dhan.NewOrderFeed(dhan.OrderFeedConfig{
		FeedURL:        cfg.DhanOrderFeedURL,
		ClientID:       cfg.DhanClientID,
		AccessToken:    token,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         appLogger,
		OnUpdate: func(p ports.OrderUpdatePayload) {
			if perr := store.PublishOrderUpdate(ctx, p); perr != nil {
				appLogger.Warn(ctx, "Order update publish failed", map[string]interface{}{
					"orderID": p.OrderID, "error": perr.Error(),
				})
			}
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order feed")
		log.Fatalf("FATAL: Failed to initialize order feed: %v", err)
	}

	if serr := store.SetStatus(ctx, statusComponent, "RUNNING"); serr != nil {
		appLogger.Warn(ctx, "Status update failed", map[string]interface{}{"error": serr.Error()})
	}
	appLogger.Info(ctx, "Datafeed worker running", map[string]interface{}{"instruments": len(instruments)})

	go orderFeed.Run(ctx)
	marketFeed.Run(ctx)

	_ = store.SetStatus(context.Background(), statusComponent, "STOPPED")
	appLogger.Info(context.Background(), "Datafeed worker stopped")
}
