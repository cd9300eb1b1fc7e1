// Command lifecycle_server runs the order lifecycle core: the ledger,
// balance reconciler, execution gate, take-profit coordinator, and the
// worker heartbeat, wired to the configured exchange and store backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/balance"
	"order_lifecycle/internal/config"
	"order_lifecycle/internal/core"
	"order_lifecycle/internal/exchange"
	"order_lifecycle/internal/gate"
	"order_lifecycle/internal/infrastructure/metrics"
	"order_lifecycle/internal/ledger"
	"order_lifecycle/internal/store"
	"order_lifecycle/internal/takeprofit"
	"order_lifecycle/internal/worker"
	"order_lifecycle/pkg/concurrency"
	"order_lifecycle/pkg/logging"
	"order_lifecycle/pkg/orderid"
	"order_lifecycle/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", "error", err)
	}
}

func run(cfg *config.Config, logger *logging.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup("lifecycle_server")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	st, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("store setup: %w", err)
	}
	defer st.Close()

	ex, stream, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("exchange setup: %w", err)
	}
	if stream != nil {
		stream.Start()
		defer stream.Stop()
	}

	if err := ex.CheckHealth(ctx); err != nil {
		logger.Warn("exchange health check failed at startup", "error", err)
	}

	reconciler := balance.New(ex, logger,
		cfg.Trading.BalanceCacheTTL(),
		decimal.NewFromFloat(cfg.Trading.DustThreshold),
		cfg.Trading.AssetVariants)

	book := ledger.New(st, reconciler, logger, cfg.App.SessionID)
	admission := gate.New(reconciler, book, logger)
	executor := exchange.NewOrderExecutor(ex, logger, cfg.Exchange.RateLimit, cfg.Exchange.RateBurst)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "take-profit",
		MaxWorkers:  cfg.Concurrency.PairPoolSize,
		MaxCapacity: cfg.Concurrency.PairPoolBuffer,
	}, logger)
	defer pool.Stop()

	coordinator := takeprofit.New(st, ex, executor, book, admission, orderid.New(), pool, logger, takeprofit.Config{
		ClaimTTL:            cfg.TakeProfit.ClaimTTL(),
		RecordTTL:           cfg.TakeProfit.RecordTTL(),
		PositionParallelism: cfg.Concurrency.PositionParallelism,
		Aging: takeprofit.AgingConfig{
			Threshold: cfg.TakeProfit.AgeThreshold(),
			Step:      cfg.TakeProfit.AgeStep(),
			Reduction: decimal.NewFromFloat(cfg.TakeProfit.AgeStepReduction),
			MinMarkup: decimal.NewFromFloat(cfg.TakeProfit.MinMarkup),
		},
	})

	heartbeat := worker.NewHeartbeat(st, logger, cfg.App.SessionID,
		time.Duration(cfg.Worker.HeartbeatSeconds)*time.Second,
		time.Duration(cfg.Worker.HeartbeatTTLSeconds)*time.Second)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	// accumulate positions from filled buys and flush them to the
	// coordinator on a timer
	pending := newPendingPositions()
	book.Subscribe(func(event core.OrderEvent) {
		if event.Fill == nil || event.Order.Side != core.OrderSideBuy {
			return
		}
		pending.add(event.Order.Symbol, core.Position{
			PositionID: event.Fill.FillID,
			BuyOrderID: event.Order.ID,
			BuyPrice:   event.Fill.Price,
			Quantity:   event.Fill.Amount,
			Timestamp:  event.Fill.Timestamp,
		})
	})

	session := core.SessionContext{
		MakerFeeRate:   decimal.NewFromFloat(cfg.Trading.MakerFeeRate),
		ProfitPercent:  decimal.NewFromFloat(cfg.Trading.ProfitPercent),
		PricePrecision: cfg.Trading.PricePrecision,
		SizePrecision:  cfg.Trading.SizePrecision,
		AgingEnabled:   cfg.TakeProfit.AgingEnabled,
	}

	logger.Info("lifecycle server started",
		"session_id", cfg.App.SessionID,
		"exchange", ex.GetName(),
		"store", cfg.Store.Backend,
		"symbols", cfg.Trading.Symbols)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			flush(context.Background(), coordinator, pending, cfg.App.SessionID, session, logger)
			return nil
		case <-ticker.C:
			flush(ctx, coordinator, pending, cfg.App.SessionID, session, logger)
		}
	}
}

func flush(ctx context.Context, coordinator *takeprofit.Coordinator, pending *pendingPositions, sessionID string, session core.SessionContext, logger core.ILogger) {
	batch := pending.drain()
	if len(batch) == 0 {
		return
	}
	result, err := coordinator.CreateBatch(ctx, sessionID, session, batch)
	if err != nil {
		logger.Error("take-profit batch failed", "error", err)
		pending.merge(batch)
		return
	}
	if result.Failed > 0 {
		logger.Warn("take-profit batch had failures",
			"created", result.Created, "failed", result.Failed)
	}
}

// pendingPositions buffers filled buy positions between coordinator runs
type pendingPositions struct {
	mu        sync.Mutex
	positions map[string][]core.Position
}

func newPendingPositions() *pendingPositions {
	return &pendingPositions{positions: make(map[string][]core.Position)}
}

func (p *pendingPositions) add(symbol string, pos core.Position) {
	p.mu.Lock()
	p.positions[symbol] = append(p.positions[symbol], pos)
	p.mu.Unlock()
}

func (p *pendingPositions) drain() map[string][]core.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.positions
	p.positions = make(map[string][]core.Position)
	return out
}

func (p *pendingPositions) merge(batch map[string][]core.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for symbol, positions := range batch {
		p.positions[symbol] = append(p.positions[symbol], positions...)
	}
}
