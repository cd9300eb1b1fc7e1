package takeprofit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/store"
	"order_lifecycle/pkg/concurrency"
	"order_lifecycle/pkg/orderid"
	"order_lifecycle/pkg/retry"
	"order_lifecycle/pkg/telemetry"
)

// OrderRecorder admits created exit orders into the ledger
type OrderRecorder interface {
	Place(ctx context.Context, order *core.Order) error
}

// AdmissionChecker is the pre-trade gate consulted before each exit
// order reaches the exchange
type AdmissionChecker interface {
	CheckAndPrepare(ctx context.Context, req *core.OrderRequest) (*core.AdmissionResult, error)
}

// Config holds coordinator tunables
type Config struct {
	ClaimTTL            time.Duration
	RecordTTL           time.Duration
	PositionParallelism int
	Aging               AgingConfig
}

// claimRecord is the value stored under a take-profit key. A pending
// record is the claim itself; a created record is the durable dedup marker.
type claimRecord struct {
	State         string    `json:"state"` // pending, created
	PositionID    string    `json:"position_id"`
	OrderID       string    `json:"order_id,omitempty"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Coordinator creates at most one exit order per (session, position).
// Uniqueness is enforced by an atomic store claim, so any number of
// workers can call CreateBatch for the same positions concurrently.
type Coordinator struct {
	store    core.IKeyedStore
	exchange core.IExchange
	executor core.IOrderExecutor
	recorder OrderRecorder
	gate     AdmissionChecker
	ids      *orderid.Codec
	pool     *concurrency.WorkerPool
	logger   core.ILogger
	cfg      Config
}

// New creates a coordinator. recorder and gate may be nil.
func New(st core.IKeyedStore, exchange core.IExchange, executor core.IOrderExecutor, recorder OrderRecorder, gate AdmissionChecker, ids *orderid.Codec, pool *concurrency.WorkerPool, logger core.ILogger, cfg Config) *Coordinator {
	if cfg.PositionParallelism <= 0 {
		cfg.PositionParallelism = 4
	}
	return &Coordinator{
		store:    st,
		exchange: exchange,
		executor: executor,
		recorder: recorder,
		gate:     gate,
		ids:      ids,
		pool:     pool,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateBatch creates exit orders for every position across all pairs.
// Pairs run concurrently and independently; one pair failing never stops
// the others, and the result always covers all pairs.
func (c *Coordinator) CreateBatch(ctx context.Context, sessionID string, session core.SessionContext, positions map[string][]core.Position) (*core.BatchResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	result := &core.BatchResult{
		Success:    true,
		TotalPairs: len(positions),
		Results:    make(map[string]*core.PairResult, len(positions)),
	}
	var mu sync.Mutex

	group := c.pool.Group()
	for symbol, pairPositions := range positions {
		symbol, pairPositions := symbol, pairPositions
		group.Submit(func() {
			pair := c.processPair(ctx, sessionID, session, symbol, pairPositions)
			mu.Lock()
			result.Results[symbol] = pair
			result.Created += pair.Created
			result.Duplicates += pair.Duplicates
			result.Failed += pair.Failed
			mu.Unlock()
		})
	}
	group.Wait()

	c.logger.Info("take-profit batch complete",
		"session_id", sessionID,
		"pairs", result.TotalPairs,
		"created", result.Created,
		"duplicates", result.Duplicates,
		"failed", result.Failed)
	return result, nil
}

func (c *Coordinator) processPair(ctx context.Context, sessionID string, session core.SessionContext, symbol string, positions []core.Position) *core.PairResult {
	pair := &core.PairResult{Errors: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PositionParallelism)
	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			outcome, orderID, err := c.processPosition(gctx, sessionID, session, symbol, pos)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeCreated:
				pair.Created++
				pair.Orders = append(pair.Orders, orderID)
			case outcomeDuplicate:
				pair.Duplicates++
			case outcomeFailed:
				pair.Failed++
				pair.Errors[pos.PositionID] = err.Error()
			}
			// failures are recorded per position, never propagated: one
			// bad position must not cancel its siblings
			return nil
		})
	}
	g.Wait()
	return pair
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDuplicate
	outcomeFailed
)

func (c *Coordinator) processPosition(ctx context.Context, sessionID string, session core.SessionContext, symbol string, pos core.Position) (outcome, string, error) {
	claimKey := store.TakeProfitKey(sessionID, pos.PositionID)

	pending, _ := json.Marshal(claimRecord{
		State:      "pending",
		PositionID: pos.PositionID,
		CreatedAt:  time.Now(),
	})
	won, err := c.store.SetIfAbsent(ctx, claimKey, pending, c.cfg.ClaimTTL)
	if err != nil {
		telemetry.GetGlobalMetrics().IncTakeProfitFailed(ctx, symbol)
		return outcomeFailed, "", fmt.Errorf("claim failed: %w", err)
	}
	if !won {
		telemetry.GetGlobalMetrics().IncTakeProfitDuplicate(ctx, symbol)
		c.logger.Debug("position already claimed",
			"session_id", sessionID, "position_id", pos.PositionID)
		return outcomeDuplicate, "", nil
	}

	attempt, _ := json.Marshal(map[string]interface{}{
		"position_id": pos.PositionID,
		"at":          time.Now(),
	})
	if err := c.store.Push(ctx, store.TakeProfitAttemptKey(sessionID, pos.PositionID), attempt); err != nil {
		c.logger.Warn("failed to record take-profit attempt",
			"position_id", pos.PositionID, "error", err)
	}

	age := time.Since(pos.Timestamp)
	markup := ExitMarkup(session.MakerFeeRate, session.ProfitPercent, age, session.AgingEnabled, c.cfg.Aging)
	price := ExitPrice(pos.BuyPrice, markup, session.PricePrecision)

	// never cross the book downward: if the computed exit would trade
	// through the bid, lift it to the current ask
	if book, bookErr := c.exchange.GetOrderBook(ctx, symbol); bookErr == nil {
		if bid, ok := book.BestBid(); ok && price.LessThanOrEqual(bid.Price) {
			if ask, ok := book.BestAsk(); ok && ask.Price.GreaterThan(price) {
				c.logger.Info("exit price lifted to best ask",
					"position_id", pos.PositionID,
					"computed", price.String(),
					"ask", ask.Price.String())
				price = ask.Price
			}
		}
	}

	clientID, err := c.ids.GenerateLinked(pos.BuyOrderID, "tp")
	if err != nil {
		return c.fail(ctx, claimKey, symbol, pos, fmt.Errorf("client order id: %w", err))
	}

	req := &core.OrderRequest{
		Symbol:        symbol,
		Side:          core.OrderSideSell,
		Type:          core.OrderTypeLimit,
		Price:         price,
		Amount:        pos.Quantity,
		ClientOrderID: clientID,
		ParentOrderID: pos.BuyOrderID,
	}

	if c.gate != nil {
		admission, gateErr := c.gate.CheckAndPrepare(ctx, req)
		if gateErr != nil {
			return c.fail(ctx, claimKey, symbol, pos, fmt.Errorf("admission check: %w", gateErr))
		}
		if !admission.Allowed {
			return c.fail(ctx, claimKey, symbol, pos, fmt.Errorf("admission rejected: %s", admission.Reason))
		}
	}

	order, err := c.executor.PlaceOrder(ctx, req)
	if err != nil {
		return c.fail(ctx, claimKey, symbol, pos, err)
	}

	created, _ := json.Marshal(claimRecord{
		State:         "created",
		PositionID:    pos.PositionID,
		OrderID:       order.ID,
		ClientOrderID: clientID,
		CreatedAt:     time.Now(),
	})
	// the order is already live on the exchange; if the claim is not
	// upgraded before its TTL lapses a second exit order could be
	// placed, so retry the conversion rather than shrug it off
	upgradeErr := retry.Do(ctx, retry.DefaultPolicy, retry.Always, func() error {
		return c.store.SetWithTTL(ctx, claimKey, created, c.cfg.RecordTTL)
	})
	if upgradeErr != nil {
		c.logger.Error("failed to upgrade claim to durable record",
			"position_id", pos.PositionID, "order_id", order.ID, "error", upgradeErr)
	}

	if c.recorder != nil {
		if err := c.recorder.Place(ctx, order); err != nil {
			c.logger.Warn("failed to record exit order in ledger",
				"order_id", order.ID, "error", err)
		}
	}

	telemetry.GetGlobalMetrics().IncTakeProfitCreated(ctx, symbol)
	c.logger.Info("take-profit order created",
		"session_id", sessionID,
		"position_id", pos.PositionID,
		"order_id", order.ID,
		"price", price.String(),
		"quantity", pos.Quantity.String())
	return outcomeCreated, order.ID, nil
}

// fail releases the claim so a later run can retry the position
func (c *Coordinator) fail(ctx context.Context, claimKey, symbol string, pos core.Position, err error) (outcome, string, error) {
	if delErr := c.store.Delete(ctx, claimKey); delErr != nil {
		c.logger.Warn("failed to release claim after failure",
			"position_id", pos.PositionID, "error", delErr)
	}
	telemetry.GetGlobalMetrics().IncTakeProfitFailed(ctx, symbol)
	c.logger.Error("take-profit creation failed",
		"position_id", pos.PositionID, "error", err)
	return outcomeFailed, "", err
}
