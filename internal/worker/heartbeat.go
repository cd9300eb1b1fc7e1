// Package worker maintains the liveness record for this process in the
// shared store.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/store"
)

// Heartbeat periodically refreshes a TTL-bound worker key. When the
// process dies the key expires on its own, so peers see stale workers
// disappear without any cleanup protocol.
type Heartbeat struct {
	store     core.IKeyedStore
	logger    core.ILogger
	workerID  string
	sessionID string
	interval  time.Duration
	ttl       time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type heartbeatRecord struct {
	WorkerID  string    `json:"worker_id"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	SeenAt    time.Time `json:"seen_at"`
}

// NewHeartbeat creates a heartbeat with a fresh worker id
func NewHeartbeat(st core.IKeyedStore, logger core.ILogger, sessionID string, interval, ttl time.Duration) *Heartbeat {
	return &Heartbeat{
		store:     st,
		logger:    logger,
		workerID:  uuid.NewString(),
		sessionID: sessionID,
		interval:  interval,
		ttl:       ttl,
		done:      make(chan struct{}),
	}
}

// WorkerID returns this process's worker id
func (h *Heartbeat) WorkerID() string {
	return h.workerID
}

// Start writes the first beat and begins the refresh loop. The worker
// key is visible to peers by the time Start returns.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	startedAt := time.Now()
	h.beat(ctx, startedAt)

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.beat(ctx, startedAt)
			}
		}
	}()

	h.logger.Info("worker heartbeat started",
		"worker_id", h.workerID, "interval", h.interval, "ttl", h.ttl)
}

func (h *Heartbeat) beat(ctx context.Context, startedAt time.Time) {
	payload, _ := json.Marshal(heartbeatRecord{
		WorkerID:  h.workerID,
		SessionID: h.sessionID,
		StartedAt: startedAt,
		SeenAt:    time.Now(),
	})
	if err := h.store.SetWithTTL(ctx, store.WorkerKey(h.workerID), payload, h.ttl); err != nil {
		h.logger.Warn("heartbeat write failed", "worker_id", h.workerID, "error", err)
	}
}

// Stop ends the loop and removes the worker key immediately
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.store.Delete(ctx, store.WorkerKey(h.workerID)); err != nil {
		h.logger.Warn("failed to remove worker key on shutdown",
			"worker_id", h.workerID, "error", err)
	}
}
