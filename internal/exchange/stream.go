package exchange

import (
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	"order_lifecycle/pkg/websocket"
)

// balanceMessage is the wire shape of a balance stream update
type balanceMessage struct {
	Type     string `json:"type"`
	Balances []struct {
		Asset     string          `json:"asset"`
		Available decimal.Decimal `json:"available"`
		Total     decimal.Decimal `json:"total"`
	} `json:"balances"`
}

// BalanceStream keeps a local cache of the venue's pushed balance
// updates. Consumers read the cache; they never block on the socket.
type BalanceStream struct {
	client *websocket.Client
	logger core.ILogger

	mu       sync.RWMutex
	balances map[string]core.StreamBalance
}

// NewBalanceStream creates a stream client for the given websocket url
func NewBalanceStream(url string, logger core.ILogger) *BalanceStream {
	s := &BalanceStream{
		logger:   logger,
		balances: make(map[string]core.StreamBalance),
	}
	s.client = websocket.NewClient(url, s.handleMessage, logger)
	s.client.SetOnConnected(func() {
		if err := s.client.Send(map[string]string{"op": "subscribe", "channel": "balances"}); err != nil {
			logger.Warn("balance stream subscribe failed", "error", err)
		}
	})
	return s
}

// Start begins the stream connection loop
func (s *BalanceStream) Start() { s.client.Start() }

// Stop closes the stream
func (s *BalanceStream) Stop() { s.client.Stop() }

// Balances returns a copy of the cached balance snapshot
func (s *BalanceStream) Balances() map[string]core.StreamBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]core.StreamBalance, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

func (s *BalanceStream) handleMessage(message []byte) {
	var msg balanceMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Warn("undecodable balance stream message", "error", err)
		return
	}
	if msg.Type != "balance" || len(msg.Balances) == 0 {
		return
	}

	s.mu.Lock()
	for _, b := range msg.Balances {
		s.balances[b.Asset] = core.StreamBalance{Available: b.Available, Total: b.Total}
	}
	s.mu.Unlock()
}
