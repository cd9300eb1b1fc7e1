package exchange

import (
	"fmt"
	"time"

	"order_lifecycle/internal/config"
	"order_lifecycle/internal/core"
	"order_lifecycle/internal/mock"
)

// New builds the configured exchange client. The returned stream is nil
// for backends without a push feed; when non-nil the caller owns its
// lifecycle.
func New(cfg config.ExchangeConfig, logger core.ILogger) (core.IExchange, *BalanceStream, error) {
	switch cfg.Name {
	case "mock":
		return mock.NewExchange(), nil, nil
	case "remote":
		var stream *BalanceStream
		if cfg.StreamURL != "" {
			stream = NewBalanceStream(cfg.StreamURL, logger)
		}
		ex := NewRemoteExchange(cfg.Name, cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second, stream, logger)
		return ex, stream, nil
	default:
		return nil, nil, fmt.Errorf("unknown exchange %q", cfg.Name)
	}
}
