package bus

import (
	"fmt"

	"github.com/kestrel-soc/kestrel/internal/domain"
)

// New creates a new event bus based on configuration.
// Embedded mode: returns ChannelBus.
// Distributed mode: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
