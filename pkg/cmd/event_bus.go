// Package cmd holds the factories the leadflow binary wires its components
// with.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/leadflow/leadflow/pkg/channels/gochannel"
	"github.com/leadflow/leadflow/pkg/channels/kafka"
	"github.com/leadflow/leadflow/pkg/eventbus"
)

// NewEventBus builds the bus for provider ("gochannel" or "kafka").
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, "leadflow")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
