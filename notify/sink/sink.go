// Package sink delivers encoded lifecycle events to external brokers.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxpert/regnode/cfg"
)

// Sink publishes encoded events to an external system
type Sink interface {
	// Publish sends value to topic. key routes related messages together.
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// Factory creates a Sink from a configuration
type Factory func(cfg.SinkConfiguration) (Sink, error)

var (
	factories = make(map[string]Factory)
	factoryMu sync.RWMutex
)

// Register registers a sink factory for a type
func Register(sinkType string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[sinkType] = factory
}

// New creates a sink using the factory registered for config.Type
func New(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := factories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}
