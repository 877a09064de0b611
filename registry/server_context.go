package registry

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultServerContext owns the local registry for the lifetime of the node
type DefaultServerContext struct {
	registry *PeerAwareRegistry

	once sync.Once
	err  error
}

// NewServerContext creates a server context around registry
func NewServerContext(registry *PeerAwareRegistry) *DefaultServerContext {
	return &DefaultServerContext{registry: registry}
}

// Registry returns the local registry
func (sc *DefaultServerContext) Registry() *PeerAwareRegistry {
	return sc.registry
}

// Shutdown shuts the registry down. Only the first call has an effect.
func (sc *DefaultServerContext) Shutdown(ctx context.Context) error {
	sc.once.Do(func() {
		log.Info().Msg("Shutting down server context")
		sc.err = sc.registry.Shutdown(ctx)
	})
	return sc.err
}
