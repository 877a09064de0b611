// Package cloud starts a cloud-provider binder when the node declares a
// cloud datacenter.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxpert/regnode/registry"
	"github.com/maxpert/regnode/telemetry"
	"github.com/rs/zerolog/log"
)

// ErrBinderStart wraps failures to construct or start a binder
var ErrBinderStart = errors.New("cloud binder start failed")

// Binder is a cloud-provider integration bound to the node's lifetime
type Binder interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Factory builds the binder for the self instance
type Factory func(self registry.InstanceInfo) (Binder, error)

// Handle owns a started binder
type Handle struct {
	binder Binder
}

// Binder returns the started binder
func (h *Handle) Binder() Binder {
	return h.binder
}

// Shutdown stops the binder. A nil handle is a no-op.
func (h *Handle) Shutdown(ctx context.Context) error {
	if h == nil {
		return nil
	}
	err := h.binder.Shutdown(ctx)
	telemetry.CloudBinderActive.Set(0)
	return err
}

// IsCloud reports whether self runs in the recognized cloud datacenter
func IsCloud(self registry.InstanceInfo) bool {
	result := self.DataCenter.Name == registry.DataCenterAmazon
	log.Info().
		Str("datacenter", string(self.DataCenter.Name)).
		Bool("cloud", result).
		Msg("Evaluated cloud datacenter")
	return result
}

// MaybeStart starts a binder built by factory when self is in the cloud
// datacenter. Otherwise factory is never called and the handle is nil.
func MaybeStart(ctx context.Context, self registry.InstanceInfo, factory Factory) (*Handle, error) {
	if !IsCloud(self) {
		return nil, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: no binder factory configured", ErrBinderStart)
	}

	binder, err := factory(self)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinderStart, err)
	}
	if err := binder.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBinderStart, err)
	}

	telemetry.CloudBinderActive.Set(1)
	log.Info().Msg("Cloud binder started")
	return &Handle{binder: binder}, nil
}
