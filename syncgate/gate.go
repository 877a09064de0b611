// Package syncgate copies the registry from peers and then opens the node
// for traffic, in that order.
//
// A SyncResult can only be obtained from Gate.SyncUp, and OpenForTraffic
// refuses any other value, so opening before a completed sync is rejected
// at runtime rather than left to call-site discipline.
package syncgate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/maxpert/regnode/registry"
	"github.com/maxpert/regnode/telemetry"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSyncUpFailed wraps a failed or invalid registry sync
	ErrSyncUpFailed = errors.New("registry sync-up failed")
	// ErrSyncNotCompleted is returned when OpenForTraffic gets a SyncResult not produced by SyncUp
	ErrSyncNotCompleted = errors.New("sync-up has not completed")
	// ErrAlreadyOpen is returned by a second OpenForTraffic call
	ErrAlreadyOpen = errors.New("already open for traffic")
)

// SyncResult is the outcome of a completed SyncUp
type SyncResult struct {
	InstancesRecovered int

	completed bool
}

// Completed reports whether r came from a successful SyncUp
func (r SyncResult) Completed() bool {
	return r.completed
}

// Gate sequences registry sync-up and traffic admission
type Gate struct {
	registry registry.Registry
	opened   atomic.Bool
}

// New creates a gate over reg
func New(reg registry.Registry) *Gate {
	return &Gate{registry: reg}
}

// SyncUp copies peer instances into the local registry. It does not retry;
// the registry owns its retry policy. Zero recovered instances is success.
func (g *Gate) SyncUp(ctx context.Context) (SyncResult, error) {
	count, err := g.registry.SyncUp(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", ErrSyncUpFailed, err)
	}
	if count < 0 {
		return SyncResult{}, fmt.Errorf("%w: negative instance count %d", ErrSyncUpFailed, count)
	}

	telemetry.SyncInstancesRecovered.Set(float64(count))
	log.Info().Int("instances_recovered", count).Msg("Registry sync-up completed")
	return SyncResult{InstancesRecovered: count, completed: true}, nil
}

// OpenForTraffic registers self with the registry, passing the recovered
// count through unmodified. It succeeds at most once per gate.
func (g *Gate) OpenForTraffic(ctx context.Context, self registry.InstanceInfo, r SyncResult) error {
	if !r.completed {
		return ErrSyncNotCompleted
	}
	if !g.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}

	if err := g.registry.OpenForTraffic(ctx, self, r.InstancesRecovered); err != nil {
		return fmt.Errorf("open for traffic: %w", err)
	}

	if r.InstancesRecovered == 0 {
		log.Warn().Msg("No instances recovered from peers, registry withholds discovery for its grace window")
	}
	return nil
}

// Opened reports whether OpenForTraffic has been called successfully or is in progress
func (g *Gate) Opened() bool {
	return g.opened.Load()
}
