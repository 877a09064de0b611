package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/regnode/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Options configures a PeerAwareRegistry
type Options struct {
	Peers []Peer
	// SyncRetries bounds how many times SyncUp polls peers while nothing was recovered
	SyncRetries    int
	SyncRetryWait  time.Duration
	EmptySyncGrace time.Duration
	// Now is the clock, defaults to time.Now
	Now func() time.Time
}

// PeerAwareRegistry is an in-memory registry that seeds itself from peers
type PeerAwareRegistry struct {
	instances *xsync.MapOf[string, InstanceInfo]
	opts      Options

	mu             sync.RWMutex
	open           bool
	openedAt       time.Time
	emptyOnStartup bool
	selfID         string

	closed atomic.Bool
}

// NewPeerAwareRegistry creates an empty registry
func NewPeerAwareRegistry(opts Options) *PeerAwareRegistry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PeerAwareRegistry{
		instances:      xsync.NewMapOf[string, InstanceInfo](),
		opts:           opts,
		emptyOnStartup: true,
	}
}

// SyncUp polls peers until at least one instance is recovered or the retry
// budget is exhausted. Individual peer failures are logged and skipped.
func (r *PeerAwareRegistry) SyncUp(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, ErrRegistryClosed
	}
	if len(r.opts.Peers) == 0 {
		log.Info().Msg("No registry peers configured, skipping sync")
		return 0, nil
	}

	// instance IDs recovered so far; peers serving the same instance count it once
	recovered := make(map[string]struct{})

	for attempt := 0; attempt < r.opts.SyncRetries && len(recovered) == 0; attempt++ {
		if r.closed.Load() {
			return len(recovered), ErrRegistryClosed
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Dur("wait", r.opts.SyncRetryWait).
				Msg("No instances recovered from peers, retrying sync")
			select {
			case <-time.After(r.opts.SyncRetryWait):
			case <-ctx.Done():
				return len(recovered), ctx.Err()
			}
		}

		for _, peer := range r.opts.Peers {
			if err := ctx.Err(); err != nil {
				return len(recovered), err
			}

			instances, err := peer.FetchInstances(ctx)
			if err != nil {
				telemetry.PeerSyncAttemptsTotal.With("failed").Inc()
				log.Warn().Err(err).Str("peer", peer.Name()).Msg("Failed to fetch instances from peer")
				continue
			}
			telemetry.PeerSyncAttemptsTotal.With("success").Inc()

			for _, inst := range instances {
				if err := r.Register(inst); err != nil {
					log.Warn().Err(err).Str("peer", peer.Name()).Msg("Skipping unregisterable instance")
					continue
				}
				recovered[inst.InstanceID] = struct{}{}
			}
		}
	}

	count := len(recovered)
	log.Info().Int("count", count).Int("peers", len(r.opts.Peers)).Msg("Registry sync from peers finished")
	return count, nil
}

// OpenForTraffic registers self as UP and starts answering discovery.
// With count == 0 discovery stays withheld for the empty-sync grace window.
func (r *PeerAwareRegistry) OpenForTraffic(ctx context.Context, self InstanceInfo, count int) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}

	self.Status = StatusUp
	if err := r.Register(self); err != nil {
		return err
	}

	r.mu.Lock()
	r.open = true
	r.openedAt = r.opts.Now()
	r.selfID = self.InstanceID
	if count > 0 {
		r.emptyOnStartup = false
	}
	r.mu.Unlock()

	ev := log.Info().Int("instances_recovered", count).Str("self", self.InstanceID)
	if count == 0 {
		ev = ev.Dur("grace", r.opts.EmptySyncGrace)
	}
	ev.Msg("Registry open for traffic")
	return nil
}

// ShouldAllowAccess reports whether discovery responses may be served
func (r *PeerAwareRegistry) ShouldAllowAccess() bool {
	if r.closed.Load() {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.open {
		return false
	}
	if r.emptyOnStartup && !r.opts.Now().After(r.openedAt.Add(r.opts.EmptySyncGrace)) {
		return false
	}
	return true
}

// Register adds or replaces an instance
func (r *PeerAwareRegistry) Register(inst InstanceInfo) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	if inst.InstanceID == "" || inst.AppName == "" {
		return ErrInvalidInstance
	}
	if inst.Status == "" {
		inst.Status = StatusUp
	}
	inst.LastUpdated = r.opts.Now().UnixMilli()
	r.instances.Store(inst.InstanceID, inst)
	return nil
}

// Cancel removes an instance, reporting whether it was present
func (r *PeerAwareRegistry) Cancel(instanceID string) bool {
	_, ok := r.instances.LoadAndDelete(instanceID)
	return ok
}

// Instances returns a snapshot of all instances ordered by ID
func (r *PeerAwareRegistry) Instances() []InstanceInfo {
	out := make([]InstanceInfo, 0, r.instances.Size())
	r.instances.Range(func(_ string, inst InstanceInfo) bool {
		out = append(out, inst)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// InstanceCount returns the number of registered instances
func (r *PeerAwareRegistry) InstanceCount() int {
	return r.instances.Size()
}

// Shutdown marks self DOWN, stops accepting operations and closes peers.
// Calls after the first are no-ops.
func (r *PeerAwareRegistry) Shutdown(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	r.open = false
	selfID := r.selfID
	r.mu.Unlock()

	if selfID != "" {
		if self, ok := r.instances.Load(selfID); ok {
			self.Status = StatusDown
			r.instances.Store(selfID, self)
		}
	}

	var firstErr error
	for _, peer := range r.opts.Peers {
		if err := peer.Close(); err != nil {
			log.Warn().Err(err).Str("peer", peer.Name()).Msg("Failed to close peer")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	log.Info().Msg("Registry shut down")
	return firstErr
}
