package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsProvider interface for the registry being monitored
type StatsProvider interface {
	InstanceCount() int
	ShouldAllowAccess() bool
}

// RegistryCollector periodically collects registry stats and updates telemetry gauges.
// Register and Shutdown may each be called more than once.
type RegistryCollector struct {
	provider StatsProvider
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewRegistryCollector creates a new registry stats collector
func NewRegistryCollector(provider StatsProvider, interval time.Duration) *RegistryCollector {
	return &RegistryCollector{
		provider: provider,
		interval: interval,
	}
}

// Register begins the periodic collection
func (rc *RegistryCollector) Register() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.running {
		return
	}
	rc.running = true
	rc.stopCh = make(chan struct{})

	rc.wg.Add(1)
	go rc.collectLoop(rc.stopCh)

	log.Debug().Dur("interval", rc.interval).Msg("Registry stats collector started")
}

// Shutdown stops the collector and waits for the loop to exit
func (rc *RegistryCollector) Shutdown() {
	rc.mu.Lock()
	if !rc.running {
		rc.mu.Unlock()
		return
	}
	rc.running = false
	close(rc.stopCh)
	rc.mu.Unlock()

	rc.wg.Wait()
	log.Debug().Msg("Registry stats collector stopped")
}

func (rc *RegistryCollector) collectLoop(stopCh <-chan struct{}) {
	defer rc.wg.Done()

	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()

	for {
		select {
		case <-ticker.C:
			rc.collect()
		case <-stopCh:
			return
		}
	}
}

func (rc *RegistryCollector) collect() {
	RegistryInstances.Set(float64(rc.provider.InstanceCount()))
	if rc.provider.ShouldAllowAccess() {
		RegistryAccessAllowed.Set(1)
	} else {
		RegistryAccessAllowed.Set(0)
	}
}
