// Package lifecycle drives a registry node from startup to shutdown.
//
// Startup runs on a single worker goroutine through a fixed sequence of
// stages: resolve the deployment identity, initialize the server context
// (compat converters, optional cloud binder), sync the local registry from
// peers, open for traffic, register monitoring and announce availability.
// Stop may be called at any time, from any goroutine; it cancels an
// in-flight startup and tears down whatever was started, best effort.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/regnode/cfg"
	"github.com/maxpert/regnode/cloud"
	"github.com/maxpert/regnode/environment"
	"github.com/maxpert/regnode/notify"
	"github.com/maxpert/regnode/registry"
	"github.com/maxpert/regnode/syncgate"
	"github.com/maxpert/regnode/telemetry"
	"github.com/rs/zerolog/log"
)

const defaultTeardownTimeout = 30 * time.Second

var (
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("lifecycle already started")
	// ErrStopped is returned by Start after Stop
	ErrStopped = errors.New("lifecycle stopped")
	// ErrStartupCancelled resolves the startup future when Stop interrupts startup
	ErrStartupCancelled = errors.New("startup cancelled by shutdown")
)

// Monitor is the registry monitoring registered once the node is open
type Monitor interface {
	Register()
	Shutdown()
}

// StageError is a startup failure attributed to the stage it happened in
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("startup failed in %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Dependencies are the coordinator's collaborators
type Dependencies struct {
	// Required
	Store         cfg.Store
	Registry      registry.Registry
	ServerContext registry.ServerContext
	Self          registry.InstanceInfo

	// Optional
	BinderFactory   cloud.Factory
	Publisher       notify.Publisher
	Monitor         Monitor
	StartupTimeout  time.Duration // 0 = no limit
	TeardownTimeout time.Duration // bounds worker-side cleanup after a cancelled startup
}

// Coordinator owns the node lifecycle
type Coordinator struct {
	deps    Dependencies
	gate    *syncgate.Gate
	sm      *stateMachine
	running atomic.Bool
	done    chan struct{}

	mu                 sync.Mutex
	started            bool
	stopped            bool
	cancel             context.CancelFunc
	identity           environment.Identity
	resolved           bool
	handle             *cloud.Handle
	contextInitialized bool

	// owned by the startup worker
	curStage   State
	stageBegin time.Time
}

// New validates deps and returns a coordinator in state Created
func New(deps Dependencies) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("configuration store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.ServerContext == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if deps.Self.InstanceID == "" {
		return nil, fmt.Errorf("self instance id is required")
	}
	if deps.TeardownTimeout <= 0 {
		deps.TeardownTimeout = defaultTeardownTimeout
	}

	return &Coordinator{
		deps: deps,
		gate: syncgate.New(deps.Registry),
		sm:   newStateMachine(),
		done: make(chan struct{}),
	}, nil
}

// Start spawns the startup worker and returns immediately.
// The future resolves with the resolved identity once the node is running,
// or with the startup error.
func (c *Coordinator) Start() *future.Future[environment.Identity] {
	p := future.NewPromise[environment.Identity]()

	ctx, err := c.begin()
	if err != nil {
		p.Set(environment.Identity{}, err)
		return p.Future()
	}

	go c.run(ctx, p)
	return p.Future()
}

func (c *Coordinator) begin() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, ErrStopped
	}
	if c.started {
		return nil, ErrAlreadyStarted
	}
	c.started = true

	var ctx context.Context
	if c.deps.StartupTimeout > 0 {
		ctx, c.cancel = context.WithTimeout(context.Background(), c.deps.StartupTimeout)
	} else {
		ctx, c.cancel = context.WithCancel(context.Background())
	}
	return ctx, nil
}

// Done is closed when the startup worker exits, or on Stop if Start never ran
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// IsRunning reports whether startup completed and Stop has not been called
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	return c.sm.get()
}

// Identity returns the resolved deployment identity, once resolved
func (c *Coordinator) Identity() (environment.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.resolved
}

// ServerContext returns the server context while it is initialized, nil otherwise
func (c *Coordinator) ServerContext() registry.ServerContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.contextInitialized {
		return nil
	}
	return c.deps.ServerContext
}

// OnInit is the host's start hook. It does not wait for startup to finish.
func (c *Coordinator) OnInit() error {
	ctx, err := c.begin()
	if err != nil {
		return err
	}

	p := future.NewPromise[environment.Identity]()
	go c.run(ctx, p)
	return nil
}

// OnDestroy is the host's stop hook. It stops the node and waits for the
// startup worker to exit, bounded by ctx.
func (c *Coordinator) OnDestroy(ctx context.Context) {
	c.Stop(ctx)

	select {
	case <-c.done:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("Startup worker did not exit before shutdown deadline")
	}
}

func (c *Coordinator) run(ctx context.Context, p *future.Promise[environment.Identity]) {
	defer close(c.done)

	begin := time.Now()
	identity, stage, err := c.startup(ctx)
	if err != nil {
		if c.isStopped() {
			log.Info().Str("stage", stage.String()).Msg("Startup cancelled by shutdown")
			p.Set(environment.Identity{}, ErrStartupCancelled)
			return
		}

		failure := &StageError{Stage: stage, Err: err}
		c.fail(failure)
		p.Set(environment.Identity{}, failure)
		return
	}

	elapsed := time.Since(begin)
	telemetry.StartupDurationSeconds.Observe(elapsed.Seconds())
	log.Info().
		Str("datacenter", identity.Datacenter).
		Str("environment", identity.Environment).
		Dur("elapsed", elapsed).
		Msg("Registry node started")
	p.Set(identity, nil)
}

func (c *Coordinator) startup(ctx context.Context) (environment.Identity, State, error) {
	stage := StateEnvironmentResolving
	if err := c.enter(ctx, stage); err != nil {
		return environment.Identity{}, stage, err
	}

	identity, err := environment.Resolve(c.deps.Store)
	if err != nil {
		return environment.Identity{}, stage, err
	}
	c.mu.Lock()
	c.identity = identity
	c.resolved = true
	c.mu.Unlock()

	stage = StateContextInitializing
	if err := c.enter(ctx, stage); err != nil {
		return identity, stage, err
	}

	self, err := c.initContext(ctx, identity)
	if err != nil {
		return identity, stage, err
	}

	stage = StateSyncingUp
	if err := c.enter(ctx, stage); err != nil {
		return identity, stage, err
	}

	result, err := c.gate.SyncUp(ctx)
	if err != nil {
		return identity, stage, err
	}

	stage = StateOpenForTraffic
	if err := c.enter(ctx, stage); err != nil {
		return identity, stage, err
	}

	if err := c.gate.OpenForTraffic(ctx, self, result); err != nil {
		return identity, stage, err
	}

	available := c.event(notify.EventRegistryAvailable, identity)
	available.InstancesRecovered = result.InstancesRecovered
	if err := c.registerMonitor(available); err != nil {
		return identity, stage, err
	}
	c.observeStage()

	stage = StateRunning
	started := c.event(notify.EventServerStarted, identity)
	started.InstancesRecovered = result.InstancesRecovered
	if err := c.commitRunning(started); err != nil {
		return identity, stage, err
	}
	return identity, stage, nil
}

// enter moves to the next startup stage unless startup was cancelled
func (c *Coordinator) enter(ctx context.Context, st State) error {
	if c.isStopped() {
		return ErrStartupCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.sm.transition(st); err != nil {
		if c.isStopped() {
			return ErrStartupCancelled
		}
		return err
	}

	c.observeStage()
	c.curStage, c.stageBegin = st, time.Now()

	log.Debug().Str("state", st.String()).Msg("Entered lifecycle stage")
	return nil
}

// observeStage records how long the current startup stage took
func (c *Coordinator) observeStage() {
	if c.curStage == StateCreated {
		return
	}
	telemetry.StartupStageDurationSeconds.With(c.curStage.String()).Observe(time.Since(c.stageBegin).Seconds())
}

func (c *Coordinator) initContext(ctx context.Context, identity environment.Identity) (registry.InstanceInfo, error) {
	registry.RegisterCompatConverters()

	self := c.selfInfo(identity)
	handle, err := cloud.MaybeStart(ctx, self, c.deps.BinderFactory)
	if err != nil {
		return self, err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.teardownHandle(handle)
		return self, ErrStartupCancelled
	}
	c.handle = handle
	c.contextInitialized = true
	c.mu.Unlock()

	log.Info().Bool("cloud_binder", handle != nil).Msg("Server context initialized")
	return self, nil
}

// selfInfo stamps the resolved identity onto a copy of the self instance
func (c *Coordinator) selfInfo(identity environment.Identity) registry.InstanceInfo {
	self := c.deps.Self
	metadata := make(map[string]string, len(self.Metadata)+2)
	for k, v := range self.Metadata {
		metadata[k] = v
	}
	metadata[cfg.KeyDeploymentDatacenter] = identity.Datacenter
	metadata[cfg.KeyDeploymentEnvironment] = identity.Environment
	self.Metadata = metadata
	return self
}

// registerMonitor registers monitoring and announces availability. Both
// happen under the lock so no event can follow server.stopped.
func (c *Coordinator) registerMonitor(available notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStartupCancelled
	}
	if c.deps.Monitor != nil {
		c.deps.Monitor.Register()
	}
	c.publish(available)
	return nil
}

func (c *Coordinator) commitRunning(started notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStartupCancelled
	}
	if err := c.sm.transition(StateRunning); err != nil {
		return err
	}
	c.running.Store(true)
	c.publish(started)
	return nil
}

// teardownHandle shuts down a binder started after Stop already ran
func (c *Coordinator) teardownHandle(h *cloud.Handle) {
	if h == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.deps.TeardownTimeout)
	defer cancel()

	if err := h.Shutdown(ctx); err != nil {
		telemetry.ShutdownStageFailuresTotal.With("cloud_binder").Inc()
		log.Warn().Err(err).Msg("Failed to shut down cloud binder after cancelled startup")
	}
}

func (c *Coordinator) fail(err *StageError) {
	if terr := c.sm.transition(StateFailed); terr != nil {
		log.Debug().Err(terr).Msg("Could not record failed state")
	}
	telemetry.StartupFailuresTotal.With(err.Stage.String()).Inc()

	identity, _ := c.Identity()
	ev := c.event(notify.EventServerFailed, identity)
	ev.Error = err.Error()
	c.publish(ev)

	log.Error().Err(err.Err).Str("stage", err.Stage.String()).Msg("Could not initialize registry node")
}

// Stop shuts the node down. Only the first call does anything. Every
// teardown stage runs even when an earlier one fails.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.running.Store(false)

	if err := c.sm.transition(StateShuttingDown); err != nil {
		log.Debug().Err(err).Msg("Could not record shutting down state")
	}

	cancel := c.cancel
	started := c.started
	handle := c.handle
	identity := c.identity
	c.handle = nil
	c.contextInitialized = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		close(c.done)
	}

	log.Info().Msg("Shutting down registry node")

	if c.deps.Monitor != nil {
		c.stage("monitor", func() error {
			c.deps.Monitor.Shutdown()
			return nil
		})
	}
	if handle != nil {
		c.stage("cloud_binder", func() error {
			return handle.Shutdown(ctx)
		})
	}
	c.stage("server_context", func() error {
		return c.deps.ServerContext.Shutdown(ctx)
	})

	c.publish(c.event(notify.EventServerStopped, identity))

	if err := c.sm.transition(StateShutdown); err != nil {
		log.Debug().Err(err).Msg("Could not record shutdown state")
	}
	log.Info().Msg("Registry node shut down")
}

// stage runs one teardown step, logging and counting its failure
func (c *Coordinator) stage(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ShutdownStageFailuresTotal.With(name).Inc()
			log.Error().Interface("panic", r).Str("stage", name).Msg("Shutdown stage panicked")
		}
	}()

	if err := fn(); err != nil {
		telemetry.ShutdownStageFailuresTotal.With(name).Inc()
		log.Warn().Err(err).Str("stage", name).Msg("Shutdown stage failed")
	}
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Coordinator) event(t notify.EventType, identity environment.Identity) notify.Event {
	return notify.NewEvent(t, c.deps.Self.InstanceID, identity)
}

func (c *Coordinator) publish(ev notify.Event) {
	if c.deps.Publisher == nil {
		return
	}
	c.deps.Publisher.Publish(ev)
}
