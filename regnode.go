package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/maxpert/regnode/admin"
	"github.com/maxpert/regnode/cfg"
	"github.com/maxpert/regnode/cloud"
	"github.com/maxpert/regnode/lifecycle"
	"github.com/maxpert/regnode/notify"
	"github.com/maxpert/regnode/notify/sink"
	"github.com/maxpert/regnode/registry"
	"github.com/maxpert/regnode/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("instance_id", cfg.Config.Node.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Str("app", cfg.Config.Node.AppName).Msg("regnode - peer-replicated registry node")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Local registry seeded from peers
	reg := buildRegistry()
	serverContext := registry.NewServerContext(reg)

	// Lifecycle events and their external sinks
	hub := notify.NewHub(cfg.Config.Events.BufferSize)
	forwarders, err := startForwarders(hub)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start event sinks")
		return
	}

	coord, err := lifecycle.New(lifecycle.Dependencies{
		Store:         cfg.NewPropertyStore(cfg.Config.Properties),
		Registry:      reg,
		ServerContext: serverContext,
		Self:          selfInstance(),
		BinderFactory: cloud.NewAmazonFactory(
			cfg.Config.Cloud.MetadataEndpoint,
			time.Duration(cfg.Config.Cloud.VerifyIntervalSeconds)*time.Second,
		),
		Publisher:      hub,
		Monitor:        telemetry.NewRegistryCollector(reg, time.Duration(cfg.Config.Registry.StatsIntervalSeconds)*time.Second),
		StartupTimeout: time.Duration(cfg.Config.Registry.StartupTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create lifecycle coordinator")
		return
	}

	// HTTP surface is up before startup so peers and probes can reach the node
	handlers := admin.NewHandlers(coord, reg, cfg.Config.Node.InstanceID)
	addr := net.JoinHostPort(cfg.Config.HTTP.BindAddress, strconv.Itoa(cfg.Config.HTTP.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           admin.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	grpcServer, err := startGRPCServer(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start gRPC peer listener")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startup := coord.Start()
	failed := make(chan error, 1)
	go func() {
		if _, err := startup.Get(); err != nil && !errors.Is(err, lifecycle.ErrStartupCancelled) {
			failed <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-failed:
		log.Error().Err(err).Msg("Registry node failed to start")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Config.Registry.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	coord.OnDestroy(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	for _, f := range forwarders {
		if err := f.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Event sink shutdown failed")
		}
	}

	log.Info().Msg("Shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func buildRegistry() *registry.PeerAwareRegistry {
	peerTimeout := time.Duration(cfg.Config.Registry.PeerTimeoutMS) * time.Millisecond

	peers := make([]registry.Peer, 0, len(cfg.Config.Registry.PeerURLs)+len(cfg.Config.Registry.PeerGRPCAddrs))
	for _, url := range cfg.Config.Registry.PeerURLs {
		peers = append(peers, registry.NewHTTPPeer(url, peerTimeout))
	}
	for _, addr := range cfg.Config.Registry.PeerGRPCAddrs {
		p, err := registry.NewGRPCPeer(addr, cfg.Config.Node.InstanceID, peerTimeout)
		if err != nil {
			log.Warn().Err(err).Str("peer", addr).Msg("Skipping gRPC peer")
			continue
		}
		peers = append(peers, p)
	}
	log.Info().Int("peers", len(peers)).Msg("Configured registry peers")

	return registry.NewPeerAwareRegistry(registry.Options{
		Peers:          peers,
		SyncRetries:    cfg.Config.Registry.SyncRetries,
		SyncRetryWait:  time.Duration(cfg.Config.Registry.SyncRetryWaitMS) * time.Millisecond,
		EmptySyncGrace: time.Duration(cfg.Config.Registry.EmptySyncGraceSeconds) * time.Second,
	})
}

// startGRPCServer serves peer snapshots over gRPC when a port is configured
func startGRPCServer(reg *registry.PeerAwareRegistry) (*grpc.Server, error) {
	if cfg.Config.GRPC.Port == 0 {
		return nil, nil
	}

	addr := net.JoinHostPort(cfg.Config.GRPC.BindAddress, strconv.Itoa(cfg.Config.GRPC.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer()
	registry.RegisterPeerService(s, reg)
	go func() {
		log.Info().Str("address", addr).Msg("Starting gRPC peer listener")
		if err := s.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC peer listener stopped")
		}
	}()
	return s, nil
}

func startForwarders(hub *notify.Hub) ([]*notify.Forwarder, error) {
	forwarders := make([]*notify.Forwarder, 0, len(cfg.Config.Events.Sinks))
	for _, sinkCfg := range cfg.Config.Events.Sinks {
		s, err := sink.New(sinkCfg)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", sinkCfg.Name, err)
		}

		f, err := notify.NewForwarder(hub, sinkCfg, s)
		if err != nil {
			s.Close()
			return nil, err
		}
		f.Start()
		forwarders = append(forwarders, f)

		log.Info().Str("sink", sinkCfg.Name).Str("type", sinkCfg.Type).Msg("Event sink started")
	}
	return forwarders, nil
}

func selfInstance() registry.InstanceInfo {
	dc := registry.DataCenterMyOwn
	if cfg.Config.Node.DataCenterType == cfg.DataCenterAmazon {
		dc = registry.DataCenterAmazon
	}

	return registry.InstanceInfo{
		InstanceID: cfg.Config.Node.InstanceID,
		AppName:    cfg.Config.Node.AppName,
		HostName:   cfg.Config.Node.HostName,
		DataCenter: registry.DataCenterInfo{Name: dc},
		Status:     registry.StatusStarting,
	}
}
