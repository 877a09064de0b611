package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cespare/xxhash/v2"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// DataCenterType is the declared datacenter classification of this node
type DataCenterType string

const (
	DataCenterMyOwn  DataCenterType = "MyOwn"  // Self-hosted / on-prem
	DataCenterAmazon DataCenterType = "Amazon" // AWS, enables the cloud binder
)

// NodeConfiguration describes the self instance advertised to the registry
type NodeConfiguration struct {
	InstanceID     string         `toml:"instance_id"`
	AppName        string         `toml:"app_name"`
	HostName       string         `toml:"host_name"`
	DataCenterType DataCenterType `toml:"datacenter_type"`
}

// RegistryConfiguration controls the peer-aware registry
type RegistryConfiguration struct {
	PeerURLs               []string `toml:"peer_urls"`
	PeerGRPCAddrs          []string `toml:"peer_grpc_addrs"` // host:port of peers serving snapshots over gRPC
	SyncRetries            int      `toml:"sync_retries"`
	SyncRetryWaitMS        int      `toml:"sync_retry_wait_ms"`
	PeerTimeoutMS          int      `toml:"peer_timeout_ms"`
	EmptySyncGraceSeconds  int      `toml:"empty_sync_grace_seconds"` // Discovery withheld after an empty sync
	StatsIntervalSeconds   int      `toml:"stats_interval_seconds"`
	StartupTimeoutSeconds  int      `toml:"startup_timeout_seconds"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

// CloudConfiguration controls the Amazon cloud binder
type CloudConfiguration struct {
	MetadataEndpoint      string `toml:"metadata_endpoint"` // Empty = SDK default
	VerifyIntervalSeconds int    `toml:"verify_interval_seconds"`
}

// SinkConfiguration describes one external lifecycle event sink
type SinkConfiguration struct {
	Name      string   `toml:"name"`
	Type      string   `toml:"type"` // "nats" or "kafka"
	NatsURL   string   `toml:"nats_url"`
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	Events    []string `toml:"events"` // Glob patterns on event type, empty = all
	BatchSize int      `toml:"batch_size"`
}

// EventsConfiguration controls lifecycle event fan-out
type EventsConfiguration struct {
	BufferSize int                 `toml:"buffer_size"`
	Sinks      []SinkConfiguration `toml:"sinks"`
}

// HTTPConfiguration for the admin/discovery listener
type HTTPConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	AdminSecret string `toml:"admin_secret"` // empty = admin routes unauthenticated
}

// GRPCConfiguration for the peer snapshot listener
type GRPCConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"` // 0 = disabled
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	Node       NodeConfiguration       `toml:"node"`
	Registry   RegistryConfiguration   `toml:"registry"`
	Cloud      CloudConfiguration      `toml:"cloud"`
	Events     EventsConfiguration     `toml:"events"`
	HTTP       HTTPConfiguration       `toml:"http"`
	GRPC       GRPCConfiguration       `toml:"grpc"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`

	// Properties seed the property store read by the environment resolver
	Properties map[string]string `toml:"properties"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "config.toml", "Path to configuration file")
	InstanceIDFlag  = flag.String("instance-id", "", "Instance ID (overrides config, empty=auto)")
	PortFlag        = flag.Int("port", 0, "HTTP port (overrides config)")
	DatacenterFlag  = flag.String("datacenter", "", "Deployment datacenter property (overrides config)")
	EnvironmentFlag = flag.String("environment", "", "Deployment environment property (overrides config)")
)

// Default configuration
var Config = &Configuration{
	Node: NodeConfiguration{
		InstanceID:     "", // Auto-generate
		AppName:        "REGNODE",
		DataCenterType: DataCenterMyOwn,
	},

	Registry: RegistryConfiguration{
		PeerURLs:               []string{},
		PeerGRPCAddrs:          []string{},
		SyncRetries:            5,
		SyncRetryWaitMS:        30000,
		PeerTimeoutMS:          5000,
		EmptySyncGraceSeconds:  300, // 5 minutes
		StatsIntervalSeconds:   30,
		StartupTimeoutSeconds:  600,
		ShutdownTimeoutSeconds: 30,
	},

	Cloud: CloudConfiguration{
		VerifyIntervalSeconds: 60,
	},

	Events: EventsConfiguration{
		BufferSize: 16,
	},

	HTTP: HTTPConfiguration{
		BindAddress: "0.0.0.0",
		Port:        8761,
	},

	GRPC: GRPCConfiguration{
		BindAddress: "0.0.0.0",
		Port:        0,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},

	Properties: map[string]string{},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if Config.Properties == nil {
		Config.Properties = map[string]string{}
	}

	// Apply CLI overrides
	if *InstanceIDFlag != "" {
		Config.Node.InstanceID = *InstanceIDFlag
	}
	if *PortFlag != 0 {
		Config.HTTP.Port = *PortFlag
	}
	if *DatacenterFlag != "" {
		Config.Properties[KeyDatacenter] = *DatacenterFlag
	}
	if *EnvironmentFlag != "" {
		Config.Properties[KeyEnvironment] = *EnvironmentFlag
	}

	if Config.Node.InstanceID == "" {
		id, err := generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		Config.Node.InstanceID = id
		log.Info().Str("instance_id", id).Msg("Auto-generated instance ID")
	}

	if Config.Node.HostName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get hostname, using localhost")
			hostname = "localhost"
		}
		Config.Node.HostName = hostname
	}

	return nil
}

// generateInstanceID derives a stable instance ID from the machine ID
func generateInstanceID() (string, error) {
	id, err := machineid.ProtectedID("regnode")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(id)), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.HTTP.Port < 1 || Config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", Config.HTTP.Port)
	}

	if Config.GRPC.Port < 0 || Config.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", Config.GRPC.Port)
	}

	if Config.Node.AppName == "" {
		return fmt.Errorf("node app name must not be empty")
	}

	switch Config.Node.DataCenterType {
	case DataCenterMyOwn, DataCenterAmazon:
	default:
		return fmt.Errorf("invalid datacenter type: %s", Config.Node.DataCenterType)
	}

	if Config.Registry.SyncRetries < 0 {
		return fmt.Errorf("registry sync retries must be >= 0")
	}

	if Config.Registry.SyncRetryWaitMS < 0 {
		return fmt.Errorf("registry sync retry wait must be >= 0")
	}

	if Config.Registry.PeerTimeoutMS < 1 {
		return fmt.Errorf("registry peer timeout must be >= 1ms")
	}

	if Config.Registry.EmptySyncGraceSeconds < 0 {
		return fmt.Errorf("empty sync grace window must be >= 0")
	}

	if Config.Registry.StatsIntervalSeconds < 1 {
		return fmt.Errorf("registry stats interval must be >= 1 second")
	}

	if Config.Registry.ShutdownTimeoutSeconds < 1 {
		return fmt.Errorf("shutdown timeout must be >= 1 second")
	}

	if Config.Cloud.VerifyIntervalSeconds < 1 {
		return fmt.Errorf("cloud verify interval must be >= 1 second")
	}

	if Config.Events.BufferSize < 1 {
		return fmt.Errorf("event buffer size must be >= 1")
	}

	for _, sink := range Config.Events.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("event sink name must not be empty")
		}
		if sink.Type != "nats" && sink.Type != "kafka" {
			return fmt.Errorf("event sink %q: unknown type %q", sink.Name, sink.Type)
		}
	}

	return nil
}

// IsAdminAuthEnabled reports whether admin routes require the shared secret
func IsAdminAuthEnabled() bool {
	return Config.HTTP.AdminSecret != ""
}

// GetAdminSecret returns the shared secret for admin routes
func GetAdminSecret() string {
	return Config.HTTP.AdminSecret
}
