// Package registry defines the service registry collaborators driven by the
// node lifecycle, plus an in-memory peer-aware registry used by the regnode
// binary.
package registry

import (
	"context"
	"errors"
)

// DataCenterName classifies where an instance runs
type DataCenterName string

const (
	DataCenterMyOwn  DataCenterName = "MyOwn"
	DataCenterAmazon DataCenterName = "Amazon"
)

// InstanceStatus is the advertised status of an instance
type InstanceStatus string

const (
	StatusUp           InstanceStatus = "UP"
	StatusDown         InstanceStatus = "DOWN"
	StatusStarting     InstanceStatus = "STARTING"
	StatusOutOfService InstanceStatus = "OUT_OF_SERVICE"
	StatusUnknown      InstanceStatus = "UNKNOWN"
)

// DataCenterInfo describes the datacenter of an instance
type DataCenterInfo struct {
	Name DataCenterName `msgpack:"name" json:"name"`
}

// InstanceInfo is a registered service instance
type InstanceInfo struct {
	InstanceID  string            `msgpack:"id" json:"instance_id"`
	AppName     string            `msgpack:"app" json:"app"`
	HostName    string            `msgpack:"host" json:"host_name"`
	DataCenter  DataCenterInfo    `msgpack:"datacenter" json:"datacenter"`
	Status      InstanceStatus    `msgpack:"status" json:"status"`
	Metadata    map[string]string `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
	LastUpdated int64             `msgpack:"last_updated" json:"last_updated"`
}

// Registry is the peer-aware registry driven by the node lifecycle
type Registry interface {
	// SyncUp copies the instance sets of peer nodes into the local registry
	// and returns how many instances were registered. Zero is a valid result.
	SyncUp(ctx context.Context) (int, error)
	// OpenForTraffic registers self and starts serving. count is the SyncUp result.
	OpenForTraffic(ctx context.Context, self InstanceInfo, count int) error
	Shutdown(ctx context.Context) error
}

// ServerContext is the node's server context handle
type ServerContext interface {
	Shutdown(ctx context.Context) error
}

// Peer is a remote registry node that can hand over its instance set
type Peer interface {
	Name() string
	FetchInstances(ctx context.Context) ([]InstanceInfo, error)
	Close() error
}

var (
	// ErrRegistryClosed is returned by operations on a registry after Shutdown
	ErrRegistryClosed = errors.New("registry is shut down")
	// ErrInvalidInstance is returned when registering an instance without an ID or app
	ErrInvalidInstance = errors.New("instance requires id and app name")
)
