// Package notify publishes node lifecycle events to in-process subscribers
// and external sinks.
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/maxpert/regnode/environment"
)

// EventType names a lifecycle event
type EventType string

const (
	// EventRegistryAvailable is published once the registry answers queries.
	// Always precedes EventServerStarted.
	EventRegistryAvailable EventType = "registry.available"
	EventServerStarted     EventType = "server.started"
	EventServerStopped     EventType = "server.stopped"
	EventServerFailed      EventType = "server.failed"
)

// Event is a lifecycle notification
type Event struct {
	ID                 string               `msgpack:"id" json:"id"`
	Type               EventType            `msgpack:"type" json:"type"`
	InstanceID         string               `msgpack:"instance_id" json:"instance_id"`
	Identity           environment.Identity `msgpack:"identity" json:"identity"`
	InstancesRecovered int                  `msgpack:"instances_recovered" json:"instances_recovered"`
	Error              string               `msgpack:"error,omitempty" json:"error,omitempty"`
	Time               time.Time            `msgpack:"time" json:"time"`
}

// NewEvent creates an event stamped with a fresh ID and the current time
func NewEvent(t EventType, instanceID string, identity environment.Identity) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		InstanceID: instanceID,
		Identity:   identity,
		Time:       time.Now().UTC(),
	}
}
