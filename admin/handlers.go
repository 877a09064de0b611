// Package admin serves the node's HTTP surface: lifecycle status, discovery,
// instance registration and the peer snapshot used by SyncUp.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/maxpert/regnode/environment"
	"github.com/maxpert/regnode/lifecycle"
	"github.com/maxpert/regnode/registry"
	"github.com/rs/zerolog/log"
)

// Lifecycle is the read-only view of the node lifecycle
type Lifecycle interface {
	State() lifecycle.State
	IsRunning() bool
	Identity() (environment.Identity, bool)
}

// Registry is the instance table served for discovery
type Registry interface {
	Instances() []registry.InstanceInfo
	InstanceCount() int
	ShouldAllowAccess() bool
	Register(inst registry.InstanceInfo) error
	Cancel(instanceID string) bool
}

// Handlers serves the HTTP endpoints
type Handlers struct {
	lifecycle  Lifecycle
	registry   Registry
	instanceID string
}

// NewHandlers creates handlers for the node identified by instanceID
func NewHandlers(lc Lifecycle, reg Registry, instanceID string) *Handlers {
	return &Handlers{
		lifecycle:  lc,
		registry:   reg,
		instanceID: instanceID,
	}
}

// writeJSONResponse writes data wrapped in a {"data": ...} envelope
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
