package admin

import (
	"net/http"

	"github.com/maxpert/regnode/environment"
)

type lifecycleStatus struct {
	InstanceID string                `json:"instance_id"`
	State      string                `json:"state"`
	Running    bool                  `json:"running"`
	Identity   *environment.Identity `json:"identity,omitempty"`
	Instances  int                   `json:"instances"`
	Serving    bool                  `json:"serving"`
}

func (h *Handlers) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	status := lifecycleStatus{
		InstanceID: h.instanceID,
		State:      h.lifecycle.State().String(),
		Running:    h.lifecycle.IsRunning(),
		Instances:  h.registry.InstanceCount(),
		Serving:    h.registry.ShouldAllowAccess(),
	}
	if identity, ok := h.lifecycle.Identity(); ok {
		status.Identity = &identity
	}

	writeJSONResponse(w, http.StatusOK, status)
}

// handleHealth is 200 only while the node is running
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.lifecycle.State().String()
	if !h.lifecycle.IsRunning() {
		writeErrorResponse(w, http.StatusServiceUnavailable, "node is "+state)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"state": state})
}
