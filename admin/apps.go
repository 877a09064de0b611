package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/regnode/registry"
	"github.com/rs/zerolog/log"
)

const maxRegistrationBytes = 1 << 20

// handleListApps serves every instance, or 503 while the registry withholds discovery
func (h *Handlers) handleListApps(w http.ResponseWriter, r *http.Request) {
	if !h.registry.ShouldAllowAccess() {
		writeErrorResponse(w, http.StatusServiceUnavailable, "registry is not serving discovery yet")
		return
	}
	writeJSONResponse(w, http.StatusOK, h.registry.Instances())
}

func (h *Handlers) handleGetApp(w http.ResponseWriter, r *http.Request) {
	if !h.registry.ShouldAllowAccess() {
		writeErrorResponse(w, http.StatusServiceUnavailable, "registry is not serving discovery yet")
		return
	}

	app := chi.URLParam(r, "app")
	matched := make([]registry.InstanceInfo, 0)
	for _, inst := range h.registry.Instances() {
		if strings.EqualFold(inst.AppName, app) {
			matched = append(matched, inst)
		}
	}
	if len(matched) == 0 {
		writeErrorResponse(w, http.StatusNotFound, "application '"+app+"' not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, matched)
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.lifecycle.IsRunning() {
		writeErrorResponse(w, http.StatusServiceUnavailable, "node is "+h.lifecycle.State().String())
		return
	}

	var inst registry.InstanceInfo
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBytes)).Decode(&inst); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid instance: "+err.Error())
		return
	}

	if err := h.registry.Register(inst); err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidInstance):
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, registry.ErrRegistryClosed):
			writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Debug().Str("instance_id", inst.InstanceID).Str("app", inst.AppName).Msg("Instance registered")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if instanceID == h.instanceID {
		writeErrorResponse(w, http.StatusConflict, "cannot cancel this node's own registration")
		return
	}
	if !h.registry.Cancel(instanceID) {
		writeErrorResponse(w, http.StatusNotFound, "instance '"+instanceID+"' not found")
		return
	}

	log.Debug().Str("instance_id", instanceID).Msg("Instance cancelled")
	w.WriteHeader(http.StatusOK)
}

// handlePeerSnapshot serves the local instance table to syncing peers
func (h *Handlers) handlePeerSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := registry.EncodeInstances(h.registry.Instances())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode peer snapshot")
		writeErrorResponse(w, http.StatusInternalServerError, "failed to encode snapshot")
		return
	}

	w.Header().Set("Content-Type", registry.SnapshotContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write peer snapshot")
	}
}
