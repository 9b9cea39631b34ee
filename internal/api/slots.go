package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/slotline/internal/binding"
	"github.com/nerrad567/slotline/internal/provider"
	"github.com/nerrad567/slotline/internal/resolver"
)

// StatusResponse summarises the resolver's current state.
type StatusResponse struct {
	Resolving     bool           `json:"resolving"`
	DeviceDefault string         `json:"device_default,omitempty"`
	SlotCount     int            `json:"slot_count"`
	Overrides     map[string]any `json:"overrides"`
	Candidates    int            `json:"candidates"`
}

// CandidateView is the JSON rendering of a catalog candidate.
type CandidateView struct {
	Package      string   `json:"package"`
	Declared     []string `json:"declared"`
	PendingQuery bool     `json:"pending_query"`
	Strategy     string   `json:"strategy"`
}

// FeatureView is the JSON rendering of a live feature handle.
type FeatureView struct {
	ID       string `json:"id"`
	Package  string `json:"package"`
	Slot     int    `json:"slot"`
	Feature  string `json:"feature"`
	RemoteID string `json:"remote_id"`
	Status   string `json:"status"`
}

// RegistrationView is the JSON rendering of a registration facet.
type RegistrationView struct {
	Package string `json:"package"`
	Slot    int    `json:"slot"`
	Feature string `json:"feature"`
	State   string `json:"state"`
}

// ConfigView is the JSON rendering of a config facet.
type ConfigView struct {
	Package string            `json:"package"`
	Slot    int               `json:"slot"`
	Feature string            `json:"feature"`
	Values  map[string]string `json:"values"`
}

// ConfigSetRequest stores one config value on a live feature.
type ConfigSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OverrideRequest sets the owning package for a slot.
type OverrideRequest struct {
	Package string `json:"package"`
}

// SlotEnabledRequest toggles a slot's enabled state.
type SlotEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// PackageEventRequest notifies the resolver of a package change.
type PackageEventRequest struct {
	Package string `json:"package"`
	Kind    string `json:"kind"`
}

// handleStatus returns a snapshot of the resolver state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	overrides := make(map[string]any)
	for slot, pkg := range s.resolver.Overrides() {
		overrides[strconv.Itoa(slot)] = pkg
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Resolving:     s.resolver.IsResolving(),
		DeviceDefault: s.resolver.DeviceDefault(),
		SlotCount:     s.resolver.SlotCount(),
		Overrides:     overrides,
		Candidates:    len(s.resolver.Candidates()),
	})
}

// handleListCandidates returns the admitted candidate catalog.
func (s *Server) handleListCandidates(w http.ResponseWriter, _ *http.Request) {
	candidates := s.resolver.Candidates()
	views := make([]CandidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, CandidateView{
			Package:      c.Package,
			Declared:     c.Declared.Strings(),
			PendingQuery: c.PendingQuery,
			Strategy:     string(c.Strategy),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": views, "count": len(views)})
}

// handleControllerStats returns a diagnostic snapshot of every
// connection controller.
func (s *Server) handleControllerStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.resolver.ControllerStats()
	writeJSON(w, http.StatusOK, map[string]any{"controllers": stats, "count": len(stats)})
}

// handleGetFeature returns the live handle for a slot/feature pair.
func (s *Server) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.featureParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, FeatureView{
		ID:       handle.ID,
		Package:  handle.Package,
		Slot:     handle.Slot,
		Feature:  handle.Feature.String(),
		RemoteID: handle.RemoteID,
		Status:   handle.Status().String(),
	})
}

// featureParam resolves the slot/feature pair from the URL to a live
// handle, writing the error response itself when nothing serves it.
func (s *Server) featureParam(w http.ResponseWriter, r *http.Request) (*binding.RemoteFeature, bool) {
	slot, ok := slotParam(w, r)
	if !ok {
		return nil, false
	}

	feature, err := provider.ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		writeBadRequest(w, "unknown feature: "+chi.URLParam(r, "feature"))
		return nil, false
	}

	handle, err := s.resolver.GetFeatureHandle(slot, feature)
	switch {
	case errors.Is(err, resolver.ErrInvalidSlot):
		writeBadRequest(w, "slot out of range")
		return nil, false
	case errors.Is(err, resolver.ErrFeatureNotAvailable):
		writeNotFound(w, "no live provider for feature")
		return nil, false
	case err != nil:
		writeInternalError(w, "feature lookup failed")
		return nil, false
	}
	return handle, true
}

// handleGetRegistration returns the registration state of a live pair.
func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.featureParam(w, r)
	if !ok {
		return
	}

	reg := handle.Registration()
	writeJSON(w, http.StatusOK, RegistrationView{
		Package: reg.Package(),
		Slot:    handle.Slot,
		Feature: handle.Feature.String(),
		State:   reg.State().String(),
	})
}

// handleGetConfig returns the config values of a live pair.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.featureParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, ConfigView{
		Package: handle.Package,
		Slot:    handle.Slot,
		Feature: handle.Feature.String(),
		Values:  handle.Config().Values(),
	})
}

// handleSetConfig stores one config value on a live pair.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.featureParam(w, r)
	if !ok {
		return
	}

	var req ConfigSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Key == "" {
		writeBadRequest(w, "key is required")
		return
	}

	handle.Config().Set(req.Key, req.Value)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetOverride routes a slot's ownership to the named package.
func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Package == "" {
		writeBadRequest(w, "package is required")
		return
	}

	if err := s.resolver.SetOverride(slot, req.Package); err != nil {
		writeResolverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "package": req.Package})
}

// handleClearOverride returns a slot to the device default.
func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	if err := s.resolver.ClearOverride(slot); err != nil {
		writeResolverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "cleared": true})
}

// handleSetSlotEnabled forwards a slot enable or disable request to the
// bound providers serving the slot.
func (s *Server) handleSetSlotEnabled(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req SlotEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.resolver.SetSlotEnabled(slot, req.Enabled); err != nil {
		writeResolverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "enabled": req.Enabled})
}

// handlePackageEvent notifies the resolver of a package install,
// change or removal. The same notifications normally arrive over MQTT;
// this endpoint exists for tooling and tests.
func (s *Server) handlePackageEvent(w http.ResponseWriter, r *http.Request) {
	var req PackageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Package == "" {
		writeBadRequest(w, "package is required")
		return
	}

	switch req.Kind {
	case "added":
		s.resolver.NotifyPackageAdded(req.Package)
	case "changed":
		s.resolver.NotifyPackageChanged(req.Package)
	case "removed":
		s.resolver.NotifyPackageRemoved(req.Package)
	default:
		writeBadRequest(w, "kind must be added, changed or removed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"package": req.Package, "kind": req.Kind})
}

// slotParam parses the {slot} URL parameter, writing a 400 on failure.
func slotParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil || slot < 0 {
		writeBadRequest(w, "slot must be a non-negative integer")
		return 0, false
	}
	return slot, true
}

// writeResolverError maps resolver errors onto HTTP responses.
func writeResolverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resolver.ErrInvalidSlot):
		writeBadRequest(w, "slot out of range")
	case errors.Is(err, resolver.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeConflict, "resolver is stopped")
	default:
		writeInternalError(w, err.Error())
	}
}
