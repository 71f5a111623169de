package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"presenced/internal/models"
)

// PresenceService defines the presence operations the API exposes
type PresenceService interface {
	Available(username string) bool
	CurrentPresence(username string) (models.Presence, bool)
	Presences(username string) []models.Presence
	LastPresenceStatus(ctx context.Context, username string) (string, bool)
	LastActivity(ctx context.Context, username string) (time.Duration, bool)
	HandleProbe(ctx context.Context, packet models.Presence)
	CanProbePresence(prober models.Address, probee string) bool
}

// Response is the API response envelope
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CurrentPresenceData is the body of a current-presence reply
type CurrentPresenceData struct {
	Username string           `json:"username"`
	Online   bool             `json:"online"`
	Presence *models.Presence `json:"presence,omitempty"`
}

// LastPresenceData is the body of a last-presence reply
type LastPresenceData struct {
	Username          string  `json:"username"`
	Status            string  `json:"status,omitempty"`
	LastActiveSeconds float64 `json:"last_active_seconds"`
}

// ProbeRequest is the request body for triggering a probe
type ProbeRequest struct {
	Prober string `json:"prober"`
	Probee string `json:"probee"`
}

// ProbeData is the body of a probe reply
type ProbeData struct {
	Accepted bool `json:"accepted"`
	Allowed  bool `json:"allowed"`
}

// PresenceHandler handles HTTP requests for presence operations
type PresenceHandler struct {
	service PresenceService
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(service PresenceService) *PresenceHandler {
	return &PresenceHandler{
		service: service,
	}
}

// GetPresence handles GET /api/v1/presence/{username}
func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	username := vars["username"]

	if username == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}

	presence, found := h.service.CurrentPresence(username)
	data := CurrentPresenceData{
		Username: username,
		Online:   h.service.Available(username),
	}
	if found {
		data.Presence = &presence
	}

	h.writeJSONResponse(w, http.StatusOK, Response{Success: true, Data: data})
}

// GetSessions handles GET /api/v1/presence/{username}/sessions
func (h *PresenceHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	username := vars["username"]

	if username == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}

	presences := h.service.Presences(username)
	h.writeJSONResponse(w, http.StatusOK, Response{Success: true, Data: presences})
}

// GetLastPresence handles GET /api/v1/presence/{username}/last
func (h *PresenceHandler) GetLastPresence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	username := vars["username"]

	if username == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}

	elapsed, found := h.service.LastActivity(r.Context(), username)
	if !found {
		h.writeErrorResponse(w, http.StatusNotFound, "no offline presence recorded for "+username)
		return
	}

	status, _ := h.service.LastPresenceStatus(r.Context(), username)
	data := LastPresenceData{
		Username:          username,
		Status:            status,
		LastActiveSeconds: elapsed.Seconds(),
	}

	h.writeJSONResponse(w, http.StatusOK, Response{Success: true, Data: data})
}

// Probe handles POST /api/v1/presence/probe
func (h *PresenceHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	prober, err := models.ParseAddress(req.Prober)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid prober address")
		return
	}
	probee, err := models.ParseAddress(req.Probee)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid probee address")
		return
	}

	packet := models.Presence{Type: models.TypeProbe, From: prober, To: probee}
	h.service.HandleProbe(r.Context(), packet)

	data := ProbeData{
		Accepted: true,
		Allowed:  h.service.CanProbePresence(prober, probee.Node),
	}
	h.writeJSONResponse(w, http.StatusAccepted, Response{Success: true, Data: data})
}

// writeJSONResponse writes a JSON response
func (h *PresenceHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes an error response
func (h *PresenceHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, Response{Success: false, Error: message})
}
