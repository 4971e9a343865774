package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"
	"crimepatrol/internal/service"
	"crimepatrol/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
)

// EmergencyHandler handles emergency ping endpoints
type EmergencyHandler struct {
	svc *service.EmergencyService
}

// NewEmergencyHandler creates a new emergency handler
func NewEmergencyHandler(svc *service.EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{svc: svc}
}

// CreatedResponse is returned when a POST opens a new session
type CreatedResponse struct {
	SessionID string                  `json:"sessionId"`
	Session   *model.EmergencySession `json:"session"`
}

// UpdateStatusRequest is the request body for PATCH /v1/emergency/pings/{id}/status
type UpdateStatusRequest struct {
	Status model.SessionStatus `json:"status"`
}

// PostLocation handles POST /v1/emergency/location. Without a sessionId it opens a new
// session, with one it records a continuous ping.
func (h *EmergencyHandler) PostLocation(w http.ResponseWriter, r *http.Request) {
	var req model.LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SessionID == "" {
		session, err := h.svc.Create(r.Context(), model.CreateSessionRequest{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Timestamp: req.Timestamp,
			UserID:    req.UserID,
		}, "")
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreatedResponse{SessionID: session.ID, Session: session})
		return
	}

	session, err := h.svc.UpdateLocation(r.Context(), req, "")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.LocationAck{
		SessionID: session.ID,
		Timestamp: session.LastPing.UTC().Format(time.RFC3339Nano),
		Success:   true,
	})
}

// List handles GET /v1/emergency/pings?status=&since=&limit=
func (h *EmergencyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := model.SessionQuery{Status: model.SessionStatus(q.Get("status"))}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		query.Since = &since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}

	sessions, err := h.svc.List(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Nearby handles GET /v1/emergency/pings/nearby?lat=&lng=&radiusKm=
func (h *EmergencyHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req model.NearbyRequest
	var err error

	if req.Latitude, err = floatParam(q.Get("lat")); err != nil {
		writeError(w, http.StatusBadRequest, "lat must be a number")
		return
	}
	if req.Longitude, err = floatParam(q.Get("lng")); err != nil {
		writeError(w, http.StatusBadRequest, "lng must be a number")
		return
	}
	radius, err := floatParam(q.Get("radiusKm"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "radiusKm must be a number")
		return
	}
	if radius != nil {
		req.RadiusKm = *radius
	}

	sessions, err := h.svc.Nearby(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get handles GET /v1/emergency/pings/{id}
func (h *EmergencyHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// UpdateStatus handles PATCH /v1/emergency/pings/{id}/status
func (h *EmergencyHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetOperatorID(r.Context())
	if operatorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.UpdateStatus(r.Context(), mux.Vars(r)["id"], req.Status, operatorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func floatParam(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var conflicts = []error{
	repository.ErrSessionResolved,
	repository.ErrAlreadyResponded,
	repository.ErrStalePing,
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, repository.ErrNotFound.Error())
		return
	}
	for _, c := range conflicts {
		if errors.Is(err, c) {
			writeError(w, http.StatusConflict, c.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "store unavailable")
}
