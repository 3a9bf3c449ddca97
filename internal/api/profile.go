package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"campusroomz/internal/booking"
	"campusroomz/internal/events"
	"campusroomz/internal/model"

	"github.com/gorilla/mux"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// MeResponse is the response for GET /me.
type MeResponse struct {
	Profile *model.Profile `json:"profile"`
	IsAdmin bool           `json:"is_admin"`
}

// ProfileUpdateRequest is the body of PUT /me/profile.
type ProfileUpdateRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

// GET /api/v1/me
func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r.Context())
	writeJSON(w, http.StatusOK, MeResponse{Profile: p, IsAdmin: s.deps.Access.IsAdmin(p)})
}

// handleUpdateProfile changes the caller's name and department.
// PUT /api/v1/me/profile
func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "", "", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Department = strings.TrimSpace(req.Department)
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, booking.ReasonMissingField, "name", "name is required")
		return
	}

	p := profileFrom(r.Context())
	updated, err := s.deps.Profiles.UpdateProfile(r.Context(), p.ID, req.Name, req.Department)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if s.deps.Events != nil {
		ev := events.ProfileEvent{UserID: updated.ID, Name: updated.Name, Department: updated.Department}
		if err := s.deps.Events.PublishJSON(events.ProfileUpdated, ev); err != nil {
			s.logger.Warn().Err(err).Str("user_id", updated.ID).Msg("profile event handlers failed")
		}
	}
	writeJSON(w, http.StatusOK, MeResponse{Profile: updated, IsAdmin: s.deps.Access.IsAdmin(updated)})
}

// handleNotifications returns the caller's notifications, newest first.
// GET /api/v1/notifications?unread=true&limit=50
func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := feedLimit(w, r)
	if !ok {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"

	list, err := s.deps.Feed.ListNotifications(r.Context(), profileFrom(r.Context()).ID, unread, limit)
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// POST /api/v1/notifications/{id}/read
func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Feed.MarkNotificationRead(r.Context(), profileFrom(r.Context()).ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivities returns the caller's activity log, newest first.
// GET /api/v1/activities?limit=50
func (s *HTTPServer) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := feedLimit(w, r)
	if !ok {
		return
	}

	list, err := s.deps.Feed.ListActivities(r.Context(), profileFrom(r.Context()).ID, limit)
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if list == nil {
		list = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": list})
}

func feedLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultFeedLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusUnprocessableEntity, booking.ReasonInvalidFormat, "limit", "limit must be a positive integer")
		return 0, false
	}
	if n > maxFeedLimit {
		n = maxFeedLimit
	}
	return n, true
}
