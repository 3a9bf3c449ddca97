package api

import (
	"errors"
	"net/http"
	"time"

	"campusroomz/internal/booking"
	"campusroomz/internal/model"
)

// handleAdminBookings lists every booking on a day.
// GET /api/v1/admin/bookings?date=YYYY-MM-DD
func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Access.RequireAdmin(profileFrom(r.Context()), "viewing all bookings"); err != nil {
		writeError(w, http.StatusForbidden, booking.ReasonForbidden, "", err.Error())
		return
	}

	now := s.deps.Bookings.Now()
	date := r.URL.Query().Get("date")
	if date == "" {
		date = now.Format(model.DateLayout)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusUnprocessableEntity, booking.ReasonInvalidFormat, "date", "date must be YYYY-MM-DD")
		return
	}

	list, err := s.deps.Schedule.ListBookingsOnDate(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	out := make([]model.Booking, 0, len(list))
	for i := range list {
		out = append(out, list[i].WithEffectiveStatus(now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "bookings": out})
}

// handleAdminSyncRooms reloads the room catalog file.
// POST /api/v1/admin/rooms/sync
func (s *HTTPServer) handleAdminSyncRooms(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r.Context())
	if err := s.deps.Access.RequireAdmin(p, "syncing rooms"); err != nil {
		writeError(w, http.StatusForbidden, booking.ReasonForbidden, "", err.Error())
		return
	}
	if s.deps.SyncRooms == nil {
		writeError(w, http.StatusNotImplemented, "", "", "room sync is not configured")
		return
	}
	if err := s.deps.SyncRooms(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("user_id", p.ID).Msg("room sync failed")
		writeError(w, http.StatusInternalServerError, booking.ReasonPersistenceFailed, "", "room sync failed")
		return
	}
	s.logger.Info().Str("user_id", p.ID).Msg("room catalog synced")
	w.WriteHeader(http.StatusNoContent)
}
