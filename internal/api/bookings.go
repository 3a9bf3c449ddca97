package api

import (
	"net/http"

	"campusroomz/internal/booking"
	"campusroomz/internal/model"

	"github.com/gorilla/mux"
)

// SubmissionResponse is returned by create and reschedule.
type SubmissionResponse struct {
	SubmissionID string          `json:"submission_id"`
	State        booking.State   `json:"state"`
	Trail        []booking.State `json:"trail"`
	Booking      *model.Booking  `json:"booking,omitempty"`
}

// CancelRequest is the optional body of POST /bookings/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ConflictResponse is the result of the conflict predicate.
type ConflictResponse struct {
	Conflict  bool `json:"conflict"`
	Available bool `json:"available"`
}

// handleListBookings returns the caller's bookings.
// GET /api/v1/bookings?status=upcoming|past|cancelled
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	p := profileFrom(r.Context())
	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, booking.ReasonInvalidFormat, "status", "status must be upcoming, past or cancelled")
		return
	}

	bookings, err := s.deps.Bookings.List(r.Context(), p.ID, status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleCreateBooking submits a new booking.
// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var c booking.Candidate
	if err := decodeJSON(r, &c, false); err != nil {
		writeError(w, http.StatusBadRequest, "", "", "invalid JSON body")
		return
	}

	sub, err := s.deps.Bookings.Submit(r.Context(), profileFrom(r.Context()), c)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submissionResponse(sub))
}

// handleGetBooking returns one booking to its owner or an admin.
// GET /api/v1/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Bookings.Get(r.Context(), profileFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

// handleRescheduleBooking moves an upcoming booking.
// PUT /api/v1/bookings/{id}
func (s *HTTPServer) handleRescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var c booking.Candidate
	if err := decodeJSON(r, &c, false); err != nil {
		writeError(w, http.StatusBadRequest, "", "", "invalid JSON body")
		return
	}

	sub, err := s.deps.Bookings.Reschedule(r.Context(), profileFrom(r.Context()), mux.Vars(r)["id"], c)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse(sub))
}

// handleCancelBooking cancels an upcoming booking.
// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "", "", "invalid JSON body")
		return
	}

	b, err := s.deps.Bookings.Cancel(r.Context(), profileFrom(r.Context()), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

// handleBookingHistory returns the status changes of a booking.
// GET /api/v1/bookings/{id}/history
func (s *HTTPServer) handleBookingHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := s.deps.Bookings.History(r.Context(), profileFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if changes == nil {
		changes = []model.StatusChange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": changes})
}

// handleCheckConflict evaluates the availability predicate.
// POST /api/v1/rpc/check_booking_conflict
func (s *HTTPServer) handleCheckConflict(w http.ResponseWriter, r *http.Request) {
	var q model.ConflictQuery
	if err := decodeJSON(r, &q, false); err != nil {
		writeError(w, http.StatusBadRequest, "", "", "invalid JSON body")
		return
	}

	conflict, err := s.deps.Bookings.CheckAvailability(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictResponse{Conflict: conflict, Available: !conflict})
}

// handleStats returns the caller's dashboard numbers.
// GET /api/v1/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Bookings.Stats(r.Context(), profileFrom(r.Context()).ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func submissionResponse(sub *booking.Submission) SubmissionResponse {
	return SubmissionResponse{
		SubmissionID: sub.ID,
		State:        sub.State,
		Trail:        sub.Trail,
		Booking:      sub.Booking,
	}
}
