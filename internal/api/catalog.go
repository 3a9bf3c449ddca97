package api

import (
	"errors"
	"net/http"

	"campusroomz/internal/booking"
	"campusroomz/internal/model"
	"campusroomz/internal/slots"

	"github.com/gorilla/mux"
)

// SlotsResponse is the response for GET /rooms/{name}/slots.
type SlotsResponse struct {
	Room  string       `json:"room"`
	Date  string       `json:"date"`
	Slots []slots.Slot `json:"slots"`
}

// handleRooms returns active rooms.
// GET /api/v1/rooms
func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.deps.Rooms.ListActiveRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// handleRoomSlots returns the slot grid of one room for a date.
// GET /api/v1/rooms/{name}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleRoomSlots(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusUnprocessableEntity, booking.ReasonMissingField, "date", "date is required")
		return
	}

	room, err := s.deps.Rooms.GetRoomByName(r.Context(), name)
	switch {
	case errors.Is(err, model.ErrNotFound) || (err == nil && !room.IsActive):
		writeError(w, http.StatusNotFound, booking.ReasonNotFound, "", "room not found")
		return
	case err != nil:
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}

	grid, err := s.deps.Slots.GenerateSlots(r.Context(), room.Name, date)
	if err != nil {
		if errors.Is(err, booking.ErrInvalidFormat) {
			writeError(w, http.StatusUnprocessableEntity, booking.ReasonInvalidFormat, "date", "date must be YYYY-MM-DD")
			return
		}
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if grid == nil {
		grid = []slots.Slot{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{Room: room.Name, Date: date, Slots: grid})
}

// GET /api/v1/equipment
func (s *HTTPServer) handleEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Catalog.ListEquipment(r.Context())
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if items == nil {
		items = []model.Equipment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment": items})
}

// GET /api/v1/departments
func (s *HTTPServer) handleDepartments(w http.ResponseWriter, r *http.Request) {
	deps, err := s.deps.Catalog.ListDepartments(r.Context())
	if err != nil {
		s.writeServiceError(w, r, errors.Join(booking.ErrUnavailable, err))
		return
	}
	if deps == nil {
		deps = []model.Department{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": deps})
}
