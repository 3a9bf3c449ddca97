// Package api exposes the booking service over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"campusroomz/internal/access"
	"campusroomz/internal/auth"
	"campusroomz/internal/booking"
	"campusroomz/internal/model"
	"campusroomz/internal/slots"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ProfileStore persists user profiles.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error)
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id, name, department string) (*model.Profile, error)
	SetRole(ctx context.Context, id string, role model.Role) error
}

// RoomReader serves the room catalog, usually through the Redis cache.
type RoomReader interface {
	ListActiveRooms(ctx context.Context) ([]model.Room, error)
	GetRoomByName(ctx context.Context, name string) (*model.Room, error)
}

// CatalogReader serves the reference lists shown in booking forms.
type CatalogReader interface {
	ListEquipment(ctx context.Context) ([]model.Equipment, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)
}

// FeedStore serves a user's activity log and notifications.
type FeedStore interface {
	ListActivities(ctx context.Context, userID string, limit int) ([]model.Activity, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// ScheduleReader lists every booking on a day, for administrators.
type ScheduleReader interface {
	ListBookingsOnDate(ctx context.Context, date string) ([]model.Booking, error)
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Bookings  *booking.Service
	Profiles  ProfileStore
	Rooms     RoomReader
	Catalog   CatalogReader
	Feed      FeedStore
	Schedule  ScheduleReader
	Slots     *slots.Generator
	Access    *access.Service
	Verifier  *auth.Verifier
	Events    booking.EventPublisher
	SyncRooms func(ctx context.Context) error
}

// Options tune the HTTP layer.
type Options struct {
	Address        string
	ReadTimeout    time.Duration
	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	deps    Deps
	opts    Options
	limiter *userLimiter
	server  *http.Server
	logger  zerolog.Logger
}

func NewHTTPServer(deps Deps, opts Options, logger *zerolog.Logger) *HTTPServer {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	s := &HTTPServer{
		deps:    deps,
		opts:    opts,
		limiter: newUserLimiter(opts.RatePerSecond, opts.RateBurst),
		logger:  logger.With().Str("component", "http_api").Logger(),
	}
	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.ReadTimeout,
	}
	return s
}

// Handler builds the routed handler with its middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "", "no such endpoint")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "", "", "method not allowed")
	})

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.logRequests, s.authenticate, s.rateLimit)

	v1.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	v1.HandleFunc("/me/profile", s.handleUpdateProfile).Methods(http.MethodPut)

	v1.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{name}/slots", s.handleRoomSlots).Methods(http.MethodGet)
	v1.HandleFunc("/equipment", s.handleEquipment).Methods(http.MethodGet)
	v1.HandleFunc("/departments", s.handleDepartments).Methods(http.MethodGet)

	v1.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	v1.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	v1.HandleFunc("/bookings/{id}", s.handleRescheduleBooking).Methods(http.MethodPut)
	v1.HandleFunc("/bookings/{id}/cancel", s.handleCancelBooking).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}/history", s.handleBookingHistory).Methods(http.MethodGet)
	v1.HandleFunc("/rpc/check_booking_conflict", s.handleCheckConflict).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	v1.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPost)
	v1.HandleFunc("/activities", s.handleActivities).Methods(http.MethodGet)

	v1.HandleFunc("/admin/bookings", s.handleAdminBookings).Methods(http.MethodGet)
	v1.HandleFunc("/admin/rooms/sync", s.handleAdminSyncRooms).Methods(http.MethodPost)

	var h http.Handler = router
	h = handlers.CORS(
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

// Start serves until the server is shut down.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.opts.Address).Msg("serving API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason booking.Reason, field, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Reason: string(reason), Field: field})
}

// statusFor maps a rejection reason to its HTTP status.
func statusFor(reason booking.Reason) int {
	switch reason {
	case booking.ReasonMissingField, booking.ReasonInvalidFormat, booking.ReasonInvalidRange,
		booking.ReasonOutsideWorkingHours, booking.ReasonAttendeesOutOfBounds, booking.ReasonUnknownRoom,
		booking.ReasonPastDate:
		return http.StatusUnprocessableEntity
	case booking.ReasonRoomUnavailable, booking.ReasonNotCancellable:
		return http.StatusConflict
	case booking.ReasonNotFound:
		return http.StatusNotFound
	case booking.ReasonForbidden:
		return http.StatusForbidden
	case booking.ReasonUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders any error returned by the booking service or a
// store. Internal details of 5xx errors are logged, not returned.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reason := booking.ReasonOf(err)
	if access.IsAccessDenied(err) {
		reason = booking.ReasonForbidden
	}
	status := statusFor(reason)

	var field string
	var rej *booking.Rejection
	var fe *booking.FieldError
	switch {
	case errors.As(err, &rej):
		field = rej.Field
	case errors.As(err, &fe):
		field = fe.Field
	}

	msg := err.Error()
	if rej != nil && rej.Err != nil {
		msg = rej.Err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = publicMessage(reason)
	}
	writeError(w, status, reason, field, msg)
}

func publicMessage(reason booking.Reason) string {
	if reason == booking.ReasonUnavailable {
		return booking.ErrUnavailable.Error()
	}
	return booking.ErrPersistenceFailed.Error()
}

// decodeJSON reads a JSON body. An empty body is accepted when allowEmpty.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
