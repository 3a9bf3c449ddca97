package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusroomz/internal/access"
	"campusroomz/internal/events"
	"campusroomz/internal/metrics"
	"campusroomz/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the booking repository used by the workflow. CreateBooking and
// RescheduleBooking must re-evaluate the availability predicate inside the
// same write transaction and return model.ErrBookingConflict when it holds.
type Store interface {
	ConflictStore
	CreateBooking(ctx context.Context, b *model.Booking) error
	RescheduleBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, changedBy, reason string) error
	GetStatusHistory(ctx context.Context, bookingID string) ([]model.StatusChange, error)
}

// RoomCatalog resolves room names. Unknown rooms yield model.ErrNotFound.
type RoomCatalog interface {
	GetRoomByName(ctx context.Context, name string) (*model.Room, error)
}

type EventPublisher interface {
	PublishJSON(evType string, payload interface{}) error
}

// Service runs booking submissions through the workflow FSM and owns the
// other booking mutations.
type Service struct {
	validator *Validator
	conflicts *ConflictChecker
	store     Store
	rooms     RoomCatalog
	events    EventPublisher
	access    *access.Service
	fsm       *FSM
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService wires the workflow. now may be nil, in which case time.Now is used.
func NewService(
	store Store,
	rooms RoomCatalog,
	bus EventPublisher,
	acl *access.Service,
	rules Rules,
	now func() time.Time,
	logger *zerolog.Logger,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		validator: NewValidator(rules),
		conflicts: NewConflictChecker(store),
		store:     store,
		rooms:     rooms,
		events:    bus,
		access:    acl,
		fsm:       NewFSM(),
		now:       now,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) Validator() *Validator { return s.validator }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Submit runs a new booking through Validating, CheckingConflict and
// Committing. The returned submission is always in a terminal state; the
// error is a *Rejection whenever that state is Rejected.
func (s *Service) Submit(ctx context.Context, actor *model.Profile, c Candidate) (*Submission, error) {
	sub := NewSubmission(c)
	err := s.run(ctx, sub, actor, nil)
	return sub, err
}

// Reschedule moves an upcoming booking to a new slot. The booking is
// excluded from its own conflict check.
func (s *Service) Reschedule(ctx context.Context, actor *model.Profile, id string, c Candidate) (*Submission, error) {
	existing, err := s.loadMutable(ctx, actor, id, "edit")
	if err != nil {
		return nil, err
	}
	sub := NewSubmission(c)
	sub.ExcludeID = existing.ID
	err = s.run(ctx, sub, actor, existing)
	return sub, err
}

// CheckAvailability evaluates the availability predicate for a validated
// candidate without committing anything.
func (s *Service) CheckAvailability(ctx context.Context, q model.ConflictQuery) (bool, error) {
	v, err := s.validator.Validate(Candidate{
		RoomName:  q.RoomName,
		Date:      q.Date,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Purpose:   "availability check",
	})
	if err != nil {
		return false, reject(err)
	}
	conflict, err := s.conflicts.HasConflict(ctx, v.Query(q.ExcludeID))
	if err != nil {
		metrics.IncConflictCheck("error")
		return false, reject(err)
	}
	metrics.IncConflictCheck(conflictLabel(conflict))
	return conflict, nil
}

func (s *Service) run(ctx context.Context, sub *Submission, actor *model.Profile, existing *model.Booking) error {
	if err := s.fsm.Transition(sub, StateValidating); err != nil {
		return err
	}

	v, err := s.validator.Validate(sub.Candidate)
	if err != nil {
		return s.rejectSubmission(sub, actor, err)
	}
	if err := s.checkNotPast(v); err != nil {
		return s.rejectSubmission(sub, actor, err)
	}
	if err := s.checkRoom(ctx, v); err != nil {
		return s.rejectSubmission(sub, actor, err)
	}

	if err := s.fsm.Transition(sub, StateCheckingConflict); err != nil {
		return err
	}
	conflict, err := s.conflicts.HasConflict(ctx, v.Query(sub.ExcludeID))
	if err != nil {
		metrics.IncConflictCheck("error")
		return s.rejectSubmission(sub, actor, err)
	}
	metrics.IncConflictCheck(conflictLabel(conflict))
	if conflict {
		return s.rejectSubmission(sub, actor, ErrRoomUnavailable)
	}

	if err := s.fsm.Transition(sub, StateCommitting); err != nil {
		return err
	}
	b := s.buildBooking(v, actor, existing)
	if existing == nil {
		err = s.store.CreateBooking(ctx, b)
	} else {
		err = s.store.RescheduleBooking(ctx, b)
	}
	if err != nil {
		switch {
		case errors.Is(err, model.ErrBookingConflict):
			// Lost the race to a concurrent committer.
			err = ErrRoomUnavailable
		case errors.Is(err, model.ErrNotFound):
			err = fmt.Errorf("%w: %w", ErrNotCancellable, err)
		default:
			err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		return s.rejectSubmission(sub, actor, err)
	}

	if err := s.fsm.Transition(sub, StateConfirmed); err != nil {
		return err
	}
	sub.Booking = b
	metrics.IncSubmission(string(StateConfirmed), "")
	s.logger.Info().
		Str("submission_id", sub.ID).
		Str("booking_id", b.ID).
		Str("user_id", b.OwnerID).
		Str("room", b.RoomName).
		Str("date", b.Date).
		Str("start", b.StartTime).
		Str("end", b.EndTime).
		Bool("reschedule", existing != nil).
		Msg("booking confirmed")

	evType := events.BookingConfirmed
	if existing != nil {
		evType = events.BookingRescheduled
	}
	s.publish(evType, b, actor, "")
	return nil
}

// checkNotPast rejects days before today and, for today, start times that
// have already gone by on the service clock.
func (s *Service) checkNotPast(v Validated) error {
	now := s.now()
	today := now.Format(model.DateLayout)
	switch {
	case v.Date < today:
		return &FieldError{Field: "date", Err: ErrPastDate}
	case v.Date == today && v.StartTime < now.Format("15:04"):
		return &FieldError{Field: "start_time", Err: ErrPastDate}
	}
	return nil
}

func (s *Service) checkRoom(ctx context.Context, v Validated) error {
	room, err := s.rooms.GetRoomByName(ctx, v.RoomName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &FieldError{Field: "room_name", Err: ErrUnknownRoom}
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !room.IsActive {
		return &FieldError{Field: "room_name", Err: ErrUnknownRoom}
	}
	if v.Attendees != nil && room.Capacity > 0 && *v.Attendees > room.Capacity {
		return &FieldError{
			Field: "attendees",
			Err:   fmt.Errorf("%w: %s holds %d people", ErrAttendeesOutOfBounds, room.Name, room.Capacity),
		}
	}
	return nil
}

func (s *Service) buildBooking(v Validated, actor *model.Profile, existing *model.Booking) *model.Booking {
	now := s.now()
	b := &model.Booking{
		ID:        uuid.NewString(),
		RoomName:  v.RoomName,
		Date:      v.Date,
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		Purpose:   v.Purpose,
		Attendees: v.Attendees,
		Status:    model.StatusUpcoming,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor != nil {
		b.OwnerID = actor.ID
		b.Department = actor.Department
	}
	if existing != nil {
		b.ID = existing.ID
		b.OwnerID = existing.OwnerID
		b.Department = existing.Department
		b.CreatedAt = existing.CreatedAt
	}
	return b
}

func (s *Service) rejectSubmission(sub *Submission, actor *model.Profile, err error) error {
	r := reject(err)
	sub.Rejection = r
	if terr := s.fsm.Transition(sub, StateRejected); terr != nil {
		return terr
	}
	metrics.IncSubmission(string(StateRejected), string(r.Reason))

	ev := s.logger.Info()
	if r.Reason == ReasonPersistenceFailed || r.Reason == ReasonUnavailable {
		ev = s.logger.Error().Err(err)
	}
	userID := ""
	if actor != nil {
		userID = actor.ID
	}
	ev.Str("submission_id", sub.ID).
		Str("user_id", userID).
		Str("room", sub.Candidate.RoomName).
		Str("date", sub.Candidate.Date).
		Str("reason", string(r.Reason)).
		Str("field", r.Field).
		Msg("booking rejected")
	return r
}

// Cancel marks an upcoming booking as cancelled. The booking row is kept.
func (s *Service) Cancel(ctx context.Context, actor *model.Profile, id, reason string) (*model.Booking, error) {
	b, err := s.loadMutable(ctx, actor, id, "cancel")
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, b.ID, model.StatusCancelled, actor.ID, reason); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Cancelled by someone else in the meantime.
			return nil, reject(fmt.Errorf("%w: %w", ErrNotCancellable, err))
		}
		return nil, reject(fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}
	b.Status = model.StatusCancelled
	b.UpdatedAt = s.now()
	metrics.IncBookingCancelled()
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("user_id", actor.ID).
		Str("owner_id", b.OwnerID).
		Msg("booking cancelled")
	s.publish(events.BookingCancelled, b, actor, reason)
	return b, nil
}

// Get returns one booking with its derived status.
func (s *Service) Get(ctx context.Context, actor *model.Profile, id string) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if err := s.access.CanManageBooking(actor, b, "view"); err != nil {
		return nil, reject(fmt.Errorf("%w: %w", ErrForbidden, err))
	}
	derived := b.WithEffectiveStatus(s.now())
	return &derived, nil
}

// History returns the status changes of a booking visible to actor.
func (s *Service) History(ctx context.Context, actor *model.Profile, id string) ([]model.StatusChange, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	changes, err := s.store.GetStatusHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return changes, nil
}

// List returns the owner's bookings, newest date first, with derived status.
// An empty filter returns everything.
func (s *Service) List(ctx context.Context, ownerID string, filter model.Status) ([]model.Booking, error) {
	bookings, err := s.store.ListBookingsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	now := s.now()
	out := make([]model.Booking, 0, len(bookings))
	for i := range bookings {
		b := bookings[i].WithEffectiveStatus(now)
		if filter != "" && b.Status != filter {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Stats counts all bookings, upcoming ones, and upcoming ones dated within
// the seven calendar days starting today.
func (s *Service) Stats(ctx context.Context, ownerID string) (model.Stats, error) {
	bookings, err := s.List(ctx, ownerID, "")
	if err != nil {
		return model.Stats{}, err
	}
	now := s.now()
	today := now.Format(model.DateLayout)
	weekEnd := now.AddDate(0, 0, 6).Format(model.DateLayout)

	st := model.Stats{Total: len(bookings)}
	for i := range bookings {
		b := &bookings[i]
		if b.Status == model.StatusUpcoming {
			st.Upcoming++
			if b.Date >= today && b.Date <= weekEnd {
				st.ThisWeek++
			}
		}
	}
	return st, nil
}

func (s *Service) loadMutable(ctx context.Context, actor *model.Profile, id, action string) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	if err := s.access.CanManageBooking(actor, b, action); err != nil {
		return nil, reject(fmt.Errorf("%w: %w", ErrForbidden, err))
	}
	if b.EffectiveStatus(s.now()) != model.StatusUpcoming {
		return nil, reject(ErrNotCancellable)
	}
	return b, nil
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return reject(err)
	}
	return reject(fmt.Errorf("%w: %w", ErrUnavailable, err))
}

func (s *Service) publish(evType string, b *model.Booking, actor *model.Profile, reason string) {
	if s.events == nil {
		return
	}
	p := events.BookingEvent{
		BookingID: b.ID,
		OwnerID:   b.OwnerID,
		RoomName:  b.RoomName,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Purpose:   b.Purpose,
		Reason:    reason,
	}
	if actor != nil {
		p.ActorID = actor.ID
	}
	if err := s.events.PublishJSON(evType, p); err != nil {
		s.logger.Warn().Err(err).Str("event", evType).Str("booking_id", b.ID).Msg("event handlers failed")
	}
}

func conflictLabel(conflict bool) string {
	if conflict {
		return "conflict"
	}
	return "free"
}
