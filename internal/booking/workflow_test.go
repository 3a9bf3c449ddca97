package booking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"campusroomz/internal/access"
	"campusroomz/internal/events"
	"campusroomz/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CheckConflict(ctx context.Context, q model.ConflictQuery) (bool, error) {
	args := m.Called(ctx, q)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockStore) RescheduleBooking(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *mockStore) ListBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]model.Booking), args.Error(1)
}
func (m *mockStore) UpdateStatus(ctx context.Context, id string, status model.Status, changedBy, reason string) error {
	return m.Called(ctx, id, status, changedBy, reason).Error(0)
}
func (m *mockStore) GetStatusHistory(ctx context.Context, bookingID string) ([]model.StatusChange, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]model.StatusChange), args.Error(1)
}

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) GetRoomByName(ctx context.Context, name string) (*model.Room, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Room), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

var testNow = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

func labRoom() *model.Room {
	return &model.Room{ID: 1, Name: "Lab B-202", Capacity: 40, IsActive: true}
}

func newTestService(store *mockStore, rooms *mockRooms, bus *mockEventBus) *Service {
	logger := zerolog.New(io.Discard)
	acl := access.NewService(nil, &logger)
	return NewService(store, rooms, bus, acl, DefaultRules(), func() time.Time { return testNow }, &logger)
}

func teacher() *model.Profile {
	return &model.Profile{ID: "user-1", Email: "t@college.edu", Department: "Physics", Role: model.RoleTeacher}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	query := model.ConflictQuery{RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:30"}

	t.Run("confirmed", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(false, nil).Once()
		store.On("CreateBooking", ctx, mock.MatchedBy(func(b *model.Booking) bool {
			return b.RoomName == "Lab B-202" && b.OwnerID == "user-1" && b.Department == "Physics" &&
				b.Status == model.StatusUpcoming && b.ID != ""
		})).Return(nil).Once()
		bus.On("PublishJSON", events.BookingConfirmed, mock.AnythingOfType("events.BookingEvent")).Return(nil).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, sub.State)
		assert.Equal(t, []State{StateDraft, StateValidating, StateCheckingConflict, StateCommitting, StateConfirmed}, sub.Trail)
		require.NotNil(t, sub.Booking)
		assert.Equal(t, "Workshop", sub.Booking.Purpose)

		store.AssertExpectations(t)
		rooms.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("validation failure makes no store call", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		c := validCandidate()
		c.StartTime = "07:00"
		sub, err := svc.Submit(ctx, teacher(), c)
		require.Error(t, err)

		var r *Rejection
		require.True(t, errors.As(err, &r))
		assert.Equal(t, ReasonOutsideWorkingHours, r.Reason)
		assert.Equal(t, "start_time", r.Field)
		assert.Equal(t, StateRejected, sub.State)
		assert.Equal(t, []State{StateDraft, StateValidating, StateRejected}, sub.Trail)

		store.AssertNotCalled(t, "CheckConflict", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
		rooms.AssertNotCalled(t, "GetRoomByName", mock.Anything, mock.Anything)
	})

	t.Run("unknown room", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(nil, model.ErrNotFound).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.Error(t, err)
		assert.Equal(t, ReasonUnknownRoom, sub.Reason())
		store.AssertNotCalled(t, "CheckConflict", mock.Anything, mock.Anything)
	})

	t.Run("inactive room", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		room := labRoom()
		room.IsActive = false
		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(room, nil).Once()

		sub, _ := svc.Submit(ctx, teacher(), validCandidate())
		assert.Equal(t, ReasonUnknownRoom, sub.Reason())
	})

	t.Run("attendees above room capacity", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()

		c := validCandidate()
		c.Attendees = intPtr(41)
		sub, err := svc.Submit(ctx, teacher(), c)
		require.Error(t, err)
		assert.Equal(t, ReasonAttendeesOutOfBounds, sub.Reason())
		assert.ErrorIs(t, err, ErrAttendeesOutOfBounds)
	})

	t.Run("conflict", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(true, nil).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRoomUnavailable)
		assert.Equal(t, ReasonRoomUnavailable, sub.Reason())
		assert.Equal(t, []State{StateDraft, StateValidating, StateCheckingConflict, StateRejected}, sub.Trail)
		store.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("predicate failure is unavailable", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(false, errors.New("database is locked")).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.Error(t, err)
		assert.Equal(t, ReasonUnavailable, sub.Reason())
		store.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("race lost at commit", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(false, nil).Once()
		store.On("CreateBooking", ctx, mock.Anything).Return(model.ErrBookingConflict).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.Error(t, err)
		assert.Equal(t, ReasonRoomUnavailable, sub.Reason())
		assert.Nil(t, sub.Booking)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("insert failure", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(false, nil).Once()
		store.On("CreateBooking", ctx, mock.Anything).Return(errors.New("disk full")).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.Error(t, err)
		assert.Equal(t, ReasonPersistenceFailed, sub.Reason())
		assert.ErrorIs(t, err, ErrPersistenceFailed)
	})

	t.Run("activity failure does not undo booking", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, query).Return(false, nil).Once()
		store.On("CreateBooking", ctx, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", events.BookingConfirmed, mock.Anything).Return(errors.New("activities table missing")).Once()

		sub, err := svc.Submit(ctx, teacher(), validCandidate())
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, sub.State)
	})
}

func TestService_Submit_PastSlots(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		date      string
		start     string
		wantField string
	}{
		{"day before today", "2024-01-01", "09:00", "date"},
		{"yesterday", "2025-03-08", "14:00", "date"},
		{"today, start already passed", "2025-03-09", "09:30", "start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
			svc := newTestService(store, rooms, bus)

			c := validCandidate()
			c.Date, c.StartTime, c.EndTime = tt.date, tt.start, "17:00"
			sub, err := svc.Submit(ctx, teacher(), c)

			var r *Rejection
			require.True(t, errors.As(err, &r))
			assert.Equal(t, ReasonPastDate, r.Reason)
			assert.Equal(t, tt.wantField, r.Field)
			assert.True(t, IsValidation(err))
			assert.Equal(t, []State{StateDraft, StateValidating, StateRejected}, sub.Trail)
			rooms.AssertNotCalled(t, "GetRoomByName", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "CheckConflict", mock.Anything, mock.Anything)
		})
	}

	t.Run("today, later start is accepted", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		c := validCandidate()
		c.Date, c.StartTime, c.EndTime = "2025-03-09", "10:00", "11:00"
		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, mock.Anything).Return(false, nil).Once()
		store.On("CreateBooking", ctx, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", events.BookingConfirmed, mock.Anything).Return(nil).Once()

		sub, err := svc.Submit(ctx, teacher(), c)
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, sub.State)
		assert.Equal(t, model.StatusUpcoming, sub.Booking.EffectiveStatus(testNow))
	})
}

func upcomingBooking() *model.Booking {
	return &model.Booking{
		ID:         "b-1",
		RoomName:   "Lab B-202",
		Date:       "2025-03-10",
		StartTime:  "09:00",
		EndTime:    "10:30",
		Purpose:    "Workshop",
		Department: "Physics",
		Status:     model.StatusUpcoming,
		OwnerID:    "user-1",
		CreatedAt:  testNow.Add(-time.Hour),
	}
}

func TestService_Reschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("excludes itself from the conflict check", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		store.On("GetBooking", ctx, "b-1").Return(upcomingBooking(), nil).Once()
		rooms.On("GetRoomByName", ctx, "Lab B-202").Return(labRoom(), nil).Once()
		store.On("CheckConflict", ctx, model.ConflictQuery{
			RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "10:00", EndTime: "11:00", ExcludeID: "b-1",
		}).Return(false, nil).Once()
		store.On("RescheduleBooking", ctx, mock.MatchedBy(func(b *model.Booking) bool {
			return b.ID == "b-1" && b.StartTime == "10:00" && b.OwnerID == "user-1"
		})).Return(nil).Once()
		bus.On("PublishJSON", events.BookingRescheduled, mock.Anything).Return(nil).Once()

		c := validCandidate()
		c.StartTime, c.EndTime = "10:00", "11:00"
		sub, err := svc.Reschedule(ctx, teacher(), "b-1", c)
		require.NoError(t, err)
		assert.Equal(t, StateConfirmed, sub.State)
		assert.Equal(t, upcomingBooking().CreatedAt, sub.Booking.CreatedAt)
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("other user's booking", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		store.On("GetBooking", ctx, "b-1").Return(upcomingBooking(), nil).Once()

		_, err := svc.Reschedule(ctx, &model.Profile{ID: "intruder"}, "b-1", validCandidate())
		require.Error(t, err)
		assert.Equal(t, ReasonForbidden, ReasonOf(err))
		assert.True(t, access.IsAccessDenied(err))
	})

	t.Run("past booking", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		old := upcomingBooking()
		old.Date = "2025-03-01"
		store.On("GetBooking", ctx, "b-1").Return(old, nil).Once()

		_, err := svc.Reschedule(ctx, teacher(), "b-1", validCandidate())
		assert.Equal(t, ReasonNotCancellable, ReasonOf(err))
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		store.On("GetBooking", ctx, "b-1").Return(upcomingBooking(), nil).Once()
		store.On("UpdateStatus", ctx, "b-1", model.StatusCancelled, "user-1", "plans changed").Return(nil).Once()
		bus.On("PublishJSON", events.BookingCancelled, mock.MatchedBy(func(p events.BookingEvent) bool {
			return p.BookingID == "b-1" && p.Reason == "plans changed"
		})).Return(nil).Once()

		b, err := svc.Cancel(ctx, teacher(), "b-1", "plans changed")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, b.Status)
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("admin cancels someone else's booking", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		admin := &model.Profile{ID: "admin-1", Role: model.RoleAdmin}
		store.On("GetBooking", ctx, "b-1").Return(upcomingBooking(), nil).Once()
		store.On("UpdateStatus", ctx, "b-1", model.StatusCancelled, "admin-1", "").Return(nil).Once()
		bus.On("PublishJSON", events.BookingCancelled, mock.Anything).Return(nil).Once()

		_, err := svc.Cancel(ctx, admin, "b-1", "")
		require.NoError(t, err)
	})

	t.Run("already cancelled is terminal", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		b := upcomingBooking()
		b.Status = model.StatusCancelled
		store.On("GetBooking", ctx, "b-1").Return(b, nil).Once()

		_, err := svc.Cancel(ctx, teacher(), "b-1", "")
		assert.Equal(t, ReasonNotCancellable, ReasonOf(err))
		store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing booking", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		store.On("GetBooking", ctx, "nope").Return(nil, model.ErrNotFound).Once()

		_, err := svc.Cancel(ctx, teacher(), "nope", "")
		assert.Equal(t, ReasonNotFound, ReasonOf(err))
	})

	t.Run("lost race with another cancel", func(t *testing.T) {
		store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
		svc := newTestService(store, rooms, bus)

		store.On("GetBooking", ctx, "b-1").Return(upcomingBooking(), nil).Once()
		store.On("UpdateStatus", ctx, "b-1", model.StatusCancelled, "user-1", "").Return(model.ErrNotFound).Once()

		_, err := svc.Cancel(ctx, teacher(), "b-1", "")
		assert.Equal(t, ReasonNotCancellable, ReasonOf(err))
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})
}

func TestService_ListAndStats(t *testing.T) {
	ctx := context.Background()
	store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
	svc := newTestService(store, rooms, bus)

	bookings := []model.Booking{
		{ID: "1", Date: "2025-03-01", Status: model.StatusUpcoming},  // past
		{ID: "2", Date: "2025-03-09", Status: model.StatusUpcoming},  // today
		{ID: "3", Date: "2025-03-12", Status: model.StatusUpcoming},  // this week
		{ID: "4", Date: "2025-04-20", Status: model.StatusUpcoming},  // later
		{ID: "5", Date: "2025-03-11", Status: model.StatusCancelled}, // cancelled
		{ID: "6", Date: "2025-03-15", Status: model.StatusUpcoming},  // today+6, last day of the window
		{ID: "7", Date: "2025-03-16", Status: model.StatusUpcoming},  // today+7, outside
	}
	store.On("ListBookingsByOwner", ctx, "user-1").Return(bookings, nil)

	all, err := svc.List(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, model.StatusPast, all[0].Status)
	assert.Equal(t, model.StatusUpcoming, all[1].Status)

	past, err := svc.List(ctx, "user-1", model.StatusPast)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, "1", past[0].ID)

	st, err := svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Total: 7, Upcoming: 5, ThisWeek: 3}, st)
}

func TestService_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	store, rooms, bus := new(mockStore), new(mockRooms), new(mockEventBus)
	svc := newTestService(store, rooms, bus)

	q := model.ConflictQuery{RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:00"}
	store.On("CheckConflict", ctx, q).Return(true, nil).Once()

	conflict, err := svc.CheckAvailability(ctx, q)
	require.NoError(t, err)
	assert.True(t, conflict)

	bad := q
	bad.EndTime = "08:00"
	_, err = svc.CheckAvailability(ctx, bad)
	assert.Equal(t, ReasonInvalidRange, ReasonOf(err))
}
