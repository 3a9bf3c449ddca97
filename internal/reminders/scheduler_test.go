package reminders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"campusroomz/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetBookingsForReminder(ctx context.Context, date string) ([]model.Booking, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockStore) MarkReminderSent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

var testNow = time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)

func newTestScheduler(store Store, cfg Config) (*Scheduler, *prometheus.Registry) {
	logger := zerolog.New(io.Discard)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	return NewScheduler(store, cfg, metrics, func() time.Time { return testNow }, &logger), reg
}

// metricValue returns the value of a counter or gauge, optionally picking the
// series whose only label has the given value.
func metricValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && (len(m.GetLabel()) == 0 || m.GetLabel()[0].GetValue() != label) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRunOnce_SendsTomorrow(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	s, reg := newTestScheduler(store, Config{})

	bookings := []model.Booking{
		{ID: "b1", OwnerID: "user-1", RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:30", Purpose: "Workshop"},
		{ID: "b2", OwnerID: "user-2", RoomName: "Room 101", Date: "2025-03-10", StartTime: "11:00", EndTime: "12:00", Purpose: "Lecture"},
	}
	store.On("GetBookingsForReminder", ctx, "2025-03-10").Return(bookings, nil).Once()
	store.On("CreateNotification", ctx, mock.MatchedBy(func(n *model.Notification) bool {
		return n.Type == model.NotificationReminder && n.RelatedBookingID == "b1" && n.UserID == "user-1" &&
			n.Message == "Tomorrow Lab B-202, 09:00-10:30: Workshop"
	})).Return(nil).Once()
	store.On("CreateNotification", ctx, mock.MatchedBy(func(n *model.Notification) bool {
		return n.RelatedBookingID == "b2"
	})).Return(nil).Once()
	store.On("MarkReminderSent", ctx, "b1").Return(nil).Once()
	store.On("MarkReminderSent", ctx, "b2").Return(nil).Once()

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 2, Sent: 2}, res)
	assert.Equal(t, 2.0, metricValue(t, reg, "test_reminders_sent_total", "sent"))
	assert.Equal(t, 2.0, metricValue(t, reg, "test_reminders_pending", ""))
	store.AssertExpectations(t)
}

func TestRunOnce_RetryThenFail(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	s, reg := newTestScheduler(store, Config{RetryDelays: []time.Duration{time.Millisecond}})

	store.On("GetBookingsForReminder", ctx, "2025-03-10").
		Return([]model.Booking{{ID: "b1", OwnerID: "user-1"}, {ID: "b2", OwnerID: "user-2"}}, nil).Once()

	// b1 fails once then succeeds; b2 never succeeds.
	store.On("CreateNotification", ctx, mock.MatchedBy(func(n *model.Notification) bool { return n.RelatedBookingID == "b1" })).
		Return(errors.New("locked")).Once()
	store.On("CreateNotification", ctx, mock.MatchedBy(func(n *model.Notification) bool { return n.RelatedBookingID == "b1" })).
		Return(nil).Once()
	store.On("CreateNotification", ctx, mock.MatchedBy(func(n *model.Notification) bool { return n.RelatedBookingID == "b2" })).
		Return(errors.New("disk full")).Twice()
	store.On("MarkReminderSent", ctx, "b1").Return(nil).Once()

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 2, Sent: 1, Failed: 1}, res)
	assert.Equal(t, 2.0, metricValue(t, reg, "test_reminder_retries_total", ""))
	assert.Equal(t, 1.0, metricValue(t, reg, "test_reminders_sent_total", "failed"))
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkReminderSent", ctx, "b2")
}

func TestRunOnce_StoreError(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	s, _ := newTestScheduler(store, Config{})

	store.On("GetBookingsForReminder", ctx, "2025-03-10").Return(nil, errors.New("db down")).Once()

	_, err := s.RunOnce(ctx)
	assert.ErrorContains(t, err, "db down")
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := new(mockStore)
	store.On("GetBookingsForReminder", mock.Anything, "2025-03-10").Return([]model.Booking{}, nil)
	s, _ := newTestScheduler(store, Config{Interval: time.Hour})

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.IsRunning())
}
