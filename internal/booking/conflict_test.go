package booking

import (
	"context"
	"errors"
	"testing"

	"campusroomz/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		aStart     string
		aEnd       string
		bStart     string
		bEnd       string
		wantResult bool
	}{
		{"back to back", "09:00", "10:00", "10:00", "11:00", false},
		{"partial overlap", "09:00", "10:30", "10:00", "11:00", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"disjoint", "09:00", "10:00", "14:00", "15:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantResult, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			// symmetric
			assert.Equal(t, tt.wantResult, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestHasConflict(t *testing.T) {
	existing := []model.Booking{
		{ID: "a", RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:30", Status: model.StatusUpcoming},
		{ID: "b", RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "13:00", EndTime: "14:00", Status: model.StatusCancelled},
		{ID: "c", RoomName: "Seminar Hall", Date: "2025-03-10", StartTime: "15:00", EndTime: "16:00", Status: model.StatusUpcoming},
	}

	q := func(room, start, end, exclude string) model.ConflictQuery {
		return model.ConflictQuery{RoomName: room, Date: "2025-03-10", StartTime: start, EndTime: end, ExcludeID: exclude}
	}

	assert.True(t, HasConflict(existing, q("Lab B-202", "10:00", "11:00", "")))
	assert.False(t, HasConflict(existing, q("Lab B-202", "10:30", "11:00", "")), "back-to-back")
	assert.False(t, HasConflict(existing, q("Lab B-202", "13:00", "14:00", "")), "cancelled never blocks")
	assert.False(t, HasConflict(existing, q("Lab B-202", "09:00", "10:00", "a")), "excluded booking")
	assert.False(t, HasConflict(existing, q("Lab C-101", "09:00", "10:00", "")), "other room")
	assert.True(t, HasConflict(existing, q("Seminar Hall", "14:30", "15:30", "")))

	otherDay := q("Lab B-202", "09:00", "10:00", "")
	otherDay.Date = "2025-03-11"
	assert.False(t, HasConflict(existing, otherDay))
}

type mockConflictStore struct {
	mock.Mock
}

func (m *mockConflictStore) CheckConflict(ctx context.Context, q model.ConflictQuery) (bool, error) {
	args := m.Called(ctx, q)
	return args.Bool(0), args.Error(1)
}

func TestConflictChecker_StoreErrorIsUnavailable(t *testing.T) {
	store := new(mockConflictStore)
	ctx := context.Background()
	q := model.ConflictQuery{RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:00"}

	store.On("CheckConflict", ctx, q).Return(false, errors.New("connection refused")).Once()

	conflict, err := NewConflictChecker(store).HasConflict(ctx, q)
	require.Error(t, err)
	assert.False(t, conflict)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, ReasonUnavailable, ReasonOf(err))
	store.AssertExpectations(t)
}

func TestConflictChecker_PassesThrough(t *testing.T) {
	store := new(mockConflictStore)
	ctx := context.Background()
	q := model.ConflictQuery{RoomName: "Lab B-202", Date: "2025-03-10", StartTime: "09:00", EndTime: "10:00"}

	store.On("CheckConflict", ctx, q).Return(true, nil).Once()

	conflict, err := NewConflictChecker(store).HasConflict(ctx, q)
	require.NoError(t, err)
	assert.True(t, conflict)
}
