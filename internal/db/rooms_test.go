package db

import (
	"context"
	"testing"

	"campusroomz/internal/config"
	"campusroomz/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncRoomsFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lab, err := db.GetRoomByName(ctx, "Lab B-202")
	require.NoError(t, err)
	assert.Equal(t, 40, lab.Capacity)
	assert.True(t, lab.IsActive)
	assert.ElementsMatch(t, []string{"Computers", "Projector"}, lab.Equipment)

	store, err := db.GetRoomByName(ctx, "Old Store")
	require.NoError(t, err)
	assert.False(t, store.IsActive)

	_, err = db.GetRoomByName(ctx, "Nowhere")
	assert.ErrorIs(t, err, model.ErrNotFound)

	active, err := db.ListActiveRooms(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Lab B-202", active[0].Name)

	equipment, err := db.ListEquipment(ctx)
	require.NoError(t, err)
	assert.Len(t, equipment, 2)

	departments, err := db.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, departments, 1)
	assert.Equal(t, "Physics", departments[0].Name)
}

func TestSyncRoomsFromConfig_Resync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBooking(ctx, newBooking("Seminar Hall", "2025-03-10", "09:00", "10:00", "user-1")))

	cfg := testCatalog()
	cfg.Rooms = []config.RoomConfig{
		{Name: "Lab B-202", Type: "lab", Capacity: 45, Equipment: []string{"Projector"}},
	}
	require.NoError(t, db.SyncRoomsFromConfig(ctx, cfg))

	lab, err := db.GetRoomByName(ctx, "Lab B-202")
	require.NoError(t, err)
	assert.Equal(t, 45, lab.Capacity)
	assert.Equal(t, []string{"Projector"}, lab.Equipment)

	hall, err := db.GetRoomByName(ctx, "Seminar Hall")
	require.NoError(t, err, "removed rooms are kept")
	assert.False(t, hall.IsActive)

	// Existing bookings of the deactivated room survive.
	bookings, err := db.ListRoomBookings(ctx, "Seminar Hall", "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	assert.Error(t, db.SyncRoomsFromConfig(ctx, nil))
}
