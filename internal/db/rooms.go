package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusroomz/internal/config"
	"campusroomz/internal/model"
)

// SyncRoomsFromConfig applies rooms.yaml to the database. It upserts
// equipment, departments and rooms, rewrites room equipment links, and marks
// rooms missing from the file inactive. Rooms are never deleted because
// bookings reference them by name.
func (db *DB) SyncRoomsFromConfig(ctx context.Context, cfg *config.RoomsConfig) error {
	if cfg == nil {
		return fmt.Errorf("rooms config is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	equipmentIDs := make(map[string]int64, len(cfg.Equipment))

	for _, e := range cfg.Equipment {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO equipment (name, category, description, is_portable, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				category = excluded.category,
				description = excluded.description,
				is_portable = excluded.is_portable
			RETURNING id`,
			e.Name, e.Category, e.Description, boolToInt(e.IsPortable), now,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("sync equipment %s: %w", e.Name, err)
		}
		equipmentIDs[e.Name] = id
	}

	for _, d := range cfg.Departments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO departments (name, description, head_of_department, contact_email, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				head_of_department = excluded.head_of_department,
				contact_email = excluded.contact_email,
				updated_at = excluded.updated_at`,
			d.Name, d.Description, d.HeadOfDepartment, d.ContactEmail, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync department %s: %w", d.Name, err)
		}
	}

	seen := make(map[string]struct{}, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		var roomID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO rooms (name, room_type, capacity, building, floor, room_number, description, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				room_type = excluded.room_type,
				capacity = excluded.capacity,
				building = excluded.building,
				floor = excluded.floor,
				room_number = excluded.room_number,
				description = excluded.description,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at
			RETURNING id`,
			r.Name, r.Type, r.Capacity, r.Building, r.Floor, r.RoomNumber, r.Description, boolToInt(r.Active()), now, now,
		).Scan(&roomID)
		if err != nil {
			return fmt.Errorf("sync room %s: %w", r.Name, err)
		}
		seen[r.Name] = struct{}{}

		if _, err := tx.ExecContext(ctx, `DELETE FROM room_equipment WHERE room_id = ?`, roomID); err != nil {
			return fmt.Errorf("reset equipment of room %s: %w", r.Name, err)
		}
		for _, name := range r.Equipment {
			eqID, ok := equipmentIDs[name]
			if !ok {
				return fmt.Errorf("room %s: unknown equipment %s", r.Name, name)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO room_equipment (room_id, equipment_id, quantity, condition)
				VALUES (?, ?, 1, 'good')`, roomID, eqID); err != nil {
				return fmt.Errorf("link equipment %s to room %s: %w", name, r.Name, err)
			}
		}
	}

	// Deactivate rooms that disappeared from config.
	rows, err := tx.QueryContext(ctx, `SELECT name FROM rooms WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[name]; !ok {
			stale = append(stale, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range stale {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET is_active = 0, updated_at = ? WHERE name = ?`, now, name); err != nil {
			return fmt.Errorf("deactivate room %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rooms sync: %w", err)
	}
	db.logger.Info().Int("rooms", len(cfg.Rooms)).Int("deactivated", len(stale)).Msg("room catalog synced")
	return nil
}

const roomSelect = `
	SELECT r.id, r.name, r.room_type, r.capacity, r.building, r.floor, r.room_number, r.description,
	       r.is_active, r.created_at, r.updated_at,
	       COALESCE((SELECT GROUP_CONCAT(e.name, '|') FROM room_equipment re
	                 JOIN equipment e ON e.id = re.equipment_id
	                 WHERE re.room_id = r.id), '')
	FROM rooms r`

func scanRoom(row rowScanner) (*model.Room, error) {
	var (
		r                             model.Room
		building, number, description sql.NullString
		floor                         sql.NullInt64
		equipment                     string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.RoomType, &r.Capacity, &building, &floor, &number, &description,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt, &equipment); err != nil {
		return nil, err
	}
	r.Building = building.String
	r.Floor = int(floor.Int64)
	r.RoomNumber = number.String
	r.Description = description.String
	r.Equipment = []string{}
	if equipment != "" {
		r.Equipment = strings.Split(equipment, "|")
	}
	return &r, nil
}

// GetRoomByName returns model.ErrNotFound for unknown rooms. Inactive rooms
// are returned with IsActive=false.
func (db *DB) GetRoomByName(ctx context.Context, name string) (*model.Room, error) {
	r, err := scanRoom(db.QueryRowContext(ctx, roomSelect+` WHERE r.name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", name, err)
	}
	return r, nil
}

// ListActiveRooms returns bookable rooms ordered by name.
func (db *DB) ListActiveRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := db.QueryContext(ctx, roomSelect+` WHERE r.is_active = 1 ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (db *DB) ListEquipment(ctx context.Context) ([]model.Equipment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, COALESCE(description, ''), is_portable
		FROM equipment ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	defer rows.Close()

	var out []model.Equipment
	for rows.Next() {
		var e model.Equipment
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Description, &e.IsPortable); err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(head_of_department, ''), COALESCE(contact_email, '')
		FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.HeadOfDepartment, &d.ContactEmail); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
