package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusroomz/internal/model"
)

// EnsureProfile creates the profile on first sign-in and refreshes the
// e-mail on later ones. Name, department and role of an existing profile are
// left alone. The stored profile is returned.
func (db *DB) EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	if p.Role == "" {
		p.Role = model.RoleTeacher
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, name, department, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			updated_at = CASE WHEN profiles.email != excluded.email THEN excluded.updated_at ELSE profiles.updated_at END`,
		p.ID, p.Email, p.Name, p.Department, string(p.Role), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure profile %s: %w", p.ID, err)
	}
	return db.GetProfile(ctx, p.ID)
}

// GetProfile returns model.ErrNotFound for unknown users.
func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var (
		p    model.Profile
		role string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, email, name, department, role, created_at, updated_at
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &p.Name, &p.Department, &role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	p.Role = model.Role(role)
	return &p, nil
}

// UpdateProfile changes the editable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, id, name, department string) (*model.Profile, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, department = ?, updated_at = ?
		WHERE id = ?`, name, department, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return db.GetProfile(ctx, id)
}

// SetRole keeps the stored role in line with the configured admins list.
func (db *DB) SetRole(ctx context.Context, id string, role model.Role) error {
	_, err := db.ExecContext(ctx, `UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`, string(role), time.Now(), id)
	if err != nil {
		return fmt.Errorf("set role %s: %w", id, err)
	}
	return nil
}
