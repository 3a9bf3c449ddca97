package model

import "time"

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Profile is the local record of an authenticated user. ID is the subject
// issued by the identity provider.
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Activity is an append-only audit entry shown on the user's dashboard.
type Activity struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

const (
	ActivityBookingCreated     = "booking_created"
	ActivityBookingCancelled   = "booking_cancelled"
	ActivityBookingRescheduled = "booking_rescheduled"
	ActivityProfileUpdated     = "profile_updated"
)

type Notification struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Type             string    `json:"type"`
	RelatedBookingID string    `json:"related_booking_id,omitempty"`
	IsRead           bool      `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	NotificationInfo     = "info"
	NotificationSuccess  = "success"
	NotificationWarning  = "warning"
	NotificationReminder = "reminder"
)
