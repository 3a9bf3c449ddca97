// Package access decides who may read or change bookings.
package access

import (
	"errors"
	"strings"

	"campusroomz/internal/model"

	"github.com/rs/zerolog"
)

// Service grants admin rights by profile role or by a configured e-mail list.
type Service struct {
	adminEmails map[string]struct{}
	logger      zerolog.Logger
}

func NewService(adminEmails []string, logger *zerolog.Logger) *Service {
	set := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return &Service{
		adminEmails: set,
		logger:      logger.With().Str("component", "access").Logger(),
	}
}

// IsAdmin reports whether the profile has administrative rights.
func (s *Service) IsAdmin(p *model.Profile) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	_, ok := s.adminEmails[strings.ToLower(p.Email)]
	return ok
}

// RoleFor returns the role a new profile with this e-mail should get.
func (s *Service) RoleFor(email string) model.Role {
	if _, ok := s.adminEmails[strings.ToLower(strings.TrimSpace(email))]; ok {
		return model.RoleAdmin
	}
	return model.RoleTeacher
}

// CanManageBooking allows the owner or an admin.
func (s *Service) CanManageBooking(actor *model.Profile, b *model.Booking, action string) error {
	if actor == nil {
		return &AccessDeniedError{Reason: "not signed in"}
	}
	if b.OwnerID == actor.ID || s.IsAdmin(actor) {
		return nil
	}
	s.logger.Warn().
		Str("user_id", actor.ID).
		Str("booking_id", b.ID).
		Str("action", action).
		Msg("access denied")
	return &AccessDeniedError{Reason: "you can only " + action + " your own bookings"}
}

// RequireAdmin returns an error unless actor is an admin.
func (s *Service) RequireAdmin(actor *model.Profile, action string) error {
	if s.IsAdmin(actor) {
		return nil
	}
	id := ""
	if actor != nil {
		id = actor.ID
	}
	s.logger.Warn().Str("user_id", id).Str("action", action).Msg("admin action denied")
	return &AccessDeniedError{Reason: action + " is available to administrators only"}
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
