package booking

import (
	"errors"
	"fmt"

	"campusroomz/internal/model"
)

// Reason is the machine-readable cause of a rejected submission.
type Reason string

const (
	ReasonMissingField         Reason = "missing_field"
	ReasonInvalidFormat        Reason = "invalid_format"
	ReasonInvalidRange         Reason = "invalid_range"
	ReasonOutsideWorkingHours  Reason = "outside_working_hours"
	ReasonAttendeesOutOfBounds Reason = "attendees_out_of_bounds"
	ReasonUnknownRoom          Reason = "unknown_room"
	ReasonPastDate             Reason = "past_date"
	ReasonRoomUnavailable      Reason = "room_unavailable"
	ReasonPersistenceFailed    Reason = "persistence_failed"
	ReasonUnavailable          Reason = "unavailable"
	ReasonNotFound             Reason = "not_found"
	ReasonForbidden            Reason = "forbidden"
	ReasonNotCancellable       Reason = "not_cancellable"
)

var (
	ErrMissingField         = errors.New("please fill in all required fields")
	ErrInvalidFormat        = errors.New("invalid date or time format")
	ErrInvalidRange         = errors.New("end time must be after start time")
	ErrOutsideWorkingHours  = errors.New("bookings are only allowed during working hours")
	ErrAttendeesOutOfBounds = errors.New("number of attendees is out of bounds")
	ErrUnknownRoom          = errors.New("room does not exist or is not bookable")
	ErrPastDate             = errors.New("cannot book in the past")
	ErrRoomUnavailable      = errors.New("room is not available for the selected time")
	ErrPersistenceFailed    = errors.New("failed to save booking")
	ErrUnavailable          = errors.New("booking store is unavailable, try again")
	ErrNotCancellable       = errors.New("only upcoming bookings can be changed")
	ErrForbidden            = errors.New("booking belongs to another user")
)

// FieldError names the input field that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Rejection is returned for every submission that did not reach Confirmed.
type Rejection struct {
	Reason Reason
	Field  string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("booking rejected (%s, %s): %v", r.Reason, r.Field, r.Err)
	}
	return fmt.Sprintf("booking rejected (%s): %v", r.Reason, r.Err)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(err error) *Rejection {
	r := &Rejection{Reason: ReasonOf(err), Err: err}
	var fe *FieldError
	if errors.As(err, &fe) {
		r.Field = fe.Field
	}
	return r
}

var reasonBySentinel = []struct {
	err    error
	reason Reason
}{
	{ErrMissingField, ReasonMissingField},
	{ErrInvalidFormat, ReasonInvalidFormat},
	{ErrInvalidRange, ReasonInvalidRange},
	{ErrOutsideWorkingHours, ReasonOutsideWorkingHours},
	{ErrAttendeesOutOfBounds, ReasonAttendeesOutOfBounds},
	{ErrUnknownRoom, ReasonUnknownRoom},
	{ErrPastDate, ReasonPastDate},
	{ErrRoomUnavailable, ReasonRoomUnavailable},
	{ErrUnavailable, ReasonUnavailable},
	{ErrNotCancellable, ReasonNotCancellable},
	{ErrForbidden, ReasonForbidden},
	{model.ErrNotFound, ReasonNotFound},
	{ErrPersistenceFailed, ReasonPersistenceFailed},
}

// ReasonOf maps an error to its rejection reason. Unknown errors are
// persistence failures.
func ReasonOf(err error) Reason {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	for _, s := range reasonBySentinel {
		if errors.Is(err, s.err) {
			return s.reason
		}
	}
	return ReasonPersistenceFailed
}

// IsValidation reports whether err is a user-correctable input error.
func IsValidation(err error) bool {
	switch ReasonOf(err) {
	case ReasonMissingField, ReasonInvalidFormat, ReasonInvalidRange,
		ReasonOutsideWorkingHours, ReasonAttendeesOutOfBounds, ReasonUnknownRoom, ReasonPastDate:
		return true
	}
	return false
}
