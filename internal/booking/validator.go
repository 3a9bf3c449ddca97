// Package booking implements booking validation, conflict detection and the
// submission workflow.
package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"campusroomz/internal/model"
)

// Rules configure the time-interval validator.
type Rules struct {
	WorkStartHour int
	WorkEndHour   int
	// StrictWorkingHours compares the full end time against WorkEndHour:00
	// instead of only its hour, so 18:30 is rejected.
	StrictWorkingHours bool
	MaxAttendees       int
}

func DefaultRules() Rules {
	return Rules{
		WorkStartHour: 9,
		WorkEndHour:   18,
		MaxAttendees:  100,
	}
}

// Candidate is raw booking input as submitted by a user.
type Candidate struct {
	RoomName  string `json:"room_name"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Purpose   string `json:"purpose"`
	Attendees *int   `json:"attendees,omitempty"`
}

// Validated is a candidate that passed every validator rule.
type Validated struct {
	Candidate
}

// Query returns the conflict predicate input for v.
func (v Validated) Query(excludeID string) model.ConflictQuery {
	return model.ConflictQuery{
		RoomName:  v.RoomName,
		Date:      v.Date,
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		ExcludeID: excludeID,
	}
}

type Validator struct {
	rules Rules
}

func NewValidator(rules Rules) *Validator {
	def := DefaultRules()
	if rules.WorkEndHour <= 0 {
		rules.WorkStartHour = def.WorkStartHour
		rules.WorkEndHour = def.WorkEndHour
	}
	if rules.MaxAttendees <= 0 {
		rules.MaxAttendees = def.MaxAttendees
	}
	return &Validator{rules: rules}
}

func (v *Validator) Rules() Rules { return v.rules }

// Validate checks c in a fixed order and returns the first failure.
// It has no side effects, so validating the same input twice gives the
// same answer.
func (v *Validator) Validate(c Candidate) (Validated, error) {
	c.RoomName = strings.TrimSpace(c.RoomName)
	c.Date = strings.TrimSpace(c.Date)
	c.StartTime = strings.TrimSpace(c.StartTime)
	c.EndTime = strings.TrimSpace(c.EndTime)
	c.Purpose = strings.TrimSpace(c.Purpose)

	required := []struct {
		field string
		value string
	}{
		{"room_name", c.RoomName},
		{"date", c.Date},
		{"start_time", c.StartTime},
		{"end_time", c.EndTime},
		{"purpose", c.Purpose},
	}
	for _, r := range required {
		if r.value == "" {
			return Validated{}, &FieldError{Field: r.field, Err: ErrMissingField}
		}
	}

	if _, err := time.Parse(model.DateLayout, c.Date); err != nil {
		return Validated{}, &FieldError{Field: "date", Err: ErrInvalidFormat}
	}
	startHour, ok := clockHour(c.StartTime)
	if !ok {
		return Validated{}, &FieldError{Field: "start_time", Err: ErrInvalidFormat}
	}
	endHour, ok := clockHour(c.EndTime)
	if !ok {
		return Validated{}, &FieldError{Field: "end_time", Err: ErrInvalidFormat}
	}

	if c.StartTime >= c.EndTime {
		return Validated{}, &FieldError{Field: "end_time", Err: ErrInvalidRange}
	}

	if startHour < v.rules.WorkStartHour {
		return Validated{}, &FieldError{Field: "start_time", Err: v.hoursError()}
	}
	if v.rules.StrictWorkingHours {
		if c.EndTime > fmt.Sprintf("%02d:00", v.rules.WorkEndHour) {
			return Validated{}, &FieldError{Field: "end_time", Err: v.hoursError()}
		}
	} else if endHour > v.rules.WorkEndHour {
		return Validated{}, &FieldError{Field: "end_time", Err: v.hoursError()}
	}

	if c.Attendees != nil && (*c.Attendees <= 0 || *c.Attendees > v.rules.MaxAttendees) {
		return Validated{}, &FieldError{
			Field: "attendees",
			Err:   fmt.Errorf("%w: must be between 1 and %d", ErrAttendeesOutOfBounds, v.rules.MaxAttendees),
		}
	}

	return Validated{Candidate: c}, nil
}

func (v *Validator) hoursError() error {
	return fmt.Errorf("%w (%02d:00 - %02d:00)", ErrOutsideWorkingHours, v.rules.WorkStartHour, v.rules.WorkEndHour)
}

// clockHour parses a zero-padded 24h "HH:MM" value and returns its hour.
func clockHour(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	if _, err := time.Parse(model.ClockLayout, s); err != nil {
		return 0, false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, false
	}
	return h, true
}
