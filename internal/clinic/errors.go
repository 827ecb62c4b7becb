package clinic

import (
	"errors"
	"fmt"
)

var (
	ErrPatientNotFound         = errors.New("patient profile not found")
	ErrDoctorNotFound          = errors.New("doctor profile not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrQueueEntryNotFound      = errors.New("queue entry not found")
	ErrNotInQueue              = errors.New("patient is not in any active queue")
	ErrNoCurrentPatient        = errors.New("no patient currently in consultation")
	ErrActiveAppointmentExists = errors.New("patient already has an active appointment with this doctor")
)

// ValidationError reports bad input. Nothing was changed.
type ValidationError struct {
	Field   string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, reason, message string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
