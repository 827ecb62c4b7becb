package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleError maps service errors onto HTTP responses. Anything unrecognised
// is logged and reported as a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		clinicInvalid  *clinic.ValidationError
		accountInvalid *account.ValidationError
	)

	switch {
	case errors.As(err, &clinicInvalid):
		writeError(w, http.StatusBadRequest, clinicInvalid.Reason, clinicInvalid.Message)
	case errors.As(err, &accountInvalid):
		writeError(w, http.StatusBadRequest, "invalid_"+accountInvalid.Field, accountInvalid.Message)
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid credentials.")

	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Only an admin can create doctor, staff, or admin accounts.")

	case errors.Is(err, account.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "User with this email already exists.")
	case errors.Is(err, clinic.ErrActiveAppointmentExists):
		writeError(w, http.StatusConflict, "active_appointment_exists", "You already have an active appointment or are in queue for this doctor.")

	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", "Patient profile not found.")
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", "Doctor profile not found.")
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found or not available for this action.")
	case errors.Is(err, clinic.ErrNotInQueue):
		writeError(w, http.StatusNotFound, "not_in_queue", "You are not currently in any active queue.")
	case errors.Is(err, clinic.ErrNoCurrentPatient):
		writeError(w, http.StatusNotFound, "no_current_patient", "No patient currently in consultation.")

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong, please retry.")
	}
}
