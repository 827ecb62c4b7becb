package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/clinic"
)

type RegisterRequest struct {
	Email               string  `json:"email"`
	Password            string  `json:"password"`
	Name                string  `json:"name"`
	Role                string  `json:"role"`
	Specialization      string  `json:"specialization"`
	Age                 *int    `json:"age"`
	Gender              *string `json:"gender"`
	ContactInfo         *string `json:"contact_info"`
	DietaryRestrictions *string `json:"dietary_restrictions"`
	Allergies           *string `json:"allergies"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
	Name  string    `json:"name"`
}

type RegisterResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type LoginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
}

type BookAppointmentRequest struct {
	DoctorID        string    `json:"doctor_id"`
	AppointmentTime time.Time `json:"appointment_time"`
}

type WalkInRequest struct {
	PatientName         string    `json:"patient_name"`
	PatientAge          *int      `json:"patient_age"`
	PatientGender       *string   `json:"patient_gender"`
	ContactInfo         *string   `json:"contact_info"`
	DietaryRestrictions *string   `json:"dietary_restrictions"`
	Allergies           *string   `json:"allergies"`
	DoctorID            string    `json:"doctor_id"`
	AppointmentTime     time.Time `json:"appointment_time"`
}

type BookingResponse struct {
	Message         string    `json:"message"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	QueueNumber     int       `json:"queue_number"`
	Status          string    `json:"status"`
	AppointmentTime time.Time `json:"appointment_time"`
}

type DenyRequest struct {
	Reason string `json:"reason"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AdvanceResponse struct {
	Message          string  `json:"message"`
	Outcome          string  `json:"outcome"`
	CompletedPatient *string `json:"completed_patient,omitempty"`
	NextPatient      *string `json:"next_patient"`
}

type TurnResponse struct {
	QueueNumber          int    `json:"queue_number"`
	Status               string `json:"status"`
	DoctorName           string `json:"doctor_name"`
	DoctorSpecialization string `json:"doctor_specialization"`
	AppointmentID        string `json:"appointment_id"`
	PatientsAhead        int    `json:"patients_ahead"`
	EstimatedWaitMinutes int    `json:"estimated_wait_time_minutes"`
	Message              string `json:"message"`
}

type QueueItemResponse struct {
	QueueEntryID         uuid.UUID `json:"queue_entry_id"`
	AppointmentID        uuid.UUID `json:"appointment_id"`
	QueueNumber          int       `json:"queue_number"`
	Status               string    `json:"status"`
	EnteredAt            time.Time `json:"entered_at"`
	AppointmentTime      time.Time `json:"appointment_time"`
	PatientName          string    `json:"patient_name"`
	PatientAge           *int      `json:"patient_age,omitempty"`
	PatientGender        *string   `json:"patient_gender,omitempty"`
	DoctorName           string    `json:"doctor_name"`
	DoctorSpecialization string    `json:"doctor_specialization"`
}

type AppointmentSummaryResponse struct {
	AppointmentID        uuid.UUID `json:"appointment_id"`
	AppointmentTime      time.Time `json:"appointment_time"`
	Status               string    `json:"status"`
	ScheduledBy          string    `json:"scheduled_by"`
	DenialReason         *string   `json:"denial_reason,omitempty"`
	DoctorName           string    `json:"doctor_name"`
	DoctorSpecialization string    `json:"doctor_specialization"`
	QueueNumber          *int      `json:"queue_number,omitempty"`
}

type CurrentPatientResponse struct {
	PatientID           uuid.UUID `json:"patient_id"`
	Name                string    `json:"name"`
	Age                 *int      `json:"age,omitempty"`
	Gender              *string   `json:"gender,omitempty"`
	ContactInfo         *string   `json:"contact_info,omitempty"`
	DietaryRestrictions *string   `json:"dietary_restrictions,omitempty"`
	Allergies           *string   `json:"allergies,omitempty"`
	QueueNumber         int       `json:"queue_number"`
	AppointmentID       uuid.UUID `json:"appointment_id"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toQueueItems(items []clinic.QueueItem) []QueueItemResponse {
	out := make([]QueueItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, QueueItemResponse{
			QueueEntryID:         it.QueueEntryID,
			AppointmentID:        it.AppointmentID,
			QueueNumber:          it.QueueNumber,
			Status:               string(it.Status),
			EnteredAt:            it.EnteredAt,
			AppointmentTime:      it.AppointmentTime,
			PatientName:          it.PatientName,
			PatientAge:           it.PatientAge,
			PatientGender:        it.PatientGender,
			DoctorName:           it.DoctorName,
			DoctorSpecialization: it.DoctorSpecialization,
		})
	}
	return out
}

func toBookingResponse(message string, b *clinic.Booking) BookingResponse {
	return BookingResponse{
		Message:         message,
		AppointmentID:   b.AppointmentID,
		QueueNumber:     b.QueueNumber,
		Status:          string(b.Appointment.Status),
		AppointmentTime: b.Appointment.AppointmentTime,
	}
}
