package clinic

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusInQueue   AppointmentStatus = "in_queue"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusDenied    AppointmentStatus = "denied"
)

// Terminal reports whether no further transition is possible.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDenied
}

type QueueStatus string

const (
	QueueWaiting    QueueStatus = "waiting"
	QueueConsulting QueueStatus = "consulting"
	QueueCompleted  QueueStatus = "completed"
	QueueDenied     QueueStatus = "denied"
	QueueCancelled  QueueStatus = "cancelled"
)

func (s QueueStatus) Active() bool {
	return s == QueueWaiting || s == QueueConsulting
}

type ScheduledBy string

const (
	ScheduledByPatient ScheduledBy = "patient"
	ScheduledByStaff   ScheduledBy = "staff"
)

// Patient is a patient profile. AccountID is nil for staff-created walk-ins.
type Patient struct {
	ID                  uuid.UUID
	AccountID           *uuid.UUID
	Name                string
	Age                 *int
	Gender              *string
	ContactInfo         *string
	DietaryRestrictions *string
	Allergies           *string
	CreatedAt           time.Time
}

type Doctor struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Name           string
	Specialization string
	ContactInfo    *string
	CreatedAt      time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AppointmentTime time.Time
	Status          AppointmentStatus
	ScheduledBy     ScheduledBy
	DenialReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QueueEntry is never deleted; queue numbers are unique per doctor and never
// reused.
type QueueEntry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	QueueNumber   int
	Status        QueueStatus
	EnteredAt     time.Time
}

// PatientFields is the profile data staff capture for a walk-in.
type PatientFields struct {
	Name                string
	Age                 *int
	Gender              *string
	ContactInfo         *string
	DietaryRestrictions *string
	Allergies           *string
}

// Booking is the result of a successful book or walk-in.
type Booking struct {
	AppointmentID uuid.UUID
	QueueNumber   int
	Appointment   Appointment
	QueueEntry    QueueEntry
}

// QueueItem is one row of the monitor, next-3 and doctor queue views.
type QueueItem struct {
	QueueEntryID         uuid.UUID
	AppointmentID        uuid.UUID
	QueueNumber          int
	Status               QueueStatus
	EnteredAt            time.Time
	AppointmentTime      time.Time
	PatientName          string
	PatientAge           *int
	PatientGender        *string
	DoctorName           string
	DoctorSpecialization string
}

// AppointmentSummary is one row of a patient's appointment history.
type AppointmentSummary struct {
	AppointmentID        uuid.UUID
	AppointmentTime      time.Time
	Status               AppointmentStatus
	ScheduledBy          ScheduledBy
	DenialReason         *string
	DoctorName           string
	DoctorSpecialization string
	QueueNumber          *int
}

// ActiveEntry is a patient's waiting or consulting entry with its doctor.
type ActiveEntry struct {
	QueueEntry
	DoctorName           string
	DoctorSpecialization string
}

// CurrentPatient is the full profile of the patient a doctor is seeing.
type CurrentPatient struct {
	Patient
	QueueNumber   int
	AppointmentID uuid.UUID
}

// QueueSlot is a queue entry selected inside a transaction along with what
// the notification fan-out needs.
type QueueSlot struct {
	Entry            QueueEntry
	PatientName      string
	PatientAccountID *uuid.UUID
}
