package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueFilter narrows the active-queue views. A zero Limit means no limit.
type QueueFilter struct {
	DoctorID *uuid.UUID
	Limit    int
}

// NewAppointment is the insert payload for a booking.
type NewAppointment struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AppointmentTime time.Time
	ScheduledBy     ScheduledBy
}

// AppointmentTransition is a conditional status update. The row must match
// ID, every non-nil owner field and one of From; otherwise
// ErrAppointmentNotFound is returned and nothing changes.
type AppointmentTransition struct {
	ID           uuid.UUID
	PatientID    *uuid.UUID
	DoctorID     *uuid.UUID
	From         []AppointmentStatus
	To           AppointmentStatus
	DenialReason *string
}

// LifecycleEvent is one audit row written in the same transaction as the
// transition it describes.
type LifecycleEvent struct {
	Type          string
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	QueueNumber   int
	From          string
	To            string
}

// Store is the read side plus the transaction boundary.
type Store interface {
	GetPatientByAccount(ctx context.Context, accountID uuid.UUID) (*Patient, error)
	GetDoctorByAccount(ctx context.Context, accountID uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	CountPatients(ctx context.Context) (int, error)

	// Views over waiting and consulting entries. Ordered by entered_at, or by
	// queue number then entered_at when DoctorID is set.
	ListActiveQueue(ctx context.Context, filter QueueFilter) ([]QueueItem, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentSummary, error)
	FindActiveEntryForPatient(ctx context.Context, patientID uuid.UUID) (*ActiveEntry, error)
	CountWaitingAhead(ctx context.Context, doctorID uuid.UUID, queueNumber int) (int, error)
	GetCurrentPatient(ctx context.Context, doctorID uuid.UUID) (*CurrentPatient, error)

	// WithTx runs fn in one transaction. Any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side. All methods run inside the caller's transaction.
type Tx interface {
	// LockDoctor serialises queue mutations for one doctor until commit.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasActiveAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	// NextQueueNumber is max over all of the doctor's entries plus one.
	NextQueueNumber(ctx context.Context, doctorID uuid.UUID) (int, error)

	FindWalkInPatient(ctx context.Context, name string, age *int) (*Patient, error)
	CreatePatient(ctx context.Context, fields PatientFields) (*Patient, error)
	CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	CreateQueueEntry(ctx context.Context, appointmentID, doctorID, patientID uuid.UUID, number int) (*QueueEntry, error)

	TransitionAppointment(ctx context.Context, t AppointmentTransition) (*Appointment, error)
	// TransitionQueueEntry moves the entry linked to appointmentID from one of
	// from to to, or returns ErrQueueEntryNotFound.
	TransitionQueueEntry(ctx context.Context, appointmentID uuid.UUID, from []QueueStatus, to QueueStatus) (*QueueEntry, error)

	// FindConsulting returns the earliest-entered consulting entry.
	FindConsulting(ctx context.Context, doctorID uuid.UUID) (*QueueSlot, error)
	// FindNextWaiting returns the waiting entry with the lowest queue number.
	FindNextWaiting(ctx context.Context, doctorID uuid.UUID) (*QueueSlot, error)

	RecordEvent(ctx context.Context, ev LifecycleEvent) error
}
