package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NextPreviewSize is how many entries the staff preview shows.
const NextPreviewSize = 3

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.store.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

// GetMyTurn returns the patient's position in their active queue.
func (s *Service) GetMyTurn(ctx context.Context, patientAccountID uuid.UUID) (*Turn, error) {
	patient, err := s.patientForAccount(ctx, patientAccountID)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.FindActiveEntryForPatient(ctx, patient.ID)
	if err != nil {
		if errors.Is(err, ErrNotInQueue) {
			return nil, err
		}
		return nil, fmt.Errorf("find active entry: %w", err)
	}

	ahead, err := s.store.CountWaitingAhead(ctx, entry.DoctorID, entry.QueueNumber)
	if err != nil {
		return nil, fmt.Errorf("count patients ahead: %w", err)
	}

	turn := EstimateTurn(*entry, ahead)
	return &turn, nil
}

// GetMyAppointments lists the patient's appointments, most recent first.
func (s *Service) GetMyAppointments(ctx context.Context, patientAccountID uuid.UUID) ([]AppointmentSummary, error) {
	patient, err := s.patientForAccount(ctx, patientAccountID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListAppointmentsByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return items, nil
}

// GetDoctorQueue lists the doctor's waiting and consulting entries by queue number.
func (s *Service) GetDoctorQueue(ctx context.Context, doctorAccountID uuid.UUID) ([]QueueItem, error) {
	doctor, err := s.doctorForAccount(ctx, doctorAccountID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListActiveQueue(ctx, QueueFilter{DoctorID: &doctor.ID})
	if err != nil {
		return nil, fmt.Errorf("list doctor queue: %w", err)
	}
	return items, nil
}

func (s *Service) GetCurrentPatient(ctx context.Context, doctorAccountID uuid.UUID) (*CurrentPatient, error) {
	doctor, err := s.doctorForAccount(ctx, doctorAccountID)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetCurrentPatient(ctx, doctor.ID)
	if err != nil {
		if errors.Is(err, ErrNoCurrentPatient) {
			return nil, err
		}
		return nil, fmt.Errorf("get current patient: %w", err)
	}
	return current, nil
}

// AdminQueueMonitor lists every active entry across doctors by entry time.
func (s *Service) AdminQueueMonitor(ctx context.Context) ([]QueueItem, error) {
	items, err := s.store.ListActiveQueue(ctx, QueueFilter{})
	if err != nil {
		return nil, fmt.Errorf("list active queue: %w", err)
	}
	return items, nil
}

// NextInQueue is the admin monitor truncated to NextPreviewSize.
func (s *Service) NextInQueue(ctx context.Context) ([]QueueItem, error) {
	items, err := s.store.ListActiveQueue(ctx, QueueFilter{Limit: NextPreviewSize})
	if err != nil {
		return nil, fmt.Errorf("list next in queue: %w", err)
	}
	return items, nil
}

func (s *Service) PatientCount(ctx context.Context) (int, error) {
	n, err := s.store.CountPatients(ctx)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}
