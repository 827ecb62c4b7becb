package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/metrics"
	"github.com/hackgods/clinic-queue/internal/notify"
	redisclient "github.com/hackgods/clinic-queue/internal/redis"
)

const notifyTimeout = 2 * time.Second

type Service struct {
	store     Store
	locker    redisclient.Locker
	publisher notify.Publisher
	metrics   *metrics.Collector
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, locker redisclient.Locker, publisher notify.Publisher, cfg config.Config, log zerolog.Logger, opts ...Option) *Service {
	loc := cfg.ClinicLocation
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		store:     store,
		locker:    locker,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		log:       log.With().Str("component", "clinic").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookAppointment books a patient into a doctor's queue. The appointment is
// scheduled and the queue entry waiting with the doctor's next number.
func (s *Service) BookAppointment(ctx context.Context, patientAccountID, doctorID uuid.UUID, at time.Time) (*Booking, error) {
	if doctorID == uuid.Nil {
		return nil, invalid("doctorId", "required", "Doctor and appointment time are required.")
	}
	if err := ValidateAppointmentTime(at, s.now(), s.loc); err != nil {
		return nil, err
	}

	patient, err := s.patientForAccount(ctx, patientAccountID)
	if err != nil {
		return nil, err
	}

	var booking *Booking
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := lockDoctor(ctx, tx, doctorID); err != nil {
			return err
		}
		b, err := s.enqueue(ctx, tx, patient.ID, doctorID, at, ScheduledByPatient)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("book")
	s.log.Info().
		Str("appointment_id", booking.AppointmentID.String()).
		Str("doctor_id", doctorID.String()).
		Int("queue_number", booking.QueueNumber).
		Msg("appointment booked")

	return booking, nil
}

// WalkInRequest is a staff booking for a patient who may have no account.
type WalkInRequest struct {
	Patient         PatientFields
	DoctorID        uuid.UUID
	AppointmentTime time.Time
}

// ScheduleWalkIn reuses a profile with the same name and age, or creates an
// account-less one, then books it like a patient booking.
func (s *Service) ScheduleWalkIn(ctx context.Context, req WalkInRequest) (*Booking, error) {
	req.Patient.Name = strings.TrimSpace(req.Patient.Name)
	if req.Patient.Name == "" || req.DoctorID == uuid.Nil {
		return nil, invalid("patientName", "required", "Patient name, doctor, and appointment time are required.")
	}
	if req.Patient.Age != nil && *req.Patient.Age < 0 {
		return nil, invalid("patientAge", "invalid", "Patient age cannot be negative.")
	}
	if err := ValidateAppointmentTime(req.AppointmentTime, s.now(), s.loc); err != nil {
		return nil, err
	}

	var booking *Booking
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := lockDoctor(ctx, tx, req.DoctorID); err != nil {
			return err
		}

		patient, err := tx.FindWalkInPatient(ctx, req.Patient.Name, req.Patient.Age)
		if errors.Is(err, ErrPatientNotFound) {
			patient, err = tx.CreatePatient(ctx, req.Patient)
		}
		if err != nil {
			return fmt.Errorf("resolve walk-in patient: %w", err)
		}

		b, err := s.enqueue(ctx, tx, patient.ID, req.DoctorID, req.AppointmentTime, ScheduledByStaff)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("walk_in")
	s.log.Info().
		Str("appointment_id", booking.AppointmentID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Int("queue_number", booking.QueueNumber).
		Msg("walk-in scheduled")

	return booking, nil
}

// enqueue must run after the doctor row is locked so that the max+1 read and
// the insert are serialised per doctor.
func (s *Service) enqueue(ctx context.Context, tx Tx, patientID, doctorID uuid.UUID, at time.Time, by ScheduledBy) (*Booking, error) {
	active, err := tx.HasActiveAppointment(ctx, patientID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("check active appointment: %w", err)
	}
	if active {
		return nil, ErrActiveAppointmentExists
	}

	number, err := tx.NextQueueNumber(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("next queue number: %w", err)
	}

	appt, err := tx.CreateAppointment(ctx, NewAppointment{
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentTime: at,
		ScheduledBy:     by,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	entry, err := tx.CreateQueueEntry(ctx, appt.ID, doctorID, patientID, number)
	if err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}

	evType := "book"
	if by == ScheduledByStaff {
		evType = "walk_in"
	}
	if err := recordEvent(ctx, tx, LifecycleEvent{
		Type:          evType,
		AppointmentID: appt.ID,
		DoctorID:      doctorID,
		QueueNumber:   entry.QueueNumber,
		To:            string(StatusScheduled),
	}); err != nil {
		return nil, err
	}

	return &Booking{
		AppointmentID: appt.ID,
		QueueNumber:   entry.QueueNumber,
		Appointment:   *appt,
		QueueEntry:    *entry,
	}, nil
}

// CancelAppointment cancels the caller's own scheduled appointment. Anything
// already consulting or finished reports ErrAppointmentNotFound.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, patientAccountID uuid.UUID) error {
	patient, err := s.patientForAccount(ctx, patientAccountID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PatientID != patient.ID {
			return ErrAppointmentNotFound
		}

		if _, err := lockDoctor(ctx, tx, appt.DoctorID); err != nil {
			return err
		}

		if _, err := tx.TransitionAppointment(ctx, AppointmentTransition{
			ID:        appointmentID,
			PatientID: &patient.ID,
			From:      []AppointmentStatus{StatusScheduled},
			To:        StatusCancelled,
		}); err != nil {
			return err
		}

		entry, err := tx.TransitionQueueEntry(ctx, appointmentID, []QueueStatus{QueueWaiting}, QueueCancelled)
		if err != nil {
			return fmt.Errorf("cancel queue entry: %w", err)
		}

		return recordEvent(ctx, tx, LifecycleEvent{
			Type:          "cancel",
			AppointmentID: appointmentID,
			DoctorID:      appt.DoctorID,
			QueueNumber:   entry.QueueNumber,
			From:          string(StatusScheduled),
			To:            string(StatusCancelled),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTransition("cancel")
	s.log.Info().Str("appointment_id", appointmentID.String()).Msg("appointment cancelled")
	return nil
}

// DenyService denies an active appointment of the calling doctor.
func (s *Service) DenyService(ctx context.Context, appointmentID, doctorAccountID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalid("reason", "required", "Reason for denial is required.")
	}

	doctor, err := s.doctorForAccount(ctx, doctorAccountID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := lockDoctor(ctx, tx, doctor.ID); err != nil {
			return err
		}

		prev, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}

		if _, err := tx.TransitionAppointment(ctx, AppointmentTransition{
			ID:           appointmentID,
			DoctorID:     &doctor.ID,
			From:         []AppointmentStatus{StatusScheduled, StatusInQueue},
			To:           StatusDenied,
			DenialReason: &reason,
		}); err != nil {
			return err
		}

		entry, err := tx.TransitionQueueEntry(ctx, appointmentID, []QueueStatus{QueueWaiting, QueueConsulting}, QueueDenied)
		if err != nil {
			return fmt.Errorf("deny queue entry: %w", err)
		}

		return recordEvent(ctx, tx, LifecycleEvent{
			Type:          "deny",
			AppointmentID: appointmentID,
			DoctorID:      doctor.ID,
			QueueNumber:   entry.QueueNumber,
			From:          string(prev.Status),
			To:            string(StatusDenied),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTransition("deny")
	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("doctor_id", doctor.ID.String()).
		Msg("service denied")
	return nil
}

type AdvanceOutcome string

const (
	OutcomeCompletedAndCalled  AdvanceOutcome = "completed_and_called"
	OutcomeCompletedQueueEmpty AdvanceOutcome = "completed_queue_empty"
	OutcomeCalledNext          AdvanceOutcome = "called_next"
	OutcomeIdle                AdvanceOutcome = "idle"
)

// AdvanceResult reports which halves of complete-and-advance happened.
type AdvanceResult struct {
	Outcome   AdvanceOutcome
	Completed *QueueSlot
	Next      *QueueSlot
	Message   string
}

// CompleteAndAdvance completes the doctor's consulting patient and calls the
// next waiting one in a single transaction. Notifications go out only after
// commit.
func (s *Service) CompleteAndAdvance(ctx context.Context, doctorAccountID uuid.UUID) (*AdvanceResult, error) {
	doctor, err := s.doctorForAccount(ctx, doctorAccountID)
	if err != nil {
		return nil, err
	}

	var (
		result *AdvanceResult
		events []notify.Event
	)

	err = s.withDoctorLock(ctx, doctor.ID, func(lockCtx context.Context) error {
		return s.store.WithTx(lockCtx, func(tx Tx) error {
			events = nil

			if _, err := lockDoctor(lockCtx, tx, doctor.ID); err != nil {
				return err
			}

			current, err := tx.FindConsulting(lockCtx, doctor.ID)
			if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
				return fmt.Errorf("find consulting entry: %w", err)
			}
			if current != nil {
				if err := completeSlot(lockCtx, tx, doctor.ID, current); err != nil {
					return err
				}
				if current.PatientAccountID != nil {
					events = append(events, notify.Event{
						Type:          notify.EventCompleted,
						Message:       "Your appointment has been completed.",
						AppointmentID: current.Entry.AppointmentID,
						AccountID:     *current.PatientAccountID,
					})
				}
			}

			next, err := tx.FindNextWaiting(lockCtx, doctor.ID)
			if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
				return fmt.Errorf("find next waiting entry: %w", err)
			}
			if next != nil {
				if err := callSlot(lockCtx, tx, doctor.ID, next); err != nil {
					return err
				}
				if next.PatientAccountID != nil {
					events = append(events, notify.Event{
						Type:          notify.EventConsulting,
						Message:       fmt.Sprintf("It's your turn! Dr. %s is ready to see you.", doctor.Name),
						AppointmentID: next.Entry.AppointmentID,
						AccountID:     *next.PatientAccountID,
					})
				}
			}

			result = newAdvanceResult(current, next)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Completed != nil {
		s.metrics.RecordTransition("complete")
	}
	if result.Next != nil {
		s.metrics.RecordTransition("call_next")
	}
	s.log.Info().
		Str("doctor_id", doctor.ID.String()).
		Str("outcome", string(result.Outcome)).
		Msg("queue advanced")

	for _, ev := range events {
		s.publish(ctx, ev)
	}

	return result, nil
}

func completeSlot(ctx context.Context, tx Tx, doctorID uuid.UUID, slot *QueueSlot) error {
	if _, err := tx.TransitionQueueEntry(ctx, slot.Entry.AppointmentID, []QueueStatus{QueueConsulting}, QueueCompleted); err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}
	if _, err := tx.TransitionAppointment(ctx, AppointmentTransition{
		ID:       slot.Entry.AppointmentID,
		DoctorID: &doctorID,
		From:     []AppointmentStatus{StatusInQueue},
		To:       StatusCompleted,
	}); err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	return recordEvent(ctx, tx, LifecycleEvent{
		Type:          "complete",
		AppointmentID: slot.Entry.AppointmentID,
		DoctorID:      doctorID,
		QueueNumber:   slot.Entry.QueueNumber,
		From:          string(StatusInQueue),
		To:            string(StatusCompleted),
	})
}

func callSlot(ctx context.Context, tx Tx, doctorID uuid.UUID, slot *QueueSlot) error {
	if _, err := tx.TransitionQueueEntry(ctx, slot.Entry.AppointmentID, []QueueStatus{QueueWaiting}, QueueConsulting); err != nil {
		return fmt.Errorf("call queue entry: %w", err)
	}
	if _, err := tx.TransitionAppointment(ctx, AppointmentTransition{
		ID:       slot.Entry.AppointmentID,
		DoctorID: &doctorID,
		From:     []AppointmentStatus{StatusScheduled},
		To:       StatusInQueue,
	}); err != nil {
		return fmt.Errorf("call appointment: %w", err)
	}
	return recordEvent(ctx, tx, LifecycleEvent{
		Type:          "call_next",
		AppointmentID: slot.Entry.AppointmentID,
		DoctorID:      doctorID,
		QueueNumber:   slot.Entry.QueueNumber,
		From:          string(StatusScheduled),
		To:            string(StatusInQueue),
	})
}

func recordEvent(ctx context.Context, tx Tx, ev LifecycleEvent) error {
	if err := tx.RecordEvent(ctx, ev); err != nil {
		return fmt.Errorf("record %s event: %w", ev.Type, err)
	}
	return nil
}

func newAdvanceResult(completed, next *QueueSlot) *AdvanceResult {
	r := &AdvanceResult{Completed: completed, Next: next}
	switch {
	case completed != nil && next != nil:
		r.Outcome = OutcomeCompletedAndCalled
		r.Message = fmt.Sprintf("Current patient completed, next patient '%s' called.", next.PatientName)
	case completed != nil:
		r.Outcome = OutcomeCompletedQueueEmpty
		r.Message = "Current patient completed. No more patients in queue."
	case next != nil:
		r.Outcome = OutcomeCalledNext
		r.Message = fmt.Sprintf("No patient currently consulting. Next patient '%s' called to consultation.", next.PatientName)
	default:
		r.Outcome = OutcomeIdle
		r.Message = "No active patient or next patient in queue to call."
	}
	return r
}

// publish is fire-and-forget: the transition is already committed.
func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if s.publisher == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.publisher.Publish(pubCtx, ev)
	s.metrics.RecordNotification(string(ev.Type), err)
	if err != nil {
		s.log.Warn().Err(err).
			Str("account_id", ev.AccountID.String()).
			Str("type", string(ev.Type)).
			Msg("notification not delivered")
	}
}

// withDoctorLock runs fn under the Redis doctor lock when it can be taken.
// fn always locks the doctor row itself, so when Redis is unreachable or the
// lock stays held past its wait, fn still runs under the row lock alone.
func (s *Service) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	ran := false
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		ran = true
		return fn(lockCtx)
	})
	if err == nil || ran || ctx.Err() != nil {
		return err
	}

	ev := s.log.Warn().Err(err).Str("doctor_id", doctorID.String())
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		ev.Msg("doctor lock still held, continuing under row lock")
	} else {
		ev.Msg("doctor lock unavailable, continuing under row lock")
	}
	return fn(ctx)
}

func lockDoctor(ctx context.Context, tx Tx, doctorID uuid.UUID) (*Doctor, error) {
	doctor, err := tx.LockDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lock doctor queue: %w", err)
	}
	return doctor, nil
}

func (s *Service) patientForAccount(ctx context.Context, accountID uuid.UUID) (*Patient, error) {
	p, err := s.store.GetPatientByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return p, nil
}

func (s *Service) doctorForAccount(ctx context.Context, accountID uuid.UUID) (*Doctor, error) {
	d, err := s.store.GetDoctorByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return d, nil
}
