package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

const patientColumns = `id, account_id, name, age, gender, contact_info, dietary_restrictions, allergies, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.Name,
		&p.Age,
		&p.Gender,
		&p.ContactInfo,
		&p.DietaryRestrictions,
		&p.Allergies,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

const doctorColumns = `id, account_id, name, specialization, contact_info, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&d.Name,
		&d.Specialization,
		&d.ContactInfo,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_time, status, scheduled_by, denial_reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.AppointmentTime,
		&a.Status,
		&a.ScheduledBy,
		&a.DenialReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const queueEntryColumns = `id, appointment_id, doctor_id, patient_id, queue_number, status, entered_at`

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var q QueueEntry
	err := row.Scan(
		&q.ID,
		&q.AppointmentID,
		&q.DoctorID,
		&q.PatientID,
		&q.QueueNumber,
		&q.Status,
		&q.EnteredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	return &q, nil
}

func scanQueueItem(row pgx.Row) (*QueueItem, error) {
	var it QueueItem
	err := row.Scan(
		&it.QueueEntryID,
		&it.AppointmentID,
		&it.QueueNumber,
		&it.Status,
		&it.EnteredAt,
		&it.AppointmentTime,
		&it.PatientName,
		&it.PatientAge,
		&it.PatientGender,
		&it.DoctorName,
		&it.DoctorSpecialization,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanSlot(row pgx.Row) (*QueueSlot, error) {
	var s QueueSlot
	err := row.Scan(
		&s.Entry.ID,
		&s.Entry.AppointmentID,
		&s.Entry.DoctorID,
		&s.Entry.PatientID,
		&s.Entry.QueueNumber,
		&s.Entry.Status,
		&s.Entry.EnteredAt,
		&s.PatientName,
		&s.PatientAccountID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	return &s, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Store methods

func (s *PgStore) GetPatientByAccount(ctx context.Context, accountID uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE account_id = $1
	`, accountID)
	return scanPatient(row)
}

func (s *PgStore) GetDoctorByAccount(ctx context.Context, accountID uuid.UUID) (*Doctor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE account_id = $1
	`, accountID)
	return scanDoctor(row)
}

func (s *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PgStore) CountPatients(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&n)
	return n, err
}

func (s *PgStore) ListActiveQueue(ctx context.Context, filter QueueFilter) ([]QueueItem, error) {
	query := `
		SELECT q.id, q.appointment_id, q.queue_number, q.status, q.entered_at,
		       a.appointment_time, p.name, p.age, p.gender, d.name, d.specialization
		FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		JOIN patients p ON p.id = q.patient_id
		JOIN doctors d ON d.id = q.doctor_id
		WHERE q.status IN ('waiting', 'consulting')`

	args := []any{}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		query += fmt.Sprintf(` AND q.doctor_id = $%d ORDER BY q.queue_number, q.entered_at`, len(args))
	} else {
		query += ` ORDER BY q.entered_at, q.queue_number`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []QueueItem{}
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *it)
	}
	return result, rows.Err()
}

func (s *PgStore) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.appointment_time, a.status, a.scheduled_by, a.denial_reason,
		       d.name, d.specialization, q.queue_number
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN queue_entries q ON q.appointment_id = a.id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_time DESC, a.created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentSummary{}
	for rows.Next() {
		var a AppointmentSummary
		if err := rows.Scan(
			&a.AppointmentID,
			&a.AppointmentTime,
			&a.Status,
			&a.ScheduledBy,
			&a.DenialReason,
			&a.DoctorName,
			&a.DoctorSpecialization,
			&a.QueueNumber,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PgStore) FindActiveEntryForPatient(ctx context.Context, patientID uuid.UUID) (*ActiveEntry, error) {
	var e ActiveEntry
	err := s.pool.QueryRow(ctx, `
		SELECT q.id, q.appointment_id, q.doctor_id, q.patient_id, q.queue_number, q.status, q.entered_at,
		       d.name, d.specialization
		FROM queue_entries q
		JOIN doctors d ON d.id = q.doctor_id
		WHERE q.patient_id = $1
		  AND q.status IN ('waiting', 'consulting')
		ORDER BY q.entered_at
		LIMIT 1
	`, patientID).Scan(
		&e.ID,
		&e.AppointmentID,
		&e.DoctorID,
		&e.PatientID,
		&e.QueueNumber,
		&e.Status,
		&e.EnteredAt,
		&e.DoctorName,
		&e.DoctorSpecialization,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInQueue
		}
		return nil, err
	}
	return &e, nil
}

func (s *PgStore) CountWaitingAhead(ctx context.Context, doctorID uuid.UUID, queueNumber int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM queue_entries
		WHERE doctor_id = $1
		  AND status = 'waiting'
		  AND queue_number < $2
	`, doctorID, queueNumber).Scan(&n)
	return n, err
}

func (s *PgStore) GetCurrentPatient(ctx context.Context, doctorID uuid.UUID) (*CurrentPatient, error) {
	var c CurrentPatient
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.account_id, p.name, p.age, p.gender, p.contact_info,
		       p.dietary_restrictions, p.allergies, p.created_at,
		       q.queue_number, q.appointment_id
		FROM queue_entries q
		JOIN patients p ON p.id = q.patient_id
		WHERE q.doctor_id = $1
		  AND q.status = 'consulting'
		ORDER BY q.entered_at
		LIMIT 1
	`, doctorID).Scan(
		&c.ID,
		&c.AccountID,
		&c.Name,
		&c.Age,
		&c.Gender,
		&c.ContactInfo,
		&c.DietaryRestrictions,
		&c.Allergies,
		&c.CreatedAt,
		&c.QueueNumber,
		&c.AppointmentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCurrentPatient
		}
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// pgTx implements Tx on top of a single pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockDoctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
		FOR UPDATE
	`, doctorID)
	return scanDoctor(row)
}

func (t *pgTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) HasActiveAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE patient_id = $1
			  AND doctor_id = $2
			  AND status IN ('scheduled', 'in_queue')
		)
	`, patientID, doctorID).Scan(&exists)
	return exists, err
}

func (t *pgTx) NextQueueNumber(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_number), 0) + 1
		FROM queue_entries
		WHERE doctor_id = $1
	`, doctorID).Scan(&n)
	return n, err
}

func (t *pgTx) FindWalkInPatient(ctx context.Context, name string, age *int) (*Patient, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE name = $1
		  AND age IS NOT DISTINCT FROM $2
		ORDER BY created_at
		LIMIT 1
	`, name, age)
	return scanPatient(row)
}

func (t *pgTx) CreatePatient(ctx context.Context, f PatientFields) (*Patient, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO patients (id, name, age, gender, contact_info, dietary_restrictions, allergies)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+patientColumns,
		uuid.New(), f.Name, f.Age, f.Gender, f.ContactInfo, f.DietaryRestrictions, f.Allergies)
	return scanPatient(row)
}

func (t *pgTx) CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_time, status, scheduled_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', $5, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), a.PatientID, a.DoctorID, a.AppointmentTime, a.ScheduledBy)
	return scanAppointment(row)
}

func (t *pgTx) CreateQueueEntry(ctx context.Context, appointmentID, doctorID, patientID uuid.UUID, number int) (*QueueEntry, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO queue_entries (id, appointment_id, doctor_id, patient_id, queue_number, status, entered_at)
		VALUES ($1, $2, $3, $4, $5, 'waiting', clock_timestamp())
		RETURNING `+queueEntryColumns,
		uuid.New(), appointmentID, doctorID, patientID, number)
	return scanQueueEntry(row)
}

func (t *pgTx) TransitionAppointment(ctx context.Context, tr AppointmentTransition) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    denial_reason = COALESCE($3, denial_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		  AND ($5::uuid IS NULL OR patient_id = $5)
		  AND ($6::uuid IS NULL OR doctor_id = $6)
		RETURNING `+appointmentColumns,
		tr.ID, tr.To, tr.DenialReason, statusStrings(tr.From), tr.PatientID, tr.DoctorID)
	return scanAppointment(row)
}

func (t *pgTx) TransitionQueueEntry(ctx context.Context, appointmentID uuid.UUID, from []QueueStatus, to QueueStatus) (*QueueEntry, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2
		WHERE appointment_id = $1
		  AND status = ANY($3)
		RETURNING `+queueEntryColumns,
		appointmentID, to, statusStrings(from))
	return scanQueueEntry(row)
}

const slotSelect = `
		SELECT q.id, q.appointment_id, q.doctor_id, q.patient_id, q.queue_number, q.status, q.entered_at,
		       p.name, p.account_id
		FROM queue_entries q
		JOIN patients p ON p.id = q.patient_id`

func (t *pgTx) FindConsulting(ctx context.Context, doctorID uuid.UUID) (*QueueSlot, error) {
	row := t.tx.QueryRow(ctx, slotSelect+`
		WHERE q.doctor_id = $1
		  AND q.status = 'consulting'
		ORDER BY q.entered_at
		LIMIT 1
	`, doctorID)
	return scanSlot(row)
}

func (t *pgTx) FindNextWaiting(ctx context.Context, doctorID uuid.UUID) (*QueueSlot, error) {
	row := t.tx.QueryRow(ctx, slotSelect+`
		WHERE q.doctor_id = $1
		  AND q.status = 'waiting'
		ORDER BY q.queue_number
		LIMIT 1
	`, doctorID)
	return scanSlot(row)
}

type eventPayload struct {
	DoctorID    uuid.UUID `json:"doctorId"`
	QueueNumber int       `json:"queueNumber"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
}

func (t *pgTx) RecordEvent(ctx context.Context, ev LifecycleEvent) error {
	payload, err := json.Marshal(eventPayload{
		DoctorID:    ev.DoctorID,
		QueueNumber: ev.QueueNumber,
		From:        ev.From,
		To:          ev.To,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO lifecycle_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.Type, ev.AppointmentID, payload)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}
