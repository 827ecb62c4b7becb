// Package clinictest provides in-memory stand-ins for the Postgres store, the
// Redis doctor lock and the notification publisher.
package clinictest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
)

var (
	errDuplicateQueueNumber = errors.New("duplicate key value violates unique constraint on (doctor_id, queue_number)")
	errSecondConsulting     = errors.New("duplicate key value violates unique constraint uq_queue_entries_one_consulting")
)

type state struct {
	accounts     map[uuid.UUID]account.Account
	patients     map[uuid.UUID]clinic.Patient
	doctors      map[uuid.UUID]clinic.Doctor
	appointments map[uuid.UUID]clinic.Appointment
	entries      map[uuid.UUID]clinic.QueueEntry
	events       []clinic.LifecycleEvent
	tick         int
}

func (s *state) clone() state {
	return state{
		accounts:     maps.Clone(s.accounts),
		patients:     maps.Clone(s.patients),
		doctors:      maps.Clone(s.doctors),
		appointments: maps.Clone(s.appointments),
		entries:      maps.Clone(s.entries),
		events:       slices.Clone(s.events),
		tick:         s.tick,
	}
}

// MemStore implements clinic.Store and account.Repository. Transactions are
// fully serialised and restore a snapshot when fn returns an error.
type MemStore struct {
	mu       sync.RWMutex
	st       state
	base     time.Time
	eventErr error
}

var (
	_ clinic.Store       = (*MemStore)(nil)
	_ account.Repository = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		st: state{
			accounts:     map[uuid.UUID]account.Account{},
			patients:     map[uuid.UUID]clinic.Patient{},
			doctors:      map[uuid.UUID]clinic.Doctor{},
			appointments: map[uuid.UUID]clinic.Appointment{},
			entries:      map[uuid.UUID]clinic.QueueEntry{},
		},
		base: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// now is a strictly increasing clock so entered_at ordering is deterministic.
func (m *MemStore) now() time.Time {
	m.st.tick++
	return m.base.Add(time.Duration(m.st.tick) * time.Millisecond)
}

// FailEvents makes every RecordEvent call return err until reset with nil.
func (m *MemStore) FailEvents(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventErr = err
}

// Fixtures

// AddDoctor creates a doctor with its own account.
func (m *MemStore) AddDoctor(name, specialization string) clinic.Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := account.Account{ID: uuid.New(), Email: uuid.NewString() + "@clinic.test", Role: auth.RoleDoctor, Name: name, CreatedAt: m.now()}
	m.st.accounts[acc.ID] = acc
	d := clinic.Doctor{ID: uuid.New(), AccountID: acc.ID, Name: name, Specialization: specialization, CreatedAt: m.now()}
	m.st.doctors[d.ID] = d
	return d
}

// AddPatient creates a patient with its own account.
func (m *MemStore) AddPatient(name string) clinic.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := account.Account{ID: uuid.New(), Email: uuid.NewString() + "@clinic.test", Role: auth.RolePatient, Name: name, CreatedAt: m.now()}
	m.st.accounts[acc.ID] = acc
	p := clinic.Patient{ID: uuid.New(), AccountID: &acc.ID, Name: name, CreatedAt: m.now()}
	m.st.patients[p.ID] = p
	return p
}

// Inspection

func (m *MemStore) Appointment(id uuid.UUID) (clinic.Appointment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.st.appointments[id]
	return a, ok
}

func (m *MemStore) QueueEntry(appointmentID uuid.UUID) (clinic.QueueEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryFor(appointmentID)
}

// Entries returns every entry of a doctor ordered by queue number.
func (m *MemStore) Entries(doctorID uuid.UUID) []clinic.QueueEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []clinic.QueueEntry
	for _, e := range m.st.entries {
		if e.DoctorID == doctorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out
}

func (m *MemStore) Events() []clinic.LifecycleEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.st.events)
}

func (m *MemStore) Patients() []clinic.Patient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.Patient
	for _, p := range m.st.patients {
		out = append(out, p)
	}
	return out
}

func (m *MemStore) entryFor(appointmentID uuid.UUID) (clinic.QueueEntry, bool) {
	for _, e := range m.st.entries {
		if e.AppointmentID == appointmentID {
			return e, true
		}
	}
	return clinic.QueueEntry{}, false
}

// clinic.Store

func (m *MemStore) GetPatientByAccount(_ context.Context, accountID uuid.UUID) (*clinic.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.st.patients {
		if p.AccountID != nil && *p.AccountID == accountID {
			return &p, nil
		}
	}
	return nil, clinic.ErrPatientNotFound
}

func (m *MemStore) GetDoctorByAccount(_ context.Context, accountID uuid.UUID) (*clinic.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.st.doctors {
		if d.AccountID == accountID {
			return &d, nil
		}
	}
	return nil, clinic.ErrDoctorNotFound
}

func (m *MemStore) ListDoctors(_ context.Context) ([]clinic.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []clinic.Doctor
	for _, d := range m.st.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *MemStore) CountPatients(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.st.patients), nil
}

func (m *MemStore) ListActiveQueue(_ context.Context, filter clinic.QueueFilter) ([]clinic.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []clinic.QueueEntry
	for _, e := range m.st.entries {
		if !e.Status.Active() {
			continue
		}
		if filter.DoctorID != nil && e.DoctorID != *filter.DoctorID {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if filter.DoctorID != nil {
			if a.QueueNumber != b.QueueNumber {
				return a.QueueNumber < b.QueueNumber
			}
			return a.EnteredAt.Before(b.EnteredAt)
		}
		if !a.EnteredAt.Equal(b.EnteredAt) {
			return a.EnteredAt.Before(b.EnteredAt)
		}
		return a.QueueNumber < b.QueueNumber
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	items := []clinic.QueueItem{}
	for _, e := range entries {
		p := m.st.patients[e.PatientID]
		d := m.st.doctors[e.DoctorID]
		a := m.st.appointments[e.AppointmentID]
		items = append(items, clinic.QueueItem{
			QueueEntryID:         e.ID,
			AppointmentID:        e.AppointmentID,
			QueueNumber:          e.QueueNumber,
			Status:               e.Status,
			EnteredAt:            e.EnteredAt,
			AppointmentTime:      a.AppointmentTime,
			PatientName:          p.Name,
			PatientAge:           p.Age,
			PatientGender:        p.Gender,
			DoctorName:           d.Name,
			DoctorSpecialization: d.Specialization,
		})
	}
	return items, nil
}

func (m *MemStore) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]clinic.AppointmentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var appts []clinic.Appointment
	for _, a := range m.st.appointments {
		if a.PatientID == patientID {
			appts = append(appts, a)
		}
	}
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].AppointmentTime.Equal(appts[j].AppointmentTime) {
			return appts[i].AppointmentTime.After(appts[j].AppointmentTime)
		}
		return appts[i].CreatedAt.After(appts[j].CreatedAt)
	})

	out := []clinic.AppointmentSummary{}
	for _, a := range appts {
		d := m.st.doctors[a.DoctorID]
		s := clinic.AppointmentSummary{
			AppointmentID:        a.ID,
			AppointmentTime:      a.AppointmentTime,
			Status:               a.Status,
			ScheduledBy:          a.ScheduledBy,
			DenialReason:         a.DenialReason,
			DoctorName:           d.Name,
			DoctorSpecialization: d.Specialization,
		}
		if e, ok := m.entryFor(a.ID); ok {
			n := e.QueueNumber
			s.QueueNumber = &n
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemStore) FindActiveEntryForPatient(_ context.Context, patientID uuid.UUID) (*clinic.ActiveEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *clinic.QueueEntry
	for _, e := range m.st.entries {
		if e.PatientID != patientID || !e.Status.Active() {
			continue
		}
		if best == nil || e.EnteredAt.Before(best.EnteredAt) {
			e := e
			best = &e
		}
	}
	if best == nil {
		return nil, clinic.ErrNotInQueue
	}
	d := m.st.doctors[best.DoctorID]
	return &clinic.ActiveEntry{QueueEntry: *best, DoctorName: d.Name, DoctorSpecialization: d.Specialization}, nil
}

func (m *MemStore) CountWaitingAhead(_ context.Context, doctorID uuid.UUID, queueNumber int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.st.entries {
		if e.DoctorID == doctorID && e.Status == clinic.QueueWaiting && e.QueueNumber < queueNumber {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) GetCurrentPatient(_ context.Context, doctorID uuid.UUID) (*clinic.CurrentPatient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot := m.findSlot(doctorID, clinic.QueueConsulting)
	if slot == nil {
		return nil, clinic.ErrNoCurrentPatient
	}
	return &clinic.CurrentPatient{
		Patient:       m.st.patients[slot.Entry.PatientID],
		QueueNumber:   slot.Entry.QueueNumber,
		AppointmentID: slot.Entry.AppointmentID,
	}, nil
}

func (m *MemStore) WithTx(_ context.Context, fn func(tx clinic.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// findSlot returns the consulting entry with the earliest entry time, or the
// waiting entry with the lowest queue number.
func (m *MemStore) findSlot(doctorID uuid.UUID, status clinic.QueueStatus) *clinic.QueueSlot {
	var best *clinic.QueueEntry
	for _, e := range m.st.entries {
		if e.DoctorID != doctorID || e.Status != status {
			continue
		}
		e := e
		switch {
		case best == nil:
			best = &e
		case status == clinic.QueueConsulting && e.EnteredAt.Before(best.EnteredAt):
			best = &e
		case status == clinic.QueueWaiting && e.QueueNumber < best.QueueNumber:
			best = &e
		}
	}
	if best == nil {
		return nil
	}
	p := m.st.patients[best.PatientID]
	return &clinic.QueueSlot{Entry: *best, PatientName: p.Name, PatientAccountID: p.AccountID}
}

// account.Repository

func (m *MemStore) CreateAccount(_ context.Context, in account.NewAccount) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.st.accounts {
		if a.Email == in.Email {
			return nil, account.ErrEmailTaken
		}
	}

	acc := account.Account{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		Name:         in.Name,
		CreatedAt:    m.now(),
	}
	m.st.accounts[acc.ID] = acc

	switch in.Role {
	case auth.RolePatient:
		p := clinic.Patient{
			ID:                  uuid.New(),
			AccountID:           &acc.ID,
			Name:                in.Name,
			Age:                 in.Profile.Age,
			Gender:              in.Profile.Gender,
			ContactInfo:         in.Profile.ContactInfo,
			DietaryRestrictions: in.Profile.DietaryRestrictions,
			Allergies:           in.Profile.Allergies,
			CreatedAt:           acc.CreatedAt,
		}
		m.st.patients[p.ID] = p
	case auth.RoleDoctor:
		d := clinic.Doctor{
			ID:             uuid.New(),
			AccountID:      acc.ID,
			Name:           in.Name,
			Specialization: in.Profile.Specialization,
			ContactInfo:    in.Profile.ContactInfo,
			CreatedAt:      acc.CreatedAt,
		}
		m.st.doctors[d.ID] = d
	}

	return &acc, nil
}

func (m *MemStore) GetAccountByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.st.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

// memTx runs with MemStore.mu held for writing.
type memTx struct {
	m *MemStore
}

func (t *memTx) LockDoctor(_ context.Context, doctorID uuid.UUID) (*clinic.Doctor, error) {
	d, ok := t.m.st.doctors[doctorID]
	if !ok {
		return nil, clinic.ErrDoctorNotFound
	}
	return &d, nil
}

func (t *memTx) GetAppointment(_ context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	a, ok := t.m.st.appointments[id]
	if !ok {
		return nil, clinic.ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) HasActiveAppointment(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	for _, a := range t.m.st.appointments {
		if a.PatientID == patientID && a.DoctorID == doctorID && !a.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) NextQueueNumber(_ context.Context, doctorID uuid.UUID) (int, error) {
	highest := 0
	for _, e := range t.m.st.entries {
		if e.DoctorID == doctorID && e.QueueNumber > highest {
			highest = e.QueueNumber
		}
	}
	return highest + 1, nil
}

func (t *memTx) FindWalkInPatient(_ context.Context, name string, age *int) (*clinic.Patient, error) {
	var best *clinic.Patient
	for _, p := range t.m.st.patients {
		if p.Name != name || !sameAge(p.Age, age) {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			p := p
			best = &p
		}
	}
	if best == nil {
		return nil, clinic.ErrPatientNotFound
	}
	return best, nil
}

func sameAge(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *memTx) CreatePatient(_ context.Context, f clinic.PatientFields) (*clinic.Patient, error) {
	p := clinic.Patient{
		ID:                  uuid.New(),
		Name:                f.Name,
		Age:                 f.Age,
		Gender:              f.Gender,
		ContactInfo:         f.ContactInfo,
		DietaryRestrictions: f.DietaryRestrictions,
		Allergies:           f.Allergies,
		CreatedAt:           t.m.now(),
	}
	t.m.st.patients[p.ID] = p
	return &p, nil
}

func (t *memTx) CreateAppointment(_ context.Context, in clinic.NewAppointment) (*clinic.Appointment, error) {
	now := t.m.now()
	a := clinic.Appointment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		AppointmentTime: in.AppointmentTime,
		Status:          clinic.StatusScheduled,
		ScheduledBy:     in.ScheduledBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.m.st.appointments[a.ID] = a
	return &a, nil
}

func (t *memTx) CreateQueueEntry(_ context.Context, appointmentID, doctorID, patientID uuid.UUID, number int) (*clinic.QueueEntry, error) {
	for _, e := range t.m.st.entries {
		if e.DoctorID == doctorID && e.QueueNumber == number {
			return nil, errDuplicateQueueNumber
		}
	}
	e := clinic.QueueEntry{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		QueueNumber:   number,
		Status:        clinic.QueueWaiting,
		EnteredAt:     t.m.now(),
	}
	t.m.st.entries[e.ID] = e
	return &e, nil
}

func (t *memTx) TransitionAppointment(_ context.Context, tr clinic.AppointmentTransition) (*clinic.Appointment, error) {
	a, ok := t.m.st.appointments[tr.ID]
	if !ok || !slices.Contains(tr.From, a.Status) {
		return nil, clinic.ErrAppointmentNotFound
	}
	if tr.PatientID != nil && a.PatientID != *tr.PatientID {
		return nil, clinic.ErrAppointmentNotFound
	}
	if tr.DoctorID != nil && a.DoctorID != *tr.DoctorID {
		return nil, clinic.ErrAppointmentNotFound
	}

	a.Status = tr.To
	if tr.DenialReason != nil {
		a.DenialReason = tr.DenialReason
	}
	a.UpdatedAt = t.m.now()
	t.m.st.appointments[a.ID] = a
	return &a, nil
}

func (t *memTx) TransitionQueueEntry(_ context.Context, appointmentID uuid.UUID, from []clinic.QueueStatus, to clinic.QueueStatus) (*clinic.QueueEntry, error) {
	e, ok := t.m.entryFor(appointmentID)
	if !ok || !slices.Contains(from, e.Status) {
		return nil, clinic.ErrQueueEntryNotFound
	}
	if to == clinic.QueueConsulting && t.m.findSlot(e.DoctorID, clinic.QueueConsulting) != nil {
		return nil, errSecondConsulting
	}

	e.Status = to
	t.m.st.entries[e.ID] = e
	return &e, nil
}

func (t *memTx) FindConsulting(_ context.Context, doctorID uuid.UUID) (*clinic.QueueSlot, error) {
	if s := t.m.findSlot(doctorID, clinic.QueueConsulting); s != nil {
		return s, nil
	}
	return nil, clinic.ErrQueueEntryNotFound
}

func (t *memTx) FindNextWaiting(_ context.Context, doctorID uuid.UUID) (*clinic.QueueSlot, error) {
	if s := t.m.findSlot(doctorID, clinic.QueueWaiting); s != nil {
		return s, nil
	}
	return nil, clinic.ErrQueueEntryNotFound
}

func (t *memTx) RecordEvent(_ context.Context, ev clinic.LifecycleEvent) error {
	if t.m.eventErr != nil {
		return fmt.Errorf("insert lifecycle event: %w", t.m.eventErr)
	}
	t.m.st.events = append(t.m.st.events, ev)
	return nil
}
