package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
	"github.com/hackgods/clinic-queue/internal/clinic/clinictest"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/metrics"
	"github.com/hackgods/clinic-queue/internal/notify"
)

var (
	fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	slotTime = time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
)

type testEnv struct {
	router  http.Handler
	issuer  *auth.Issuer
	store   *clinictest.MemStore
	hub     *notify.Hub
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := clinictest.NewMemStore()
	hub := notify.NewHub()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	collector := metrics.NewCollector()

	accounts := account.NewService(store, issuer, zerolog.Nop(), account.WithBcryptCost(bcrypt.MinCost))
	svc := clinic.NewService(store, &clinictest.Locker{}, hub,
		config.Config{ClinicLocation: time.UTC},
		zerolog.Nop(),
		clinic.WithClock(func() time.Time { return fixedNow }),
		clinic.WithMetrics(collector),
	)

	return &testEnv{
		router: NewRouter(RouterConfig{
			Clinic:   svc,
			Accounts: accounts,
			Issuer:   issuer,
			Hub:      hub,
			Metrics:  collector,
			Postgres: PingFunc(func(context.Context) error { return nil }),
			Redis:    PingFunc(func(context.Context) error { return nil }),
			Logger:   zerolog.Nop(),
			Env:      "test",
		}),
		issuer:  issuer,
		store:   store,
		hub:     hub,
		metrics: collector,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// bootstrapAdmin signs a credential for an admin that exists only in the token,
// the way the seeded admin is used to create the first staff accounts.
func (e *testEnv) bootstrapAdmin(t *testing.T) string {
	t.Helper()
	token, _, err := e.issuer.Issue(auth.Identity{
		AccountID: uuid.New(),
		Email:     "root@clinic.test",
		Name:      "Root",
		Role:      auth.RoleAdmin,
	})
	require.NoError(t, err)
	return token
}

// signup registers an account with the given role and returns its token.
// Non-patient roles are registered by a bootstrap admin.
func (e *testEnv) signup(t *testing.T, role string, extra map[string]any) (string, UserResponse) {
	t.Helper()

	email := gofakeit.Email()
	body := map[string]any{
		"email":    email,
		"password": "s3cret-pass",
		"name":     gofakeit.Name(),
		"role":     role,
	}
	for k, v := range extra {
		body[k] = v
	}

	registrar := ""
	if role != "patient" {
		registrar = e.bootstrapAdmin(t)
	}

	rec := e.do(t, http.MethodPost, "/api/register", registrar, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: email, Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[LoginResponse](t, rec)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User
}

func (e *testEnv) doctorID(t *testing.T, name string) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/public/doctors", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, d := range decode[[]DoctorResponse](t, rec) {
		if d.Name == name {
			return d.ID.String()
		}
	}
	t.Fatalf("doctor %q not listed", name)
	return ""
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	body := RegisterRequest{Email: "pat@example.com", Password: "s3cret-pass", Name: "Pat"}
	rec := env.do(t, http.MethodPost, "/api/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "patient", decode[RegisterResponse](t, rec).User.Role)

	rec = env.do(t, http.MethodPost, "/api/register", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_taken", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "pat@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_credentials", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "PAT@example.com", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pat", decode[LoginResponse](t, rec).User.Name)
}

func TestRegister_DoctorNeedsSpecialization(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/register", env.bootstrapAdmin(t), RegisterRequest{
		Email: "doc@example.com", Password: "s3cret-pass", Name: "Doc", Role: "doctor",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_specialization", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{
		Email: "x@example.com", Password: "s3cret-pass", Name: "X", Role: "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_OnlyAdminsCreateNonPatientAccounts(t *testing.T) {
	env := newTestEnv(t)
	patientToken, _ := env.signup(t, "patient", nil)

	for _, role := range []string{"admin", "staff", "doctor"} {
		req := RegisterRequest{
			Email: role + "@example.com", Password: "s3cret-pass", Name: "Mallory", Role: role, Specialization: "Surgery",
		}

		rec := env.do(t, http.MethodPost, "/api/register", "", req)
		assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous %s", role)
		assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error)

		rec = env.do(t, http.MethodPost, "/api/register", patientToken, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, "patient creating %s", role)

		rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: req.Email, Password: "s3cret-pass"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/register", "not-a-token", RegisterRequest{
		Email: "p@example.com", Password: "s3cret-pass", Name: "P",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/register", env.bootstrapAdmin(t), RegisterRequest{
		Email: "desk@example.com", Password: "s3cret-pass", Name: "Desk", Role: "staff",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "staff", decode[RegisterResponse](t, rec).User.Role)
}

func TestProtectedRoutesRejectMissingOrWrongRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/patient/my-turn", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/patient/my-turn", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	staffToken, _ := env.signup(t, "staff", nil)
	rec = env.do(t, http.MethodPut, "/api/doctor/complete-current-patient", staffToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	patientToken, _ := env.signup(t, "patient", nil)
	rec = env.do(t, http.MethodGet, "/api/admin/patients/count", patientToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClinicFlow(t *testing.T) {
	env := newTestEnv(t)

	adminToken, _ := env.signup(t, "admin", nil)
	staffToken, _ := env.signup(t, "staff", nil)

	rec := env.do(t, http.MethodPost, "/api/admin/doctors", adminToken, RegisterRequest{
		Email: "house@clinic.test", Password: "s3cret-pass", Name: "House", Specialization: "Diagnostics",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "doctor", decode[RegisterResponse](t, rec).User.Role)

	rec = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "house@clinic.test", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	doctorToken := decode[LoginResponse](t, rec).Token
	doctorID := env.doctorID(t, "House")

	alice, aliceUser := env.signup(t, "patient", map[string]any{"age": 30})
	bob, _ := env.signup(t, "patient", nil)

	// Booking
	rec = env.do(t, http.MethodPost, "/api/patient/appointments", alice, BookAppointmentRequest{DoctorID: doctorID, AppointmentTime: slotTime})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booked := decode[BookingResponse](t, rec)
	assert.Equal(t, 1, booked.QueueNumber)
	assert.Equal(t, "scheduled", booked.Status)

	rec = env.do(t, http.MethodPost, "/api/patient/appointments", alice, BookAppointmentRequest{DoctorID: doctorID, AppointmentTime: slotTime})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/patient/appointments", bob, BookAppointmentRequest{DoctorID: doctorID, AppointmentTime: fixedNow.Add(10 * time.Minute)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, clinic.ReasonTooSoon, decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/patient/appointments", bob, BookAppointmentRequest{DoctorID: doctorID, AppointmentTime: slotTime})
	require.Equal(t, http.StatusCreated, rec.Code)
	bobBooking := decode[BookingResponse](t, rec)
	assert.Equal(t, 2, bobBooking.QueueNumber)

	// Walk-in
	rec = env.do(t, http.MethodPost, "/api/staff/appointments", staffToken, WalkInRequest{
		PatientName: "Walter Walkin", DoctorID: doctorID, AppointmentTime: slotTime,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[BookingResponse](t, rec).QueueNumber)

	rec = env.do(t, http.MethodGet, "/api/staff/queue/next3", staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]QueueItemResponse](t, rec), 3)

	// Turn
	rec = env.do(t, http.MethodGet, "/api/patient/my-turn", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	turn := decode[TurnResponse](t, rec)
	assert.Equal(t, 1, turn.PatientsAhead)
	assert.Equal(t, 15, turn.EstimatedWaitMinutes)

	// Subscribe Alice before the doctor calls her.
	sub := env.hub.Subscribe(aliceUser.ID)
	defer sub.Close()

	rec = env.do(t, http.MethodGet, "/api/doctor/current-patient", doctorToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/doctor/complete-current-patient", doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adv := decode[AdvanceResponse](t, rec)
	assert.Equal(t, string(clinic.OutcomeCalledNext), adv.Outcome)
	require.NotNil(t, adv.NextPatient)

	select {
	case ev := <-sub.C:
		assert.Equal(t, notify.EventConsulting, ev.Type)
		assert.Equal(t, booked.AppointmentID, ev.AppointmentID)
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}

	rec = env.do(t, http.MethodGet, "/api/doctor/current-patient", doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[CurrentPatientResponse](t, rec)
	assert.Equal(t, 1, current.QueueNumber)
	require.NotNil(t, current.Age)
	assert.Equal(t, 30, *current.Age)

	// Bob cancels, Alice cannot cancel while consulting.
	rec = env.do(t, http.MethodDelete, "/api/patient/appointments/"+bobBooking.AppointmentID.String(), bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/patient/appointments/"+booked.AppointmentID.String(), alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/doctor/my-queue", doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[[]QueueItemResponse](t, rec)
	require.Len(t, queue, 2)
	assert.Equal(t, "consulting", queue[0].Status)
	assert.Equal(t, "Walter Walkin", queue[1].PatientName)

	// Deny needs a reason.
	rec = env.do(t, http.MethodPut, "/api/doctor/queue/"+queue[1].AppointmentID.String()+"/deny", doctorToken, DenyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/doctor/queue/"+queue[1].AppointmentID.String()+"/deny", doctorToken, DenyRequest{Reason: "Wrong clinic"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/doctor/complete-current-patient", doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adv = decode[AdvanceResponse](t, rec)
	assert.Equal(t, string(clinic.OutcomeCompletedQueueEmpty), adv.Outcome)
	assert.Nil(t, adv.NextPatient)

	rec = env.do(t, http.MethodGet, "/api/patient/my-appointments", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]AppointmentSummaryResponse](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].Status)

	rec = env.do(t, http.MethodGet, "/api/patient/my-turn", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/queue", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]QueueItemResponse](t, rec))

	rec = env.do(t, http.MethodGet, "/api/admin/patients/count", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[CountResponse](t, rec).Count)
}

func TestBadRequestBodies(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "patient", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/patient/appointments", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/patient/appointments", token, map[string]any{"doctor_id": "nope", "appointment_time": slotTime})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_doctor_id", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodDelete, "/api/patient/appointments/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}

func TestReadiness_DegradedAndDown(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	up := PingFunc(func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	NewHealthHandler(up, down, "test", "").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(down, up, "test", "").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode[ReadinessResponse](t, rec).Dependencies["postgres"])
}
