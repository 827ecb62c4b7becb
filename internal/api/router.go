package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
	"github.com/hackgods/clinic-queue/internal/metrics"
	"github.com/hackgods/clinic-queue/internal/notify"
)

type RouterConfig struct {
	Clinic   *clinic.Service
	Accounts *account.Service
	Issuer   *auth.Issuer
	Policy   auth.Policy
	Hub      *notify.Hub
	Metrics  *metrics.Collector
	Postgres Pinger
	Redis    Pinger
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Policy == nil {
		cfg.Policy = auth.DefaultPolicy()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.With(auth.OptionalAuthenticate(cfg.Issuer)).Post("/register", registerHandler(cfg.Accounts))
		r.Post("/login", loginHandler(cfg.Accounts))
		r.Get("/public/doctors", listDoctorsHandler(cfg.Clinic))

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(cfg.Issuer))

			guard := func(op auth.Operation) func(http.Handler) http.Handler {
				return auth.Require(cfg.Policy, op)
			}

			r.Route("/patient", func(r chi.Router) {
				r.With(guard(auth.OpGetMyTurn)).Get("/my-turn", myTurnHandler(cfg.Clinic))
				r.With(guard(auth.OpBookAppointment)).Post("/appointments", bookAppointmentHandler(cfg.Clinic))
				r.With(guard(auth.OpCancelAppointment)).Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Clinic))
				r.With(guard(auth.OpGetMyAppointments)).Get("/my-appointments", myAppointmentsHandler(cfg.Clinic))
			})

			r.Route("/doctor", func(r chi.Router) {
				r.With(guard(auth.OpGetDoctorQueue)).Get("/my-queue", doctorQueueHandler(cfg.Clinic))
				r.With(guard(auth.OpDenyService)).Put("/queue/{appointmentID}/deny", denyServiceHandler(cfg.Clinic))
				r.With(guard(auth.OpGetCurrentPatient)).Get("/current-patient", currentPatientHandler(cfg.Clinic))
				r.With(guard(auth.OpCompleteAndAdvance)).Put("/complete-current-patient", completeAndAdvanceHandler(cfg.Clinic))
			})

			r.Route("/staff", func(r chi.Router) {
				r.With(guard(auth.OpScheduleWalkIn)).Post("/appointments", walkInHandler(cfg.Clinic))
				r.With(guard(auth.OpGetNext3InQueue)).Get("/queue/next3", nextInQueueHandler(cfg.Clinic))
			})

			r.Route("/admin", func(r chi.Router) {
				r.With(guard(auth.OpAddDoctor)).Post("/doctors", addDoctorHandler(cfg.Accounts))
				r.With(guard(auth.OpGetAdminQueueMonitor)).Get("/queue", queueMonitorHandler(cfg.Clinic))
				r.With(guard(auth.OpGetPatientCount)).Get("/patients/count", patientCountHandler(cfg.Clinic))
			})

			if cfg.Hub != nil {
				ws := notify.NewWebSocketHandler(cfg.Hub, claimsAccount, cfg.Logger)
				r.With(guard(auth.OpSubscribeNotifications)).Get("/notifications/ws", ws.ServeHTTP)
			}
		})
	})

	return r
}

// claimsAccount resolves the websocket subscriber from the verified
// credential, never from a client-supplied id.
func claimsAccount(r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := claims.AccountID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
