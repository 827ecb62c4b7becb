package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/account"
	"github.com/hackgods/clinic-queue/internal/auth"
	"github.com/hackgods/clinic-queue/internal/clinic"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// callerID returns the account id placed on the context by auth.Authenticate.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", auth.ErrMissingToken.Error())
		return uuid.Nil, false
	}
	id, err := claims.AccountID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", auth.ErrInvalidToken.Error())
		return uuid.Nil, false
	}
	return id, true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDoctorID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "required", "Doctor and appointment time are required.")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toUser(a *account.Account) UserResponse {
	return UserResponse{ID: a.ID, Email: a.Email, Role: string(a.Role), Name: a.Name}
}

func registerInput(req RegisterRequest) account.RegisterInput {
	return account.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
		Profile: account.Profile{
			Specialization:      req.Specialization,
			Age:                 req.Age,
			Gender:              req.Gender,
			ContactInfo:         req.ContactInfo,
			DietaryRestrictions: req.DietaryRestrictions,
			Allergies:           req.Allergies,
		},
	}
}

// Accounts

func registerHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeBody(w, r, &req) {
			return
		}

		caller, _ := auth.ClaimsFromContext(r.Context())
		acc, err := svc.Register(r.Context(), registerInput(req), caller)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, RegisterResponse{
			Message: "User registered successfully!",
			User:    toUser(acc),
		})
	}
}

func loginHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		session, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Message:   "Logged in successfully!",
			Token:     session.Token,
			ExpiresAt: session.ExpiresAt,
			User:      toUser(&session.Account),
		})
	}
}

func addDoctorHandler(svc *account.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeBody(w, r, &req) {
			return
		}

		acc, err := svc.AddDoctor(r.Context(), registerInput(req))
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, RegisterResponse{
			Message: "Doctor added successfully!",
			User:    toUser(acc),
		})
	}
}

// Public

func listDoctorsHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{ID: d.ID, Name: d.Name, Specialization: d.Specialization})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Patient

func bookAppointmentHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		doctorID, ok := parseDoctorID(w, req.DoctorID)
		if !ok {
			return
		}
		if req.AppointmentTime.IsZero() {
			writeError(w, http.StatusBadRequest, "required", "Doctor and appointment time are required.")
			return
		}

		booking, err := svc.BookAppointment(r.Context(), accountID, doctorID, req.AppointmentTime)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse("Appointment booked successfully!", booking))
	}
}

func cancelAppointmentHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}
		appointmentID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.CancelAppointment(r.Context(), appointmentID, accountID); err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Appointment cancelled successfully."})
	}
}

func myTurnHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		turn, err := svc.GetMyTurn(r.Context(), accountID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, TurnResponse{
			QueueNumber:          turn.QueueNumber,
			Status:               string(turn.Status),
			DoctorName:           turn.DoctorName,
			DoctorSpecialization: turn.DoctorSpecialization,
			AppointmentID:        turn.AppointmentID,
			PatientsAhead:        turn.PatientsAhead,
			EstimatedWaitMinutes: turn.EstimatedWaitMinutes,
			Message:              turn.Message,
		})
	}
}

func myAppointmentsHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		items, err := svc.GetMyAppointments(r.Context(), accountID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]AppointmentSummaryResponse, 0, len(items))
		for _, a := range items {
			resp = append(resp, AppointmentSummaryResponse{
				AppointmentID:        a.AppointmentID,
				AppointmentTime:      a.AppointmentTime,
				Status:               string(a.Status),
				ScheduledBy:          string(a.ScheduledBy),
				DenialReason:         a.DenialReason,
				DoctorName:           a.DoctorName,
				DoctorSpecialization: a.DoctorSpecialization,
				QueueNumber:          a.QueueNumber,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Doctor

func doctorQueueHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		items, err := svc.GetDoctorQueue(r.Context(), accountID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toQueueItems(items))
	}
}

func denyServiceHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}
		appointmentID, ok := parseIDParam(w, r, "appointmentID")
		if !ok {
			return
		}

		var req DenyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := svc.DenyService(r.Context(), appointmentID, accountID, req.Reason); err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Message: "Patient service denied successfully."})
	}
}

func currentPatientHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		p, err := svc.GetCurrentPatient(r.Context(), accountID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CurrentPatientResponse{
			PatientID:           p.ID,
			Name:                p.Name,
			Age:                 p.Age,
			Gender:              p.Gender,
			ContactInfo:         p.ContactInfo,
			DietaryRestrictions: p.DietaryRestrictions,
			Allergies:           p.Allergies,
			QueueNumber:         p.QueueNumber,
			AppointmentID:       p.AppointmentID,
		})
	}
}

func completeAndAdvanceHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := callerID(w, r)
		if !ok {
			return
		}

		result, err := svc.CompleteAndAdvance(r.Context(), accountID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := AdvanceResponse{Message: result.Message, Outcome: string(result.Outcome)}
		if result.Completed != nil {
			resp.CompletedPatient = &result.Completed.PatientName
		}
		if result.Next != nil {
			resp.NextPatient = &result.Next.PatientName
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Staff

func walkInHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WalkInRequest
		if !decodeBody(w, r, &req) {
			return
		}
		doctorID, ok := parseDoctorID(w, req.DoctorID)
		if !ok {
			return
		}
		if req.AppointmentTime.IsZero() {
			writeError(w, http.StatusBadRequest, "required", "Patient name, doctor, and appointment time are required.")
			return
		}

		booking, err := svc.ScheduleWalkIn(r.Context(), clinic.WalkInRequest{
			Patient: clinic.PatientFields{
				Name:                req.PatientName,
				Age:                 req.PatientAge,
				Gender:              req.PatientGender,
				ContactInfo:         req.ContactInfo,
				DietaryRestrictions: req.DietaryRestrictions,
				Allergies:           req.Allergies,
			},
			DoctorID:        doctorID,
			AppointmentTime: req.AppointmentTime,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse("Appointment scheduled successfully for walk-in patient!", booking))
	}
}

func nextInQueueHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.NextInQueue(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toQueueItems(items))
	}
}

// Admin

func queueMonitorHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.AdminQueueMonitor(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toQueueItems(items))
	}
}

func patientCountHandler(svc *clinic.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.PatientCount(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
