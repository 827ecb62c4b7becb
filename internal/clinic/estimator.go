package clinic

import "fmt"

// AverageConsultationMinutes is the per-patient estimate used for wait times.
const AverageConsultationMinutes = 15

// Turn is a patient's place in a doctor's queue.
type Turn struct {
	QueueNumber          int
	Status               QueueStatus
	DoctorName           string
	DoctorSpecialization string
	AppointmentID        string
	PatientsAhead        int
	EstimatedWaitMinutes int
	Message              string
}

// EstimateTurn derives the turn view. patientsAhead counts only waiting
// entries with a smaller queue number; the patient being consulted is not
// ahead of anyone.
func EstimateTurn(entry ActiveEntry, patientsAhead int) Turn {
	wait := patientsAhead * AverageConsultationMinutes
	return Turn{
		QueueNumber:          entry.QueueNumber,
		Status:               entry.Status,
		DoctorName:           entry.DoctorName,
		DoctorSpecialization: entry.DoctorSpecialization,
		AppointmentID:        entry.AppointmentID.String(),
		PatientsAhead:        patientsAhead,
		EstimatedWaitMinutes: wait,
		Message: fmt.Sprintf("You are currently number %d for Dr. %s. Estimated wait time: %d minutes.",
			entry.QueueNumber, entry.DoctorName, wait),
	}
}
