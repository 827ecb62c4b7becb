package clinic

import "time"

const (
	MinLeadTime     = 30 * time.Minute
	MaxBookingAhead = 15 * 24 * time.Hour
	OpeningHour     = 8
	ClosingHour     = 20
	SlotMinutes     = 15
)

// Reasons carried by appointment-time validation errors.
const (
	ReasonInPast       = "in_past"
	ReasonTooSoon      = "too_soon"
	ReasonTooFar       = "too_far"
	ReasonOutsideHours = "outside_hours"
	ReasonBadInterval  = "bad_interval"
)

// ValidateAppointmentTime checks a proposed time against the booking window
// and business hours in loc. The first failing rule wins.
func ValidateAppointmentTime(at, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	if at.Before(now) {
		return invalid("appointmentTime", ReasonInPast, "Appointment time cannot be in the past.")
	}
	if at.Before(now.Add(MinLeadTime)) {
		return invalid("appointmentTime", ReasonTooSoon, "Appointment must be at least 30 minutes from now.")
	}
	if at.After(now.Add(MaxBookingAhead)) {
		return invalid("appointmentTime", ReasonTooFar, "Appointment cannot be more than 15 days in the future.")
	}

	local := at.In(loc)
	if h := local.Hour(); h < OpeningHour || h >= ClosingHour {
		return invalid("appointmentTime", ReasonOutsideHours, "Appointment must be between 8:00 AM and 8:00 PM.")
	}
	if local.Minute()%SlotMinutes != 0 {
		return invalid("appointmentTime", ReasonBadInterval, "Appointment time must be in 15-minute intervals (e.g., XX:00, XX:15, XX:30, XX:45).")
	}

	return nil
}
