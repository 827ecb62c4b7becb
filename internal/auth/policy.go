package auth

import (
	"errors"
	"fmt"
)

var ErrForbidden = errors.New("role not permitted for this operation")

// Operation names every protected entry point of the service.
type Operation string

const (
	OpBookAppointment        Operation = "bookAppointment"
	OpCancelAppointment      Operation = "cancelAppointment"
	OpGetMyTurn              Operation = "getMyTurn"
	OpGetMyAppointments      Operation = "getMyAppointments"
	OpDenyService            Operation = "denyService"
	OpCompleteAndAdvance     Operation = "completeAndAdvance"
	OpGetDoctorQueue         Operation = "getDoctorQueue"
	OpGetCurrentPatient      Operation = "getCurrentPatient"
	OpScheduleWalkIn         Operation = "scheduleWalkIn"
	OpGetNext3InQueue        Operation = "getNext3InQueue"
	OpGetAdminQueueMonitor   Operation = "getAdminQueueMonitor"
	OpGetPatientCount        Operation = "getPatientCount"
	OpAddDoctor              Operation = "addDoctor"
	OpRegisterStaffAccount   Operation = "registerStaffAccount"
	OpSubscribeNotifications Operation = "subscribeNotifications"
)

// Policy maps operations to the roles allowed to call them.
type Policy map[Operation]RoleSet

// DefaultPolicy is the clinic's permission table.
func DefaultPolicy() Policy {
	return Policy{
		OpBookAppointment:        Roles(RolePatient),
		OpCancelAppointment:      Roles(RolePatient),
		OpGetMyTurn:              Roles(RolePatient),
		OpGetMyAppointments:      Roles(RolePatient),
		OpDenyService:            Roles(RoleDoctor),
		OpCompleteAndAdvance:     Roles(RoleDoctor),
		OpGetDoctorQueue:         Roles(RoleDoctor),
		OpGetCurrentPatient:      Roles(RoleDoctor),
		OpScheduleWalkIn:         Roles(RoleStaff),
		OpGetNext3InQueue:        Roles(RoleStaff),
		OpGetAdminQueueMonitor:   Roles(RoleAdmin),
		OpGetPatientCount:        Roles(RoleAdmin),
		OpAddDoctor:              Roles(RoleAdmin),
		OpRegisterStaffAccount:   Roles(RoleAdmin),
		OpSubscribeNotifications: AnyRole(),
	}
}

// Authorize is the single check shared by all operations. Unknown operations
// are denied.
func (p Policy) Authorize(op Operation, claims *Claims) error {
	if claims == nil {
		return ErrMissingToken
	}
	allowed, ok := p[op]
	if !ok || !allowed.Contains(claims.Role) {
		return fmt.Errorf("%w: %s cannot %s", ErrForbidden, claims.Role, op)
	}
	return nil
}
