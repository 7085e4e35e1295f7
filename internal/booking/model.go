package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/medisched/hospital-booking/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Released reports whether the appointment no longer occupies its slot.
func (s Status) Released() bool {
	return s == StatusCancelled || s == StatusRejected
}

// Terminal reports whether the appointment admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s.Released()
}

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusRejected:  true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CanTransitionTo reports whether the status machine allows moving to the
// given status.
func (s Status) CanTransitionTo(to Status) bool {
	return transitions[s][to]
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller, threaded explicitly through the service
// instead of being read from request-global state.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Reason    string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CandidateSlot is an ephemeral bookable interval computed per request,
// never persisted.
type CandidateSlot struct {
	Start schedule.TimeOfDay
	End   schedule.TimeOfDay
}

type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
