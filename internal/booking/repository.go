package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For slot generation and conflict checks: every appointment of the
	// doctor whose interval falls on the given calendar date, any status.
	GetAppointmentsForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	// Insert is the atomic claim of a slot. It returns ErrSlotTaken when the
	// storage-level uniqueness constraint on (doctor, start time) over
	// occupying statuses rejects the row.
	Insert(ctx context.Context, appt *Appointment) error

	// UpdateStatus is a compare-and-set transition; ErrAppointmentNotFound
	// means the appointment either does not exist or was no longer in the
	// `from` status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Expiry worker
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev Event) error
}
