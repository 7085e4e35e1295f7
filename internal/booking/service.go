package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medisched/hospital-booking/internal/clock"
	redisclient "github.com/medisched/hospital-booking/internal/redis"
	"github.com/medisched/hospital-booking/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotTaken         = errors.New("slot no longer available")
	ErrSlotNotBookable   = errors.New("requested interval is not a bookable slot")
	ErrBookingContended  = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor may not perform this action")
)

type Service struct {
	repo       Repository
	windows    schedule.Repository
	locker     redisclient.Locker
	clock      clock.Clock
	log        zerolog.Logger
	pendingTTL time.Duration
}

func NewService(repo Repository, windows schedule.Repository, locker redisclient.Locker, clk clock.Clock, logger zerolog.Logger, pendingTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		windows:    windows,
		locker:     locker,
		clock:      clk,
		log:        logger,
		pendingTTL: pendingTTL,
	}
}

// AvailableSlots enumerates the doctor's free slots on the given date. The
// weekly windows and the day's appointments are independent read-only
// fetches, so they run concurrently.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]CandidateSlot, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var (
		windows []schedule.WeeklyWindow
		appts   []Appointment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		windows, err = s.windows.GetWindowsForDoctorAndDay(gctx, doctorID, date.Weekday())
		if err != nil {
			return fmt.Errorf("load windows: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		appts, err = s.repo.GetAppointmentsForDoctorOnDate(gctx, doctorID, date)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	booked := make(map[schedule.TimeOfDay]struct{}, len(appts))
	for _, a := range appts {
		if a.Status.Released() {
			continue
		}
		booked[schedule.TimeOfDayOf(a.StartTime.In(date.Location()))] = struct{}{}
	}

	return GenerateSlots(windows, booked, s.clock.Now(), date), nil
}

type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

// Book claims a slot for a patient. The candidate's validity is re-derived at
// write time: under a per (doctor, start) lock the conflict check re-runs
// against the latest committed appointments, and the insert itself carries a
// storage-level uniqueness guard, so of two concurrent bookings for the same
// slot exactly one wins and the other gets ErrSlotTaken.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if err := s.checkBookable(ctx, req); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithBookingLock(ctx, req.DoctorID, req.StartTime, func(lockCtx context.Context) error {
		// Inside the critical section re-check against the latest committed
		// appointment set for this doctor and date.
		existing, err := s.repo.GetAppointmentsForDoctorOnDate(lockCtx, req.DoctorID, req.StartTime)
		if err != nil {
			return fmt.Errorf("load appointments for conflict check: %w", err)
		}
		if !SlotAvailable(existing, req.StartTime, req.EndTime) {
			return ErrSlotTaken
		}

		now := s.clock.Now()
		appt := &Appointment{
			ID:        uuid.New(),
			DoctorID:  req.DoctorID,
			PatientID: req.PatientID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Status:    StatusPending,
			Reason:    req.Reason,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(lockCtx, appt); err != nil {
			// The unique index on (doctor, start) over occupying statuses is
			// the last line of defense; its violation is the same race
			// outcome as a failed re-check.
			return err
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  req.DoctorID.String(),
			"patient_id": req.PatientID.String(),
			"start_time": req.StartTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Time("start_time", req.StartTime).
		Msg("appointment booked")

	return created, nil
}

// checkBookable verifies the requested interval is a slot the schedule could
// have offered: aligned to a window's tiling, fully inside it, and not in
// the past.
func (s *Service) checkBookable(ctx context.Context, req BookRequest) error {
	if !req.StartTime.Before(req.EndTime) {
		return fmt.Errorf("%w: start must be before end", ErrSlotNotBookable)
	}
	// Truncate to the minute so the check agrees with the slot generator,
	// which works at minute granularity: at 14:00:45 the 14:00 slot is
	// still offered and must still be bookable.
	if req.StartTime.Before(s.clock.Now().Truncate(time.Minute)) {
		return fmt.Errorf("%w: slot is in the past", ErrSlotNotBookable)
	}

	windows, err := s.windows.GetWindowsForDoctorAndDay(ctx, req.DoctorID, req.StartTime.Weekday())
	if err != nil {
		return fmt.Errorf("load windows: %w", err)
	}

	start := schedule.TimeOfDayOf(req.StartTime)
	end := schedule.TimeOfDayOf(req.EndTime)
	for _, w := range windows {
		if !w.Valid() {
			continue
		}
		if start < w.Start || end > w.End {
			continue
		}
		if int(start-w.Start)%w.SlotMinutes != 0 {
			continue
		}
		if end != start.Add(w.SlotMinutes) {
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: interval %s-%s does not match the doctor's schedule", ErrSlotNotBookable, start, end)
}

// Confirm moves a pending appointment to confirmed. Doctor-side action.
func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusConfirmed, EventAppointmentConfirmed)
}

// Reject moves a pending appointment to rejected. Doctor-side action.
func (s *Service) Reject(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusRejected, EventAppointmentRejected)
}

// Cancel releases a pending or confirmed appointment's slot. Allowed to the
// booking patient, the assigned doctor, or an admin.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCancelled, EventAppointmentCancelled)
}

// Complete marks a confirmed appointment as completed. Doctor-side action.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(actor, appt, to) {
		return nil, ErrForbidden
	}
	if !appt.Status.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a transition race: the appointment moved out of the
			// expected status between read and update.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	})

	return updated, nil
}

// CanTransition is the pure capability check for a status transition:
// confirm, reject and complete belong to the assigned doctor, cancel also to
// the booking patient, and admins may do anything.
func CanTransition(actor Actor, appt *Appointment, to Status) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	switch to {
	case StatusConfirmed, StatusRejected, StatusCompleted:
		return actor.Role == RoleDoctor && actor.ID == appt.DoctorID
	case StatusCancelled:
		if actor.Role == RoleDoctor && actor.ID == appt.DoctorID {
			return true
		}
		return actor.Role == RolePatient && actor.ID == appt.PatientID
	default:
		return false
	}
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// RejectStalePending is intended to be called by the worker periodically: a
// pending appointment the doctor never acted on within the pending TTL is
// auto-rejected so its slot opens up again.
func (s *Service) RejectStalePending(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.pendingTTL)
	stale, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale pending appointments: %w", err)
	}

	for _, appt := range stale {
		_, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusRejected)
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race: the appointment left pending (e.g. the doctor
			// confirmed it) between the scan and the update. Nothing to log.
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to reject stale appointment")
			continue
		}
		s.logEvent(ctx, appt.ID, EventAppointmentRejected, map[string]any{
			"reason": "pending_ttl_worker",
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := Event{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
