package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-booking/internal/booking"
	"github.com/medisched/hospital-booking/internal/schedule"
)

// BookingService is the slice of the booking service the handlers consume.
type BookingService interface {
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.CandidateSlot, error)
	Book(ctx context.Context, req booking.BookRequest) (*booking.Appointment, error)
	Confirm(ctx context.Context, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error)
	Reject(ctx context.Context, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error)
	Cancel(ctx context.Context, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, actor booking.Actor, id uuid.UUID) (*booking.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
}

// ScheduleService is the slice of the schedule service the handlers consume.
type ScheduleService interface {
	WeeklySchedule(ctx context.Context, doctorID uuid.UUID) ([]schedule.WeeklyWindow, error)
	ReplaceWeeklySchedule(ctx context.Context, doctorID uuid.UUID, windows []schedule.WeeklyWindow) error
}

type RouterConfig struct {
	Booking  BookingService
	Schedule ScheduleService
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability and schedule endpoints
	r.Get("/doctors/{id}/slots", getSlotsHandler(cfg.Booking))
	r.Get("/doctors/{id}/schedule", getScheduleHandler(cfg.Schedule))
	r.Put("/doctors/{id}/schedule", replaceScheduleHandler(cfg.Schedule))

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Booking))
	r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Booking.Confirm))
	r.Post("/appointments/{id}/reject", transitionHandler(cfg.Booking.Reject))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Booking.Cancel))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Booking.Complete))

	return r
}
