package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed to read and edit
// weekly availability windows.
type Repository interface {
	// GetWindowsForDoctorAndDay returns the doctor's windows for one weekday,
	// ordered by start time. An empty result is a valid "doctor is off" day.
	GetWindowsForDoctorAndDay(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WeeklyWindow, error)

	// GetWindowsForDoctor returns the doctor's full weekly schedule ordered
	// by (weekday, start time).
	GetWindowsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]WeeklyWindow, error)

	// ReplaceWindowsForDoctor swaps the doctor's whole weekly schedule for
	// the given set in one transaction.
	ReplaceWindowsForDoctor(ctx context.Context, doctorID uuid.UUID, windows []WeeklyWindow) error
}
