package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidWindow      = errors.New("window start must be before end and slot duration positive")
	ErrOverlappingWindows = errors.New("windows for the same weekday overlap")
)

// Service validates and persists weekly schedules. Malformed windows are
// rejected here, at ingestion, so slot generation can assume valid input.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  logger,
	}
}

// WeeklySchedule returns the doctor's full weekly schedule.
func (s *Service) WeeklySchedule(ctx context.Context, doctorID uuid.UUID) ([]WeeklyWindow, error) {
	windows, err := s.repo.GetWindowsForDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	return windows, nil
}

// ReplaceWeeklySchedule replaces the doctor's whole weekly schedule after
// validating every window and checking same-day windows against each other
// for overlap.
func (s *Service) ReplaceWeeklySchedule(ctx context.Context, doctorID uuid.UUID, windows []WeeklyWindow) error {
	if err := ValidateWindows(windows); err != nil {
		return err
	}

	now := time.Now()
	prepared := make([]WeeklyWindow, len(windows))
	for i, w := range windows {
		w.ID = uuid.New()
		w.DoctorID = doctorID
		w.CreatedAt = now
		w.UpdatedAt = now
		prepared[i] = w
	}

	if err := s.repo.ReplaceWindowsForDoctor(ctx, doctorID, prepared); err != nil {
		return fmt.Errorf("replace weekly schedule: %w", err)
	}

	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Int("windows", len(prepared)).
		Msg("weekly schedule replaced")

	return nil
}

// ValidateWindows checks each window individually and rejects overlapping
// windows on the same weekday.
func ValidateWindows(windows []WeeklyWindow) error {
	for _, w := range windows {
		if !w.Valid() {
			return fmt.Errorf("%w: %s %s-%s every %dm", ErrInvalidWindow, w.Weekday, w.Start, w.End, w.SlotMinutes)
		}
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, w.Weekday)
		}
	}

	sorted := make([]WeeklyWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Weekday != sorted[j].Weekday {
			return sorted[i].Weekday < sorted[j].Weekday
		}
		return sorted[i].Start < sorted[j].Start
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Weekday == cur.Weekday && cur.Start < prev.End {
			return fmt.Errorf("%w: %s %s-%s and %s-%s", ErrOverlappingWindows,
				cur.Weekday, prev.Start, prev.End, cur.Start, cur.End)
		}
	}

	return nil
}
