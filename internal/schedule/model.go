package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a clock time expressed as minutes since midnight. Weekly
// windows use it so the recurring schedule stays independent of any
// particular calendar date.
type TimeOfDay int

// ParseTimeOfDay parses a "15:04" formatted clock time.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// TimeOfDayOf extracts the clock time from t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns the time of day shifted forward by the given minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// At anchors the time of day onto a calendar date, in the date's location.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, date.Location())
}

// WeeklyWindow is one availability range a doctor declares for a weekday.
// Windows for the same doctor and weekday may be non-contiguous but must not
// overlap; that is enforced when the schedule is edited, not by readers.
type WeeklyWindow struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Weekday     time.Weekday
	Start       TimeOfDay
	End         TimeOfDay
	SlotMinutes int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid reports whether the window can produce slots at all.
func (w WeeklyWindow) Valid() bool {
	return w.Start < w.End && w.SlotMinutes > 0
}
