package booking

import (
	"sort"
	"time"

	"github.com/medisched/hospital-booking/internal/schedule"
)

// GenerateSlots expands a doctor's weekly windows into the free slots for
// targetDate. Windows not matching targetDate's weekday are ignored, as are
// malformed windows (start >= end or non-positive duration) rather than
// failing the whole request.
//
// Each window is tiled closed-open from its start in slot-duration steps; a
// candidate is kept only while start + duration <= window end, so the final
// slot must fit entirely and partial slots never appear. Candidates whose
// start time is already booked are skipped, and when targetDate is the same
// calendar day as now, candidates starting strictly before now's clock time
// are skipped too. A candidate starting exactly at now is still offered.
//
// The result is sorted ascending by start time. An empty result means the
// doctor is unavailable that day, which is a valid outcome, not an error.
func GenerateSlots(windows []schedule.WeeklyWindow, booked map[schedule.TimeOfDay]struct{}, now time.Time, targetDate time.Time) []CandidateSlot {
	weekday := targetDate.Weekday()
	today := sameCalendarDay(now, targetDate)
	nowClock := schedule.TimeOfDayOf(now.In(targetDate.Location()))

	var slots []CandidateSlot
	for _, w := range windows {
		if w.Weekday != weekday || !w.Valid() {
			continue
		}
		for start := w.Start; start.Add(w.SlotMinutes) <= w.End; start = start.Add(w.SlotMinutes) {
			if _, taken := booked[start]; taken {
				continue
			}
			if today && start < nowClock {
				continue
			}
			slots = append(slots, CandidateSlot{
				Start: start,
				End:   start.Add(w.SlotMinutes),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })

	return slots
}

func sameCalendarDay(now, targetDate time.Time) bool {
	y1, m1, d1 := now.In(targetDate.Location()).Date()
	y2, m2, d2 := targetDate.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
