package booking

import "time"

// SlotAvailable reports whether the half-open interval [start, end) overlaps
// no appointment that still occupies its slot. Cancelled and rejected
// appointments release their slot and are ignored. Boundary touching is not
// a conflict: an interval ending exactly when another starts is fine.
func SlotAvailable(existing []Appointment, start, end time.Time) bool {
	for _, a := range existing {
		if a.Status.Released() {
			continue
		}
		if start.Before(a.EndTime) && a.StartTime.Before(end) {
			return false
		}
	}
	return true
}
