package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func apptAt(start, end time.Time, status Status) Appointment {
	return Appointment{StartTime: start, EndTime: end, Status: status}
}

func TestSlotAvailable(t *testing.T) {
	at := func(hhmm string) time.Time {
		parsed, err := time.Parse("15:04", hhmm)
		if err != nil {
			t.Fatalf("bad time %q: %v", hhmm, err)
		}
		return time.Date(2026, 9, 7, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		existing []Appointment
		start    string
		end      string
		want     bool
	}{
		{
			name:  "no appointments",
			start: "10:00", end: "10:30",
			want: true,
		},
		{
			name:     "touching boundaries do not conflict",
			existing: []Appointment{apptAt(at("10:30"), at("11:00"), StatusConfirmed)},
			start:    "10:00", end: "10:30",
			want: true,
		},
		{
			name:     "partial overlap conflicts",
			existing: []Appointment{apptAt(at("10:15"), at("10:45"), StatusConfirmed)},
			start:    "10:00", end: "10:30",
			want: false,
		},
		{
			name:     "identical interval conflicts",
			existing: []Appointment{apptAt(at("10:00"), at("10:30"), StatusPending)},
			start:    "10:00", end: "10:30",
			want: false,
		},
		{
			name:     "proposed contains existing",
			existing: []Appointment{apptAt(at("10:10"), at("10:20"), StatusConfirmed)},
			start:    "10:00", end: "10:30",
			want: false,
		},
		{
			name:     "cancelled appointment releases the slot",
			existing: []Appointment{apptAt(at("10:00"), at("10:30"), StatusCancelled)},
			start:    "10:00", end: "10:30",
			want: true,
		},
		{
			name:     "rejected appointment releases the slot",
			existing: []Appointment{apptAt(at("10:00"), at("10:30"), StatusRejected)},
			start:    "10:00", end: "10:30",
			want: true,
		},
		{
			name:     "completed appointment still occupies",
			existing: []Appointment{apptAt(at("10:00"), at("10:30"), StatusCompleted)},
			start:    "10:00", end: "10:30",
			want: false,
		},
		{
			name: "one conflict among many is enough",
			existing: []Appointment{
				apptAt(at("09:00"), at("09:30"), StatusConfirmed),
				apptAt(at("10:00"), at("10:30"), StatusCancelled),
				apptAt(at("10:15"), at("10:45"), StatusPending),
			},
			start: "10:00", end: "10:30",
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SlotAvailable(tc.existing, at(tc.start), at(tc.end))
			assert.Equal(t, tc.want, got)
		})
	}
}
