package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medisched/hospital-booking/internal/booking"
	"github.com/medisched/hospital-booking/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	StartTime string `json:"start_time"` // RFC 3339
	EndTime   string `json:"end_time"`   // RFC 3339
	Reason    string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
	}
}

type SlotResponse struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

type SlotsResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

func toSlotResponses(slots []booking.CandidateSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{Start: s.Start.String(), End: s.End.String()})
	}
	return out
}

type WindowPayload struct {
	Weekday     int    `json:"weekday"` // 0 = Sunday ... 6 = Saturday
	Start       string `json:"start"`   // HH:MM
	End         string `json:"end"`     // HH:MM
	SlotMinutes int    `json:"slot_minutes"`
}

type ReplaceScheduleRequest struct {
	Windows []WindowPayload `json:"windows"`
}

type ScheduleResponse struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	Windows  []WindowPayload `json:"windows"`
}

func toWindowPayloads(windows []schedule.WeeklyWindow) []WindowPayload {
	out := make([]WindowPayload, 0, len(windows))
	for _, w := range windows {
		out = append(out, WindowPayload{
			Weekday:     int(w.Weekday),
			Start:       w.Start.String(),
			End:         w.End.String(),
			SlotMinutes: w.SlotMinutes,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
