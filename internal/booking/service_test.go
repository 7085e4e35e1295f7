package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/hospital-booking/internal/clock"
	redisclient "github.com/medisched/hospital-booking/internal/redis"
	"github.com/medisched/hospital-booking/internal/schedule"
)

// memRepo is an in-memory Repository that enforces the same uniqueness
// guarantee as the partial unique index in Postgres.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []Event
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetAppointmentsForDoctorOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	y, m, d := date.Date()
	var out []Appointment
	for _, a := range r.appointments {
		ay, am, ad := a.StartTime.In(date.Location()).Date()
		if a.DoctorID == doctorID && ay == y && am == m && ad == d {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) Insert(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.DoctorID == appt.DoctorID && a.StartTime.Equal(appt.StartTime) && !a.Status.Released() {
			return ErrSlotTaken
		}
	}
	r.appointments[appt.ID] = *appt
	return nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) FindStalePending(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) occupyingCount(doctorID uuid.UUID, start time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.StartTime.Equal(start) && !a.Status.Released() {
			count++
		}
	}
	return count
}

// memLocker serializes critical sections per key the way the Redis lock
// serializes them per (doctor, start).
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	key := doctorID.String() + "/" + start.UTC().Format(time.RFC3339)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// denyLocker simulates a lock already held by another request.
type denyLocker struct{}

func (denyLocker) WithBookingLock(context.Context, uuid.UUID, time.Time, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	doctorID  uuid.UUID
	patientID uuid.UUID
	now       time.Time
}

// newFixture sets up a doctor available Monday 09:00-12:00 in 30 minute
// slots, one patient, and a clock fixed at Monday 2026-09-07 08:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemRepo()
	doctorID := uuid.New()
	patientID := uuid.New()
	repo.doctors[doctorID] = Doctor{ID: doctorID, Name: "Dr. Quinn"}
	repo.patients[patientID] = Patient{ID: patientID, Name: "Pat"}

	windows := &staticWindows{windows: []schedule.WeeklyWindow{
		{DoctorID: doctorID, Weekday: time.Monday, Start: 9 * 60, End: 12 * 60, SlotMinutes: 30},
	}}

	now := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	svc := NewService(repo, windows, newMemLocker(), clock.Fixed(now), zerolog.Nop(), 24*time.Hour)

	return &fixture{svc: svc, repo: repo, doctorID: doctorID, patientID: patientID, now: now}
}

type staticWindows struct {
	windows []schedule.WeeklyWindow
}

func (s *staticWindows) GetWindowsForDoctorAndDay(_ context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]schedule.WeeklyWindow, error) {
	var out []schedule.WeeklyWindow
	for _, w := range s.windows {
		if w.DoctorID == doctorID && w.Weekday == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *staticWindows) GetWindowsForDoctor(_ context.Context, doctorID uuid.UUID) ([]schedule.WeeklyWindow, error) {
	return s.windows, nil
}

func (s *staticWindows) ReplaceWindowsForDoctor(_ context.Context, _ uuid.UUID, windows []schedule.WeeklyWindow) error {
	s.windows = windows
	return nil
}

func (f *fixture) slotAt(hour, minute int) (time.Time, time.Time) {
	start := time.Date(2026, 9, 7, hour, minute, 0, 0, time.UTC)
	return start, start.Add(30 * time.Minute)
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots, err := f.svc.AvailableSlots(ctx, f.doctorID, f.now)
	require.NoError(t, err)
	assert.Len(t, slots, 6) // 09:00 through 11:30

	// A confirmed appointment hides its slot, a cancelled one does not.
	s1, e1 := f.slotAt(9, 30)
	require.NoError(t, f.repo.Insert(ctx, &Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
		StartTime: s1, EndTime: e1, Status: StatusConfirmed,
	}))
	s2, e2 := f.slotAt(10, 0)
	require.NoError(t, f.repo.Insert(ctx, &Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
		StartTime: s2, EndTime: e2, Status: StatusCancelled,
	}))

	slots, err = f.svc.AvailableSlots(ctx, f.doctorID, f.now)
	require.NoError(t, err)
	assert.Len(t, slots, 5)
	for _, s := range slots {
		assert.NotEqual(t, schedule.TimeOfDay(9*60+30), s.Start)
	}
}

func TestAvailableSlotsUnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AvailableSlots(context.Background(), uuid.New(), f.now)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBookHappyPath(t *testing.T) {
	f := newFixture(t)
	start, end := f.slotAt(9, 0)

	appt, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
		Reason:    "checkup",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, f.doctorID, appt.DoctorID)
	assert.Equal(t, f.patientID, appt.PatientID)
	assert.Equal(t, 1, f.repo.occupyingCount(f.doctorID, start))

	require.Len(t, f.repo.events, 1)
	assert.Equal(t, EventAppointmentBooked, f.repo.events[0].EventType)

	// All timestamps come from the injected clock, not the wall clock.
	assert.True(t, appt.CreatedAt.Equal(f.now))
	assert.True(t, appt.UpdatedAt.Equal(f.now))
	assert.True(t, f.repo.events[0].CreatedAt.Equal(f.now))
}

func TestBookSlotStartedEarlierThisMinute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 45 seconds into the 09:00 slot: the generator still offers it, so
	// booking it must still succeed.
	f.svc.clock = clock.Fixed(time.Date(2026, 9, 7, 9, 0, 45, 0, time.UTC))

	slots, err := f.svc.AvailableSlots(ctx, f.doctorID, f.now)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, schedule.TimeOfDay(9*60), slots[0].Start)

	start, end := f.slotAt(9, 0)
	appt, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestBookRejectsBadIntervals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"start after end", time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC)},
		{"in the past", time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC), time.Date(2026, 9, 7, 7, 30, 0, 0, time.UTC)},
		{"unaligned start", time.Date(2026, 9, 7, 9, 15, 0, 0, time.UTC), time.Date(2026, 9, 7, 9, 45, 0, 0, time.UTC)},
		{"wrong duration", time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)},
		{"outside any window", time.Date(2026, 9, 7, 13, 0, 0, 0, time.UTC), time.Date(2026, 9, 7, 13, 30, 0, 0, time.UTC)},
		{"end past window close", time.Date(2026, 9, 7, 11, 45, 0, 0, time.UTC), time.Date(2026, 9, 7, 12, 15, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, BookRequest{
				DoctorID:  f.doctorID,
				PatientID: f.patientID,
				StartTime: tc.start,
				EndTime:   tc.end,
			})
			assert.ErrorIs(t, err, ErrSlotNotBookable)
		})
	}
}

func TestBookDetectsConflictAtWriteTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, end := f.slotAt(9, 0)

	require.NoError(t, f.repo.Insert(ctx, &Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: uuid.New(),
		StartTime: start, EndTime: end, Status: StatusConfirmed,
	}))

	_, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 1, f.repo.occupyingCount(f.doctorID, start))
}

func TestBookAfterCancellationSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, end := f.slotAt(9, 0)

	require.NoError(t, f.repo.Insert(ctx, &Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: uuid.New(),
		StartTime: start, EndTime: end, Status: StatusCancelled,
	}))

	appt, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestBookLockContended(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = denyLocker{}
	start, end := f.slotAt(9, 0)

	_, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	assert.ErrorIs(t, err, ErrBookingContended)
}

func TestBookUnknownPatientAndDoctor(t *testing.T) {
	f := newFixture(t)
	start, end := f.slotAt(9, 0)

	_, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctorID,
		PatientID: uuid.New(),
		StartTime: start,
		EndTime:   end,
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.Book(context.Background(), BookRequest{
		DoctorID:  uuid.New(),
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBookConcurrentRace(t *testing.T) {
	f := newFixture(t)
	start, end := f.slotAt(10, 30)

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), BookRequest{
				DoctorID:  f.doctorID,
				PatientID: f.patientID,
				StartTime: start,
				EndTime:   end,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}

	assert.Equal(t, 1, wins, "exactly one booking must win the race")
	assert.Equal(t, 1, f.repo.occupyingCount(f.doctorID, start))
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, end := f.slotAt(9, 0)

	appt, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)

	doctor := Actor{ID: f.doctorID, Role: RoleDoctor}
	patient := Actor{ID: f.patientID, Role: RolePatient}

	// A patient may not confirm.
	_, err = f.svc.Confirm(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	confirmed, err := f.svc.Confirm(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Confirming twice is an invalid transition.
	_, err = f.svc.Confirm(ctx, doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := f.svc.Complete(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Terminal states admit nothing further.
	_, err = f.svc.Cancel(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelReleasesSlotForRebooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start, end := f.slotAt(11, 0)

	appt, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, Actor{ID: f.patientID, Role: RolePatient}, appt.ID)
	require.NoError(t, err)

	rebooked, err := f.svc.Book(ctx, BookRequest{
		DoctorID:  f.doctorID,
		PatientID: f.patientID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), Actor{ID: f.doctorID, Role: RoleDoctor}, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRejectStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
		StartTime: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
		Status:    StatusPending,
		CreatedAt: f.now.Add(-48 * time.Hour),
	}
	fresh := Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
		StartTime: time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 7, 10, 30, 0, 0, time.UTC),
		Status:    StatusPending,
		CreatedAt: f.now.Add(-time.Hour),
	}
	require.NoError(t, f.repo.Insert(ctx, &stale))
	require.NoError(t, f.repo.Insert(ctx, &fresh))

	require.NoError(t, f.svc.RejectStalePending(ctx))

	got, err := f.repo.GetAppointmentByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)

	got, err = f.repo.GetAppointmentByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

// casLostRepo simulates another writer moving an appointment out of pending
// between the stale scan and the reject update.
type casLostRepo struct {
	*memRepo
}

func (r *casLostRepo) UpdateStatus(context.Context, uuid.UUID, Status, Status) (*Appointment, error) {
	return nil, ErrAppointmentNotFound
}

func TestRejectStalePendingSkipsConcurrentlyTransitioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := Appointment{
		ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
		StartTime: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
		Status:    StatusPending,
		CreatedAt: f.now.Add(-48 * time.Hour),
	}
	require.NoError(t, f.repo.Insert(ctx, &stale))

	f.svc.repo = &casLostRepo{memRepo: f.repo}
	require.NoError(t, f.svc.RejectStalePending(ctx))

	// The reject lost the compare-and-set, so no rejection event may be
	// recorded for an appointment that was never rejected.
	assert.Empty(t, f.repo.events)
}

func TestListAppointmentsByPatientClampsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := time.Date(2026, 9, 7, 9+i, 0, 0, 0, time.UTC)
		require.NoError(t, f.repo.Insert(ctx, &Appointment{
			ID: uuid.New(), DoctorID: f.doctorID, PatientID: f.patientID,
			StartTime: start, EndTime: start.Add(30 * time.Minute), Status: StatusConfirmed,
		}))
	}

	appts, err := f.svc.ListAppointmentsByPatient(ctx, f.patientID, -1, -5)
	require.NoError(t, err)
	assert.Len(t, appts, 3)
}
