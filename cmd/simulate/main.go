// Command simulate fires concurrent booking requests at one doctor and slot
// to demonstrate that under contention exactly one booking wins, the rest
// are told the slot was taken, and Postgres ends up with a single
// occupying row.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/hospital-booking/internal/config"
	"github.com/medisched/hospital-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	DoctorID    uuid.UUID
	Date        string // YYYY-MM-DD, defaults to the next weekday
	PostgresDSN string
}

type attemptResult struct {
	worker  int
	status  int
	code    string
	latency time.Duration
	apptID  string
	sendErr error
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	doctorID := cfg.DoctorID
	if doctorID == uuid.Nil {
		doctorID, err = anyDoctor(ctx, pgPool)
		if err != nil {
			log.Fatalf("pick doctor: %v", err)
		}
	}
	patients, err := loadPatients(ctx, pgPool, cfg.Workers)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	start, end, err := firstFreeSlot(client, cfg.APIBaseURL, doctorID, cfg.Date)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	log.Printf("targeting doctor=%s slot=%s-%s with %d concurrent workers", doctorID, start, end, cfg.Workers)

	results := make([]attemptResult, cfg.Workers)

	var wg sync.WaitGroup
	gun := make(chan struct{})
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-gun
			results[worker] = bookOnce(client, cfg.APIBaseURL, doctorID, patients[worker%len(patients)], start, end, worker)
		}(i)
	}
	close(gun)
	wg.Wait()

	report(results)

	count, err := occupyingCount(ctx, pgPool, doctorID, start)
	if err != nil {
		log.Fatalf("verify in postgres: %v", err)
	}
	log.Printf("postgres occupying rows for the slot: %d", count)
	if count != 1 {
		log.Fatalf("FAIL: expected exactly 1 occupying appointment, found %d", count)
	}
	log.Println("PASS: exactly one booking claimed the slot")
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Workers:     getInt("SIM_WORKERS", 16),
		Date:        getEnv("SIM_DATE", nextWeekday().Format("2006-01-02")),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	if v := os.Getenv("SIM_DOCTOR_ID"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			log.Fatalf("invalid SIM_DOCTOR_ID: %v", err)
		}
		cfg.DoctorID = id
	}

	if cfg.Workers <= 0 {
		log.Fatal("SIM_WORKERS must be > 0")
	}

	return cfg
}

// nextWeekday returns tomorrow, skipped forward past weekends: the seeded
// schedules only cover Monday through Friday.
func nextWeekday() time.Time {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func anyDoctor(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM doctors LIMIT 1`).Scan(&id)
	return id, err
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no patients found, run cmd/seed first")
	}
	return ids, rows.Err()
}

func firstFreeSlot(client *http.Client, baseURL string, doctorID uuid.UUID, date string) (start, end time.Time, err error) {
	resp, err := client.Get(fmt.Sprintf("%s/doctors/%s/slots?date=%s", baseURL, doctorID, date))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return time.Time{}, time.Time{}, fmt.Errorf("slots endpoint returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Slots []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(payload.Slots) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("doctor has no free slots on %s", date)
	}

	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err = atClock(day, payload.Slots[0].Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = atClock(day, payload.Slots[0].End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func atClock(day time.Time, hm string) (time.Time, error) {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func bookOnce(client *http.Client, baseURL string, doctorID, patientID uuid.UUID, start, end time.Time, worker int) attemptResult {
	payload, _ := json.Marshal(map[string]string{
		"doctor_id":  doctorID.String(),
		"patient_id": patientID.String(),
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
		"reason":     "simulated booking",
	})

	began := time.Now()
	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(payload))
	res := attemptResult{worker: worker, latency: time.Since(began), sendErr: err}
	if err != nil {
		return res
	}
	defer resp.Body.Close()

	res.status = resp.StatusCode

	var body struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	res.apptID = body.ID
	res.code = body.Error

	return res
}

func report(results []attemptResult) {
	var wins, conflicts, failures int
	for _, r := range results {
		switch {
		case r.sendErr != nil:
			failures++
			log.Printf("worker %2d: send error: %v", r.worker, r.sendErr)
		case r.status == http.StatusCreated:
			wins++
			log.Printf("worker %2d: WON the slot (appointment %s) in %s", r.worker, r.apptID, r.latency)
		case r.status == http.StatusConflict:
			conflicts++
			log.Printf("worker %2d: lost the race (%s) in %s", r.worker, r.code, r.latency)
		default:
			failures++
			log.Printf("worker %2d: unexpected status %d (%s)", r.worker, r.status, r.code)
		}
	}

	log.Printf("summary: %d won, %d conflicted, %d failed out of %d attempts", wins, conflicts, failures, len(results))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func occupyingCount(ctx context.Context, pool *pgxpool.Pool, doctorID uuid.UUID, start time.Time) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND start_time = $2
		  AND status IN ('pending', 'confirmed', 'completed')
	`, doctorID, start).Scan(&count)
	return count, err
}
