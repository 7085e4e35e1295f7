package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanWindow(row pgx.Row) (*WeeklyWindow, error) {
	var w WeeklyWindow
	var weekday int
	var start, end string

	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&weekday,
		&start,
		&end,
		&w.SlotMinutes,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Weekday = time.Weekday(weekday)
	if w.Start, err = ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if w.End, err = ParseTimeOfDay(end); err != nil {
		return nil, err
	}

	return &w, nil
}

func collectWindows(rows pgx.Rows) ([]WeeklyWindow, error) {
	defer rows.Close()

	var result []WeeklyWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetWindowsForDoctorAndDay(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WeeklyWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_time, end_time, slot_minutes, created_at, updated_at
		FROM weekly_windows
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_time
	`, doctorID, int(weekday))
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) GetWindowsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]WeeklyWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_time, end_time, slot_minutes, created_at, updated_at
		FROM weekly_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *PgRepository) ReplaceWindowsForDoctor(ctx context.Context, doctorID uuid.UUID, windows []WeeklyWindow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM weekly_windows WHERE doctor_id = $1
	`, doctorID); err != nil {
		return fmt.Errorf("clear previous windows: %w", err)
	}

	for _, w := range windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_windows (id, doctor_id, weekday, start_time, end_time, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, w.ID, w.DoctorID, int(w.Weekday), w.Start.String(), w.End.String(), w.SlotMinutes)
		if err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	return tx.Commit(ctx)
}
