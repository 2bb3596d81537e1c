package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
)

func GetActiveSemester(ctx context.Context, database *sql.DB) (*models.Semester, error) {
	row := database.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters WHERE is_active = TRUE LIMIT 1`)

	var s models.Semester
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetActiveSemester marks the semester covering today as the single active
// one. Ranges may overlap during handover; the latest-starting match wins so
// exactly one row ends up active.
func SetActiveSemester(ctx context.Context, database *sql.DB) error {
	now := time.Now()

	if _, err := database.ExecContext(ctx, `UPDATE semesters SET is_active = FALSE`); err != nil {
		return err
	}
	_, err := database.ExecContext(ctx, `
		UPDATE semesters SET is_active = TRUE
		WHERE id = (
			SELECT id FROM semesters
			WHERE start_date <= $1 AND end_date >= $1
			ORDER BY start_date DESC, id DESC
			LIMIT 1
		)`, now)
	return err
}

func CreateSemester(ctx context.Context, database *sql.DB, s models.Semester) (int64, error) {
	if s.StartDate.After(s.EndDate) {
		return 0, fmt.Errorf("semester end date before start date")
	}

	var id int64
	err := database.QueryRowContext(ctx, `
		INSERT INTO semesters (name, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		s.Name, s.StartDate, s.EndDate, s.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func ListSemesters(ctx context.Context, database *sql.DB) ([]models.Semester, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []models.Semester
	for rows.Next() {
		var s models.Semester
		if err := rows.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func GetSemesterByID(ctx context.Context, database *sql.DB, id int64) (*models.Semester, error) {
	row := database.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters WHERE id = $1`, id)

	var s models.Semester
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}
