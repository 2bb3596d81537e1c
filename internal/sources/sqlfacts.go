package sources

import (
	"context"
	"database/sql"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
)

// SQLFacts reads source facts straight from the collaborators' tables
// (activity tracking, evidence review, club administration). Read-only:
// the scoring service never writes to these.
type SQLFacts struct {
	DB *sql.DB
}

func (f *SQLFacts) CompletedActivities(ctx context.Context, since time.Time) ([]models.ActivityFact, error) {
	rows, err := f.DB.QueryContext(ctx, `
		SELECT id, club_id, type, status, points, collab_club_id, collab_points,
		       COALESCE(level, ''), completed_at, COALESCE(expected_count, 0)
		FROM activities
		WHERE status = 'completed' AND completed_at >= $1
		ORDER BY completed_at`,
		since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ActivityFact
	for rows.Next() {
		var a models.ActivityFact
		if err := rows.Scan(&a.ID, &a.ClubID, &a.Type, &a.Status, &a.Points,
			&a.CollabClubID, &a.CollabPoints, &a.Level, &a.CompletedAt, &a.ExpectedCount); err != nil {
			return nil, err
		}
		a.Attendees, err = f.attendees(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (f *SQLFacts) attendees(ctx context.Context, activityID int64) ([]models.AttendeeFact, error) {
	rows, err := f.DB.QueryContext(ctx, `
		SELECT student_id, present FROM activity_attendees WHERE activity_id = $1`,
		activityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.AttendeeFact
	for rows.Next() {
		var at models.AttendeeFact
		if err := rows.Scan(&at.StudentID, &at.Present); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

func (f *SQLFacts) ApprovedEvidences(ctx context.Context, since time.Time) ([]models.EvidenceFact, error) {
	rows, err := f.DB.QueryContext(ctx, `
		SELECT id, student_id, category, title, approved, approved_at
		FROM evidences
		WHERE approved = TRUE AND approved_at >= $1
		ORDER BY approved_at`,
		since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.EvidenceFact
	for rows.Next() {
		var e models.EvidenceFact
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Category, &e.Title, &e.Approved, &e.ApprovedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (f *SQLFacts) ActiveMemberships(ctx context.Context) ([]models.MembershipFact, error) {
	rows, err := f.DB.QueryContext(ctx, `
		SELECT student_id, club_id, role, is_active, now()
		FROM club_members
		WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.MembershipFact
	for rows.Next() {
		var m models.MembershipFact
		if err := rows.Scan(&m.StudentID, &m.ClubID, &m.Role, &m.IsActive, &m.AsOf); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
