package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"go.uber.org/zap"
)

// fullCreditRate: attendees of a session that gathered less than 70% of the
// planned headcount get half credit.
const fullCreditRate = 0.7

// Attendance awards student points for activities they were present at.
// Scoring failures never block the attendance workflow itself; the
// reconciliation job will retry them.
type Attendance struct {
	DB     *sql.DB
	Engine *score.Engine
	Log    *zap.Logger
}

func (a *Attendance) Process(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	if act.Status != models.ActivityCompleted {
		return nil
	}
	crit, err := a.criterionFor(ctx, act.Type)
	if err != nil {
		a.Log.Warn("attendance: no criterion for activity type, skipping",
			zap.Int64("activity_id", act.ID), zap.String("type", string(act.Type)))
		return nil
	}

	points := act.Points
	if rate := attendanceRate(act); rate < fullCreditRate {
		points = act.Points / 2
	}
	if points <= 0 {
		return nil
	}

	dedup := activityKey(act.ID)
	var failed int
	for _, at := range act.Attendees {
		if !at.Present {
			continue
		}
		_, err := a.Engine.AwardScore(ctx, score.AwardRequest{
			Owner: score.OwnerKey{
				Type:       models.TargetStudent,
				OwnerID:    at.StudentID,
				SemesterID: sem.ID,
			},
			CriterionID: crit.ID,
			RawScore:    points,
			DedupKey:    &dedup,
			ScoreType:   models.ScoreAuto,
			AwardedAt:   act.CompletedAt,
		})
		if err != nil {
			if errors.Is(err, score.ErrConfigMissing) || errors.Is(err, score.ErrValidation) {
				a.Log.Warn("attendance: award skipped",
					zap.Int64("student_id", at.StudentID), zap.Error(err))
				continue
			}
			failed++
			a.Log.Error("attendance: award failed",
				zap.Int64("student_id", at.StudentID),
				zap.Int64("activity_id", act.ID), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("attendance: %d of %d awards failed for activity %d", failed, len(act.Attendees), act.ID)
	}
	return nil
}

func (a *Attendance) criterionFor(ctx context.Context, t models.ActivityType) (*models.Criterion, error) {
	group, title := "Social Activity", "Event participation"
	if t == models.ActivityMeeting {
		title = "Club activity"
	}
	return lookupCriterion(ctx, a.DB, models.TargetStudent, group, title)
}

func attendanceRate(act models.ActivityFact) float64 {
	if act.ExpectedCount <= 0 {
		return 1
	}
	present := 0
	for _, at := range act.Attendees {
		if at.Present {
			present++
		}
	}
	return float64(present) / float64(act.ExpectedCount)
}

func activityKey(id int64) string { return fmt.Sprintf("activity:%d", id) }

func lookupCriterion(ctx context.Context, database *sql.DB, target models.Target, group, title string) (*models.Criterion, error) {
	groups, err := db.GetGroups(ctx, database, target, false)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == group {
			return db.GetCriterionByTitle(ctx, database, g.ID, title)
		}
	}
	return nil, sql.ErrNoRows
}
