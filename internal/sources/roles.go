package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"go.uber.org/zap"
)

// Monthly role points per the movement regulation.
var rolePoints = map[string]int{
	"president":      10,
	"vice president": 8,
	"manager":        5,
	"member":         3,
}

const otherRolePoints = 1

// Roles awards students a monthly score for holding an active club role.
// One entry per (student, club, month) regardless of how many snapshots
// arrive within the month. The month boundary follows Loc, the school's
// local timezone.
type Roles struct {
	DB     *sql.DB
	Engine *score.Engine
	Log    *zap.Logger
	Loc    *time.Location
}

func (r *Roles) loc() *time.Location {
	if r.Loc != nil {
		return r.Loc
	}
	return time.Local
}

func (r *Roles) monthKey(t time.Time) string {
	return t.In(r.loc()).Format("2006-01")
}

func (r *Roles) Process(ctx context.Context, sem *models.Semester, m models.MembershipFact) error {
	if !m.IsActive {
		return nil
	}
	crit, err := lookupCriterion(ctx, r.DB, models.TargetStudent, "Organizational Work", "Club role")
	if err != nil {
		r.Log.Warn("roles: criterion missing, skipping",
			zap.Int64("student_id", m.StudentID), zap.Error(err))
		return nil
	}

	dedup := fmt.Sprintf("role:%d:%s", m.ClubID, r.monthKey(m.AsOf))
	_, err = r.Engine.AwardScore(ctx, score.AwardRequest{
		Owner: score.OwnerKey{
			Type:       models.TargetStudent,
			OwnerID:    m.StudentID,
			SemesterID: sem.ID,
		},
		CriterionID: crit.ID,
		RawScore:    pointsForRole(m.Role),
		DedupKey:    &dedup,
		ScoreType:   models.ScoreAuto,
		AwardedAt:   m.AsOf,
	})
	if err != nil {
		if errors.Is(err, score.ErrConfigMissing) || errors.Is(err, score.ErrValidation) {
			r.Log.Warn("roles: award skipped", zap.Int64("student_id", m.StudentID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("role award for student %d: %w", m.StudentID, err)
	}
	return nil
}

func pointsForRole(role string) int {
	if p, ok := rolePoints[strings.ToLower(strings.TrimSpace(role))]; ok {
		return p
	}
	return otherRolePoints
}
