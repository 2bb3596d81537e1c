package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"go.uber.org/zap"
)

// weeklyMeetingCeiling caps how many meeting points a club can collect
// inside one ISO week, under the category ceiling.
const weeklyMeetingCeiling = 5

// Competition points by level; unknown levels fall back to the activity's
// configured value.
var competitionPoints = map[string]int{
	"school":   5,
	"city":     10,
	"national": 15,
}

// ClubCompletion awards club-side points for completed activities:
// recurring meetings (weekly-windowed), organized events (attendance-rate
// tiered), competitions (level tiered) and collaborations (split between
// the organizing and collaborating club).
// Week and month boundaries follow Loc, the school's local timezone; a
// late-evening meeting must not drift into the next UTC week.
type ClubCompletion struct {
	DB     *sql.DB
	Engine *score.Engine
	Log    *zap.Logger
	Loc    *time.Location
}

func (c *ClubCompletion) loc() *time.Location {
	if c.Loc != nil {
		return c.Loc
	}
	return time.Local
}

func (c *ClubCompletion) weekKey(t time.Time) string {
	return isoWeekKey(t.In(c.loc()))
}

func (c *ClubCompletion) Process(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	if act.Status != models.ActivityCompleted {
		return nil
	}
	switch act.Type {
	case models.ActivityMeeting:
		return c.meeting(ctx, sem, act)
	case models.ActivityEvent:
		return c.event(ctx, sem, act)
	case models.ActivityCompetition:
		return c.competition(ctx, sem, act)
	case models.ActivityCollab:
		return c.collaboration(ctx, sem, act)
	}
	return nil
}

func (c *ClubCompletion) meeting(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	week := c.weekKey(act.CompletedAt)
	return c.award(ctx, sem, act.ClubID, act, "Club Meetings", "Recurring meeting", act.Points, &week, weeklyMeetingCeiling)
}

func (c *ClubCompletion) event(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	points := act.Points
	switch rate := attendanceRate(act); {
	case rate >= 0.7:
		// full credit
	case rate >= 0.4:
		points = act.Points / 2
	default:
		points = act.Points / 4
	}
	if points <= 0 {
		points = 1
	}
	return c.award(ctx, sem, act.ClubID, act, "Club Events", "Organized event", points, nil, 0)
}

func (c *ClubCompletion) competition(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	points := act.Points
	if p, ok := competitionPoints[act.Level]; ok {
		points = p
	}
	return c.award(ctx, sem, act.ClubID, act, "Club Events", "Competition", points, nil, 0)
}

func (c *ClubCompletion) collaboration(ctx context.Context, sem *models.Semester, act models.ActivityFact) error {
	// Each club's share lands in its own record and is capped there
	// independently.
	if err := c.award(ctx, sem, act.ClubID, act, "Collaboration", "Joint activity", act.Points, nil, 0); err != nil {
		return err
	}
	if act.CollabClubID != nil && act.CollabPoints > 0 {
		return c.award(ctx, sem, *act.CollabClubID, act, "Collaboration", "Joint activity", act.CollabPoints, nil, 0)
	}
	return nil
}

func (c *ClubCompletion) award(ctx context.Context, sem *models.Semester, clubID int64, act models.ActivityFact,
	group, title string, points int, windowKey *string, windowCeiling int) error {
	if points <= 0 {
		return nil
	}
	crit, err := lookupCriterion(ctx, c.DB, models.TargetClub, group, title)
	if err != nil {
		c.Log.Warn("club completion: criterion missing, skipping",
			zap.Int64("activity_id", act.ID), zap.String("criterion", title))
		return nil
	}

	dedup := activityKey(act.ID)
	_, err = c.Engine.AwardScore(ctx, score.AwardRequest{
		Owner: score.OwnerKey{
			Type:       models.TargetClub,
			OwnerID:    clubID,
			SemesterID: sem.ID,
			Month:      int(act.CompletedAt.In(c.loc()).Month()),
		},
		CriterionID:   crit.ID,
		RawScore:      points,
		DedupKey:      &dedup,
		WindowKey:     windowKey,
		WindowCeiling: windowCeiling,
		ScoreType:     models.ScoreAuto,
		AwardedAt:     act.CompletedAt,
	})
	if err != nil {
		if errors.Is(err, score.ErrConfigMissing) || errors.Is(err, score.ErrValidation) {
			c.Log.Warn("club completion: award skipped",
				zap.Int64("club_id", clubID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("club %d activity %d: %w", clubID, act.ID, err)
	}
	return nil
}

func isoWeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}
