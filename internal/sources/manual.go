package sources

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"go.uber.org/zap"
)

// Manual handles admin-entered awards. Unlike the automatic sources, the
// award IS the primary action here, so every failure is returned to the
// caller instead of being swallowed.
type Manual struct {
	DB     *sql.DB
	Engine *score.Engine
	Log    *zap.Logger
}

func (m *Manual) Apply(ctx context.Context, sem *models.Semester, award models.ManualAward) (score.AwardResult, error) {
	if award.Score <= 0 {
		return score.AwardResult{}, fmt.Errorf("%w: score must be positive", score.ErrValidation)
	}

	crit, err := m.resolveCriterion(ctx, award)
	if err != nil {
		return score.AwardResult{}, err
	}

	month := 0
	if award.OwnerType == models.TargetClub {
		month = int(award.AwardedAt.Month())
	}

	req := score.AwardRequest{
		Owner: score.OwnerKey{
			Type:       award.OwnerType,
			OwnerID:    award.OwnerID,
			SemesterID: sem.ID,
			Month:      month,
		},
		CriterionID: crit.ID,
		RawScore:    award.Score,
		ScoreType:   models.ScoreManual,
		Note:        award.Note,
		CreatedBy:   &award.CreatedBy,
		AwardedAt:   award.AwardedAt,
	}

	switch {
	case award.Reference != nil:
		key := fmt.Sprintf("manual:%s", *award.Reference)
		req.DedupKey = &key
	case award.Accumulate:
		// Distinct behaviors stack as separate entries; a synthetic token
		// keeps each submission individually addressable.
		key := fmt.Sprintf("manual:%d:%d", award.CreatedBy, award.AwardedAt.UnixNano())
		req.DedupKey = &key
	default:
		req.DupPolicy = score.DupReject
	}

	res, err := m.Engine.AwardScore(ctx, req)
	if err != nil {
		return score.AwardResult{}, err
	}
	if res.Adjusted {
		m.Log.Info("manual award clamped",
			zap.Int64("owner_id", award.OwnerID),
			zap.Int("requested", award.Score),
			zap.Int("accepted", res.Accepted))
	}
	return res, nil
}

func (m *Manual) resolveCriterion(ctx context.Context, award models.ManualAward) (*models.Criterion, error) {
	if award.CriterionID != nil {
		crit, err := db.GetCriterionByID(ctx, m.DB, *award.CriterionID)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: criterion %d not found", score.ErrConfigMissing, *award.CriterionID)
		}
		if err != nil {
			return nil, err
		}
		if crit.GroupID != award.GroupID {
			return nil, fmt.Errorf("%w: criterion %d does not belong to category %d", score.ErrValidation, crit.ID, award.GroupID)
		}
		return crit, nil
	}
	crit, err := db.GetDefaultCriterion(ctx, m.DB, award.GroupID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: category %d has no active criteria", score.ErrConfigMissing, award.GroupID)
	}
	return crit, err
}
