package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"go.uber.org/zap"
)

// evidenceScore is the fixed award per approved evidence.
const evidenceScore = 5

// Evidence awards points for approved achievement evidences. Distinct
// evidences accumulate; reprocessing the same evidence id updates the
// existing entry instead of scoring twice.
type Evidence struct {
	DB     *sql.DB
	Engine *score.Engine
	Log    *zap.Logger
}

func (e *Evidence) Process(ctx context.Context, sem *models.Semester, ev models.EvidenceFact) error {
	if !ev.Approved {
		return nil
	}
	crit, err := lookupCriterion(ctx, e.DB, models.TargetStudent, "Social Activity", "Evidence achievement")
	if err != nil {
		e.Log.Warn("evidence: criterion missing, skipping",
			zap.Int64("evidence_id", ev.ID), zap.Error(err))
		return nil
	}

	dedup := fmt.Sprintf("evidence:%d", ev.ID)
	_, err = e.Engine.AwardScore(ctx, score.AwardRequest{
		Owner: score.OwnerKey{
			Type:       models.TargetStudent,
			OwnerID:    ev.StudentID,
			SemesterID: sem.ID,
		},
		CriterionID: crit.ID,
		RawScore:    evidenceScore,
		DedupKey:    &dedup,
		DupPolicy:   score.DupAccumulate,
		ScoreType:   models.ScoreAuto,
		AwardedAt:   ev.ApprovedAt,
	})
	if err != nil {
		if errors.Is(err, score.ErrConfigMissing) || errors.Is(err, score.ErrValidation) {
			e.Log.Warn("evidence: award skipped", zap.Int64("evidence_id", ev.ID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("evidence %d: %w", ev.ID, err)
	}
	return nil
}
