package score

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
)

// CategoryBreakdown shows one category's capped contribution alongside the
// raw sum, so reporting can explain where points were lost to a ceiling.
type CategoryBreakdown struct {
	GroupID   int64
	GroupName string
	MaxScore  int
	Raw       int
	Capped    int
}

type RecordView struct {
	Record    models.Record
	Breakdown []CategoryBreakdown
}

// GetRecord returns the capped total with the per-category breakdown for
// reporting/export consumers. Nil when the owner has no record yet.
func (e *Engine) GetRecord(ctx context.Context, owner OwnerKey) (*RecordView, error) {
	var v RecordView
	r := &v.Record
	err := e.db.QueryRowContext(ctx, `
		SELECT id, owner_type, owner_id, semester_id, month, total_score, version, last_updated
		FROM movement_records
		WHERE owner_type = $1 AND owner_id = $2 AND semester_id = $3 AND month = $4`,
		string(owner.Type), owner.OwnerID, owner.SemesterID, owner.Month,
	).Scan(&r.ID, &r.OwnerType, &r.OwnerID, &r.SemesterID, &r.Month, &r.TotalScore, &r.Version, &r.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.max_score, COALESCE(SUM(e.score), 0)
		FROM ledger_entries e
		JOIN criteria c ON c.id = e.criterion_id
		JOIN criterion_groups g ON g.id = c.group_id
		WHERE e.record_id = $1
		GROUP BY g.id, g.name, g.max_score
		ORDER BY g.id`,
		r.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var b CategoryBreakdown
		if err := rows.Scan(&b.GroupID, &b.GroupName, &b.MaxScore, &b.Raw); err != nil {
			return nil, err
		}
		b.Capped = b.Raw
		if b.MaxScore > 0 && b.Capped > b.MaxScore {
			b.Capped = b.MaxScore
		}
		v.Breakdown = append(v.Breakdown, b)
	}
	return &v, rows.Err()
}

type replayEntry struct {
	id        int64
	critID    int64
	groupID   int64
	critMax   int
	groupMax  int
	score     int
	rawScore  int
	windowKey *string
	windowMax int
}

// Recalculate replays the record's ledger in entry order through the clamp
// chain and rewrites any accepted score that no longer fits. Used after
// bulk catalog edits or manual ledger corrections.
func (e *Engine) Recalculate(ctx context.Context, recordID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM movement_records WHERE id = $1 FOR UPDATE`, recordID,
	).Scan(&locked); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT e.id, e.criterion_id, c.group_id, c.max_score, g.max_score,
		       e.score, e.raw_score, e.window_key, e.window_ceiling
		FROM ledger_entries e
		JOIN criteria c ON c.id = e.criterion_id
		JOIN criterion_groups g ON g.id = c.group_id
		WHERE e.record_id = $1
		ORDER BY e.id`,
		recordID)
	if err != nil {
		return err
	}
	var entries []replayEntry
	for rows.Next() {
		var re replayEntry
		if err := rows.Scan(&re.id, &re.critID, &re.groupID, &re.critMax, &re.groupMax,
			&re.score, &re.rawScore, &re.windowKey, &re.windowMax); err != nil {
			_ = rows.Close()
			return err
		}
		entries = append(entries, re)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	groupUsed := map[int64]int{}
	winUsed := map[string]int{}
	groups := map[int64]*groupSum{}
	var order []int64

	for _, re := range entries {
		in := clampInput{
			Raw:          re.rawScore,
			CriterionMax: re.critMax,
			CategoryUsed: groupUsed[re.groupID],
			CategoryMax:  re.groupMax,
		}
		wk := ""
		if re.windowKey != nil && re.windowMax > 0 {
			wk = critWindow(re.critID, *re.windowKey)
			in.WindowCeiling = re.windowMax
			in.WindowUsed = winUsed[wk]
		}
		accepted, _ := clampAward(in)

		if accepted != re.score {
			if _, err := tx.ExecContext(ctx,
				`UPDATE ledger_entries SET score = $1 WHERE id = $2`, accepted, re.id); err != nil {
				return err
			}
		}
		groupUsed[re.groupID] += accepted
		if wk != "" {
			winUsed[wk] += accepted
		}
		if _, ok := groups[re.groupID]; !ok {
			groups[re.groupID] = &groupSum{GroupID: re.groupID, MaxScore: re.groupMax}
			order = append(order, re.groupID)
		}
		groups[re.groupID].Sum += accepted
	}

	var sums []groupSum
	for _, id := range order {
		sums = append(sums, *groups[id])
	}
	total := cappedTotal(sums, e.overallCeiling)

	if _, err := tx.ExecContext(ctx, `
		UPDATE movement_records
		SET total_score = $1, version = version + 1, last_updated = $2
		WHERE id = $3`,
		total, time.Now(), recordID); err != nil {
		return err
	}
	return tx.Commit()
}

func critWindow(critID int64, key string) string {
	return fmt.Sprintf("%d:%s", critID, key)
}
