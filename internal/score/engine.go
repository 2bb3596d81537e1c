package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxRetries = 3

// DupPolicy decides what happens when an award without a dedup key hits a
// criterion that already has entries for the record. Both behaviors are
// legitimate across sources, so the caller must say which one it wants.
type DupPolicy string

const (
	// DupAccumulate records a fresh entry every time.
	DupAccumulate DupPolicy = "accumulate"
	// DupReject skips the award if the criterion already scored once.
	DupReject DupPolicy = "reject"
)

// OwnerKey identifies one movement record: owner + period. Month is 0 for
// student records (one per semester) and 1..12 for club records.
type OwnerKey struct {
	Type       models.Target
	OwnerID    int64
	SemesterID int64
	Month      int
}

type AwardRequest struct {
	Owner       OwnerKey
	CriterionID int64
	RawScore    int

	// DedupKey ties the entry to its source event (activity id, evidence
	// id, synthetic manual token). A repeat of the same key updates the
	// existing entry in place instead of creating a second one.
	DedupKey *string

	// WindowKey plus WindowCeiling layer a sub-ceiling under the category
	// one, e.g. a weekly cap on recurring club meetings.
	WindowKey     *string
	WindowCeiling int

	DupPolicy DupPolicy
	ScoreType models.ScoreType
	Note      *string
	CreatedBy *int64
	AwardedAt time.Time
}

type AwardResult struct {
	Accepted int
	Total    int
	Adjusted bool
	Reason   string
}

type Engine struct {
	db             *sql.DB
	log            *zap.Logger
	overallCeiling int
}

func NewEngine(database *sql.DB, log *zap.Logger, overallCeiling int) *Engine {
	if overallCeiling <= 0 {
		overallCeiling = 100
	}
	return &Engine{db: database, log: log, overallCeiling: overallCeiling}
}

// AwardScore runs the full accumulation pass for one candidate event:
// resolve the criterion, lazily create the record, dedup against prior
// entries, clamp criterion -> window -> category, write the entry and the
// recomputed capped total in one transaction. Safe to call concurrently for
// the same record; the record row lock serializes writers.
func (e *Engine) AwardScore(ctx context.Context, req AwardRequest) (AwardResult, error) {
	if req.RawScore <= 0 {
		return AwardResult{}, fmt.Errorf("%w: score must be positive, got %d", ErrValidation, req.RawScore)
	}
	if req.AwardedAt.IsZero() {
		req.AwardedAt = time.Now()
	}
	if req.DupPolicy == "" {
		req.DupPolicy = DupAccumulate
	}

	crit, err := e.resolveCriterion(ctx, req)
	if err != nil {
		return AwardResult{}, err
	}

	start := time.Now()
	var res AwardResult
	for attempt := 0; ; attempt++ {
		res, err = e.awardTx(ctx, req, crit)
		if err == nil || !isRetryable(err) {
			break
		}
		if attempt+1 >= maxRetries {
			err = fmt.Errorf("%w: %v", ErrConflict, err)
			break
		}
		awardRetries.Inc()
		e.log.Warn("award transaction conflict, retrying",
			zap.Int64("criterion_id", req.CriterionID),
			zap.Int64("owner_id", req.Owner.OwnerID),
			zap.Error(err))
	}
	awardDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return AwardResult{}, err
	}

	switch {
	case res.Reason == reasonDuplicate:
		awardsTotal.WithLabelValues("duplicate").Inc()
	case res.Reason == reasonRejected:
		awardsTotal.WithLabelValues("rejected").Inc()
	case res.Adjusted:
		awardsTotal.WithLabelValues("clamped").Inc()
	default:
		awardsTotal.WithLabelValues("accepted").Inc()
	}
	return res, nil
}

const (
	reasonDuplicate = "duplicate source event"
	reasonRejected  = "criterion already scored for this record"
)

func (e *Engine) resolveCriterion(ctx context.Context, req AwardRequest) (*models.Criterion, error) {
	var c models.Criterion
	err := e.db.QueryRowContext(ctx,
		`SELECT id, group_id, title, target, max_score, is_active FROM criteria WHERE id = $1`,
		req.CriterionID,
	).Scan(&c.ID, &c.GroupID, &c.Title, &c.Target, &c.MaxScore, &c.IsActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: criterion %d not found", ErrConfigMissing, req.CriterionID)
	}
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: criterion %d is inactive", ErrConfigMissing, req.CriterionID)
	}
	if c.Target != req.Owner.Type {
		return nil, fmt.Errorf("%w: criterion %d targets %s, owner is %s", ErrValidation, c.ID, c.Target, req.Owner.Type)
	}
	return &c, nil
}

func (e *Engine) awardTx(ctx context.Context, req AwardRequest, crit *models.Criterion) (AwardResult, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return AwardResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	recordID, total, err := lockRecord(ctx, tx, req.Owner)
	if err != nil {
		return AwardResult{}, err
	}

	// Dedup resolution: an existing entry for the same source event is
	// rewritten in place, never duplicated.
	var existing *models.LedgerEntry
	if req.DedupKey != nil {
		existing, err = findByDedup(ctx, tx, recordID, crit.ID, *req.DedupKey)
		if err != nil {
			return AwardResult{}, err
		}
		if existing != nil && existing.RawScore == req.RawScore &&
			sameWindow(existing.WindowKey, req.WindowKey) && existing.WindowCeil == req.WindowCeiling {
			// Same event, same amount, same window: harmless no-op.
			return AwardResult{Accepted: existing.Score, Total: total, Reason: reasonDuplicate}, tx.Commit()
		}
	} else if req.DupPolicy == DupReject {
		dup, err := criterionScored(ctx, tx, recordID, crit.ID)
		if err != nil {
			return AwardResult{}, err
		}
		if dup {
			return AwardResult{Accepted: 0, Total: total, Adjusted: false, Reason: reasonRejected}, tx.Commit()
		}
	}

	excludeID := int64(0)
	if existing != nil {
		excludeID = existing.ID
	}

	in := clampInput{
		Raw:          req.RawScore,
		CriterionMax: crit.MaxScore,
		CategoryMax:  0,
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT max_score FROM criterion_groups WHERE id = $1`, crit.GroupID,
	).Scan(&in.CategoryMax); err != nil {
		return AwardResult{}, err
	}
	in.CategoryUsed, err = categoryUsed(ctx, tx, recordID, crit.GroupID, excludeID)
	if err != nil {
		return AwardResult{}, err
	}
	if req.WindowKey != nil && req.WindowCeiling > 0 {
		in.WindowCeiling = req.WindowCeiling
		in.WindowUsed, err = windowUsed(ctx, tx, recordID, crit.ID, *req.WindowKey, excludeID)
		if err != nil {
			return AwardResult{}, err
		}
	}

	accepted, adjusted := clampAward(in)

	note := req.Note
	reason := ""
	if adjusted {
		limit := fmt.Sprintf("category limit %d", in.CategoryMax)
		switch {
		case in.WindowCeiling > 0 && accepted == in.WindowCeiling-in.WindowUsed:
			limit = fmt.Sprintf("weekly limit %d", in.WindowCeiling)
		case accepted == in.CriterionMax && in.CriterionMax < req.RawScore:
			limit = fmt.Sprintf("criterion limit %d", in.CriterionMax)
		}
		reason = fmt.Sprintf("capped at %s: %d of %d accepted", limit, accepted, req.RawScore)
		if note == nil {
			note = &reason
		}
	}

	if existing != nil {
		// The window travels with the event: a corrected completion date can
		// move a meeting into another ISO week, and a later recompute must
		// replay the clamp against the new window.
		_, err = tx.ExecContext(ctx, `
			UPDATE ledger_entries
			SET score = $1, raw_score = $2, note = $3, awarded_at = $4, window_key = $5, window_ceiling = $6
			WHERE id = $7`,
			accepted, req.RawScore, note, req.AwardedAt, req.WindowKey, req.WindowCeiling, existing.ID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries
				(record_id, criterion_id, score, raw_score, score_type, dedup_key, window_key, window_ceiling, note, created_by, awarded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			recordID, crit.ID, accepted, req.RawScore, string(req.ScoreType),
			req.DedupKey, req.WindowKey, req.WindowCeiling, note, req.CreatedBy, req.AwardedAt)
	}
	if err != nil {
		return AwardResult{}, err
	}

	newTotal, err := recomputeTotal(ctx, tx, recordID, e.overallCeiling)
	if err != nil {
		return AwardResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE movement_records
		SET total_score = $1, version = version + 1, last_updated = now()
		WHERE id = $2`,
		newTotal, recordID); err != nil {
		return AwardResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return AwardResult{}, err
	}
	return AwardResult{Accepted: accepted, Total: newTotal, Adjusted: adjusted, Reason: reason}, nil
}

// lockRecord creates the record if needed and takes the row lock that
// serializes all award writers for it. Creation races are absorbed by the
// unique constraint on (owner_type, owner_id, semester_id, month).
func lockRecord(ctx context.Context, tx *sql.Tx, owner OwnerKey) (int64, int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO movement_records (owner_type, owner_id, semester_id, month)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (owner_type, owner_id, semester_id, month) DO NOTHING`,
		string(owner.Type), owner.OwnerID, owner.SemesterID, owner.Month); err != nil {
		return 0, 0, err
	}

	var id int64
	var total int
	err := tx.QueryRowContext(ctx, `
		SELECT id, total_score FROM movement_records
		WHERE owner_type = $1 AND owner_id = $2 AND semester_id = $3 AND month = $4
		FOR UPDATE`,
		string(owner.Type), owner.OwnerID, owner.SemesterID, owner.Month,
	).Scan(&id, &total)
	if err != nil {
		return 0, 0, err
	}
	return id, total, nil
}

func findByDedup(ctx context.Context, tx *sql.Tx, recordID, criterionID int64, dedupKey string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRowContext(ctx, `
		SELECT id, record_id, criterion_id, score, raw_score, window_key, window_ceiling
		FROM ledger_entries
		WHERE record_id = $1 AND criterion_id = $2 AND dedup_key = $3`,
		recordID, criterionID, dedupKey,
	).Scan(&e.ID, &e.RecordID, &e.CriterionID, &e.Score, &e.RawScore, &e.WindowKey, &e.WindowCeil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func sameWindow(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func criterionScored(ctx context.Context, tx *sql.Tx, recordID, criterionID int64) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE record_id = $1 AND criterion_id = $2)`,
		recordID, criterionID,
	).Scan(&exists)
	return exists, err
}

func categoryUsed(ctx context.Context, tx *sql.Tx, recordID, groupID, excludeID int64) (int, error) {
	var sum int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(e.score), 0)
		FROM ledger_entries e
		JOIN criteria c ON c.id = e.criterion_id
		WHERE e.record_id = $1 AND c.group_id = $2 AND e.id <> $3`,
		recordID, groupID, excludeID,
	).Scan(&sum)
	return sum, err
}

func windowUsed(ctx context.Context, tx *sql.Tx, recordID, criterionID int64, windowKey string, excludeID int64) (int, error) {
	var sum int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(score), 0)
		FROM ledger_entries
		WHERE record_id = $1 AND criterion_id = $2 AND window_key = $3 AND id <> $4`,
		recordID, criterionID, windowKey, excludeID,
	).Scan(&sum)
	return sum, err
}

func recomputeTotal(ctx context.Context, tx *sql.Tx, recordID int64, overallCeiling int) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT c.group_id, g.max_score, COALESCE(SUM(e.score), 0)
		FROM ledger_entries e
		JOIN criteria c ON c.id = e.criterion_id
		JOIN criterion_groups g ON g.id = c.group_id
		WHERE e.record_id = $1
		GROUP BY c.group_id, g.max_score`,
		recordID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var groups []groupSum
	for rows.Next() {
		var g groupSum
		if err := rows.Scan(&g.GroupID, &g.MaxScore, &g.Sum); err != nil {
			return 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return cappedTotal(groups, overallCeiling), nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
