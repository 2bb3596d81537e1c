package models

import "time"

type ScoreType string

const (
	ScoreAuto   ScoreType = "auto"
	ScoreManual ScoreType = "manual"
)

// Record holds the cached, capped movement total for one owner in one
// period. Students have one record per semester (Month = 0), clubs one per
// semester-month.
type Record struct {
	ID          int64     `db:"id"`
	OwnerType   Target    `db:"owner_type"`
	OwnerID     int64     `db:"owner_id"`
	SemesterID  int64     `db:"semester_id"`
	Month       int       `db:"month"`
	TotalScore  int       `db:"total_score"`
	Version     int64     `db:"version"`
	LastUpdated time.Time `db:"last_updated"`
}

// LedgerEntry is one recorded award. Score is the accepted (clamped) value;
// RawScore keeps the pre-clamp request for audit.
type LedgerEntry struct {
	ID          int64     `db:"id"`
	RecordID    int64     `db:"record_id"`
	CriterionID int64     `db:"criterion_id"`
	Score       int       `db:"score"`
	RawScore    int       `db:"raw_score"`
	ScoreType   ScoreType `db:"score_type"`
	DedupKey    *string   `db:"dedup_key"`
	WindowKey   *string   `db:"window_key"`
	WindowCeil  int       `db:"window_ceiling"`
	Note        *string   `db:"note"`
	CreatedBy   *int64    `db:"created_by"`
	AwardedAt   time.Time `db:"awarded_at"`
}
