package models

type Target string

const (
	TargetStudent Target = "student"
	TargetClub    Target = "club"
)

// CriterionGroup is a scoring category with an aggregate ceiling
// (e.g. Academic <= 35, Social <= 50).
type CriterionGroup struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Target   Target `db:"target"`
	MaxScore int    `db:"max_score"`
	IsActive bool   `db:"is_active"`
}

// Criterion is a single scoring rule with its own point ceiling.
type Criterion struct {
	ID       int64  `db:"id"`
	GroupID  int64  `db:"group_id"`
	Title    string `db:"title"`
	Target   Target `db:"target"`
	MaxScore int    `db:"max_score"`
	IsActive bool   `db:"is_active"`
}
