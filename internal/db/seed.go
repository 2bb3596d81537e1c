package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clubsphere/movement-score/internal/models"
)

type seedGroup struct {
	name     string
	target   models.Target
	max      int
	criteria []seedCriterion
}

type seedCriterion struct {
	title string
	max   int
}

// Catalog per the university's movement-score regulation. Group ceilings:
// Academic 35, Social 50, Civic 25, Organizational 30; club groups share the
// overall 100 ceiling.
var catalog = []seedGroup{
	{"Academic Awareness", models.TargetStudent, 35, []seedCriterion{
		{"Academic activity participation", 10},
		{"Olympic/ACM competition", 10},
		{"Scientific research", 15},
	}},
	{"Social Activity", models.TargetStudent, 50, []seedCriterion{
		{"Event participation", 10},
		{"Volunteer campaign", 15},
		{"Club activity", 10},
		{"Evidence achievement", 15},
	}},
	{"Civic Behavior", models.TargetStudent, 25, []seedCriterion{
		{"Civic conduct", 15},
		{"Community service", 10},
	}},
	{"Organizational Work", models.TargetStudent, 30, []seedCriterion{
		{"Club role", 10},
		{"Event organizing", 10},
		{"Class leadership", 10},
	}},
	{"Club Meetings", models.TargetClub, 50, []seedCriterion{
		{"Recurring meeting", 5},
	}},
	{"Club Events", models.TargetClub, 50, []seedCriterion{
		{"Organized event", 20},
		{"Competition", 15},
	}},
	{"Collaboration", models.TargetClub, 30, []seedCriterion{
		{"Joint activity", 15},
	}},
}

// SeedCatalog inserts the criterion catalog idempotently.
func SeedCatalog(ctx context.Context, database *sql.DB) error {
	for _, g := range catalog {
		var groupID int64
		err := database.QueryRowContext(ctx, `
			INSERT INTO criterion_groups (name, target, max_score, is_active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (name, target) DO UPDATE SET max_score = EXCLUDED.max_score
			RETURNING id`,
			g.name, string(g.target), g.max,
		).Scan(&groupID)
		if err != nil {
			return fmt.Errorf("seed group %s: %w", g.name, err)
		}

		for _, c := range g.criteria {
			_, err := database.ExecContext(ctx, `
				INSERT INTO criteria (group_id, title, target, max_score, is_active)
				VALUES ($1, $2, $3, $4, TRUE)
				ON CONFLICT (group_id, title) DO NOTHING`,
				groupID, c.title, string(g.target), c.max,
			)
			if err != nil {
				return fmt.Errorf("seed criterion %s: %w", c.title, err)
			}
		}
	}
	return nil
}
