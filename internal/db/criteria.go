package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/clubsphere/movement-score/internal/models"
)

// GetGroups catalog list (includeInactive=true returns hidden groups too)
func GetGroups(ctx context.Context, database *sql.DB, target models.Target, includeInactive bool) ([]models.CriterionGroup, error) {
	query := "SELECT id, name, target, max_score, is_active FROM criterion_groups WHERE target = $1"
	if !includeInactive {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY id"

	rows, err := database.QueryContext(ctx, query, string(target))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.CriterionGroup
	for rows.Next() {
		var g models.CriterionGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Target, &g.MaxScore, &g.IsActive); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func GetGroupByID(ctx context.Context, database *sql.DB, id int64) (*models.CriterionGroup, error) {
	var g models.CriterionGroup
	err := database.QueryRowContext(ctx,
		"SELECT id, name, target, max_score, is_active FROM criterion_groups WHERE id = $1",
		id,
	).Scan(&g.ID, &g.Name, &g.Target, &g.MaxScore, &g.IsActive)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func GetCriterionByID(ctx context.Context, database *sql.DB, id int64) (*models.Criterion, error) {
	var c models.Criterion
	err := database.QueryRowContext(ctx,
		"SELECT id, group_id, title, target, max_score, is_active FROM criteria WHERE id = $1",
		id,
	).Scan(&c.ID, &c.GroupID, &c.Title, &c.Target, &c.MaxScore, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCriterionByTitle resolves a criterion inside a group by its title.
func GetCriterionByTitle(ctx context.Context, database *sql.DB, groupID int64, title string) (*models.Criterion, error) {
	var c models.Criterion
	err := database.QueryRowContext(ctx,
		"SELECT id, group_id, title, target, max_score, is_active FROM criteria WHERE group_id = $1 AND title = $2",
		groupID, title,
	).Scan(&c.ID, &c.GroupID, &c.Title, &c.Target, &c.MaxScore, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetDefaultCriterion returns the group's catch-all criterion, used by
// manual awards that name only a category.
func GetDefaultCriterion(ctx context.Context, database *sql.DB, groupID int64) (*models.Criterion, error) {
	rows, err := database.QueryContext(ctx,
		"SELECT id, group_id, title, target, max_score, is_active FROM criteria WHERE group_id = $1 AND is_active = TRUE ORDER BY id LIMIT 1",
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	var c models.Criterion
	if err := rows.Scan(&c.ID, &c.GroupID, &c.Title, &c.Target, &c.MaxScore, &c.IsActive); err != nil {
		return nil, err
	}
	return &c, nil
}

func CreateGroup(ctx context.Context, database *sql.DB, name string, target models.Target, maxScore int) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx,
		"INSERT INTO criterion_groups(name, target, max_score, is_active) VALUES($1,$2,$3,TRUE) RETURNING id",
		name, string(target), maxScore,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func CreateCriterion(ctx context.Context, database *sql.DB, groupID int64, title string, target models.Target, maxScore int) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx,
		"INSERT INTO criteria(group_id, title, target, max_score, is_active) VALUES($1,$2,$3,$4,TRUE) RETURNING id",
		groupID, title, string(target), maxScore,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func SetCriterionActive(ctx context.Context, database *sql.DB, id int64, active bool) error {
	res, err := database.ExecContext(ctx,
		"UPDATE criteria SET is_active = $1 WHERE id = $2",
		active, id,
	)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return errors.New("criterion not found")
	}
	return nil
}
