package db

import (
	"context"
	"database/sql"

	"github.com/clubsphere/movement-score/internal/models"
)

// GetRecord reads a record outside of any award transaction (reporting,
// export). Returns nil when the owner has no record for the period yet.
func GetRecord(ctx context.Context, database *sql.DB, ownerType models.Target, ownerID, semesterID int64, month int) (*models.Record, error) {
	row := database.QueryRowContext(ctx, `
		SELECT id, owner_type, owner_id, semester_id, month, total_score, version, last_updated
		FROM movement_records
		WHERE owner_type = $1 AND owner_id = $2 AND semester_id = $3 AND month = $4`,
		string(ownerType), ownerID, semesterID, month)

	var r models.Record
	err := row.Scan(&r.ID, &r.OwnerType, &r.OwnerID, &r.SemesterID, &r.Month, &r.TotalScore, &r.Version, &r.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func ListRecordsBySemester(ctx context.Context, database *sql.DB, semesterID int64, ownerType models.Target) ([]models.Record, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT id, owner_type, owner_id, semester_id, month, total_score, version, last_updated
		FROM movement_records
		WHERE semester_id = $1 AND owner_type = $2
		ORDER BY total_score DESC, owner_id`,
		semesterID, string(ownerType))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.OwnerType, &r.OwnerID, &r.SemesterID, &r.Month, &r.TotalScore, &r.Version, &r.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLedger returns all entries for a record, oldest first.
func GetLedger(ctx context.Context, database *sql.DB, recordID int64) ([]models.LedgerEntry, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT id, record_id, criterion_id, score, raw_score, score_type, dedup_key, window_key, window_ceiling, note, created_by, awarded_at
		FROM ledger_entries
		WHERE record_id = $1
		ORDER BY id`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.CriterionID, &e.Score, &e.RawScore, &e.ScoreType, &e.DedupKey, &e.WindowKey, &e.WindowCeil, &e.Note, &e.CreatedBy, &e.AwardedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRecord removes a record and its ledger (explicit admin delete only).
func DeleteRecord(ctx context.Context, database *sql.DB, recordID int64) error {
	_, err := database.ExecContext(ctx, `DELETE FROM movement_records WHERE id = $1`, recordID)
	return err
}
