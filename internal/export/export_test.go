//go:build testutil
// +build testutil

package export_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/export"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"github.com/clubsphere/movement-score/internal/testutil/testdb"
	"go.uber.org/zap"
)

func TestBuildSemesterSheets_CappedColumns(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := db.SeedCatalog(ctx, h.DB); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	semID, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name:      "export semester",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	eng := score.NewEngine(h.DB, zap.NewNop(), 100)
	groups, err := db.GetGroups(ctx, h.DB, models.TargetStudent, false)
	if err != nil {
		t.Fatal(err)
	}
	var social models.CriterionGroup
	for _, g := range groups {
		if g.Name == "Social Activity" {
			social = g
		}
	}
	crit, err := db.GetDefaultCriterion(ctx, h.DB, social.ID)
	if err != nil {
		t.Fatal(err)
	}
	dedup := "activity:1"
	if _, err := eng.AwardScore(ctx, score.AwardRequest{
		Owner:       score.OwnerKey{Type: models.TargetStudent, OwnerID: 1, SemesterID: semID},
		CriterionID: crit.ID,
		RawScore:    12,
		DedupKey:    &dedup,
		ScoreType:   models.ScoreAuto,
	}); err != nil {
		t.Fatal(err)
	}

	sheets, err := export.BuildSemesterSheets(ctx, h.DB, semID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 2 || sheets[0].Title != "Students" || sheets[1].Title != "Clubs" {
		t.Fatalf("want Students and Clubs sheets, got %+v", sheets)
	}

	students := sheets[0]
	if len(students.Header) != 3+len(groups) {
		t.Fatalf("want %d header columns, got %v", 3+len(groups), students.Header)
	}
	if len(students.Rows) != 1 {
		t.Fatalf("want one student row, got %d", len(students.Rows))
	}
	row := students.Rows[0]
	if row[0] != "1" || row[2] != "12" {
		t.Fatalf("owner/total wrong: %v", row)
	}
	// The awarded category column carries the capped sum, the rest are zero.
	for i, g := range groups {
		want := "0"
		if g.ID == social.ID {
			want = "12"
		}
		if row[3+i] != want {
			t.Fatalf("column %q: want %s, got %s", students.Header[3+i], want, row[3+i])
		}
	}

	wb, err := export.NewWorkbook(sheets)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := wb.File.GetCellValue("Students", "A1"); got != "Owner ID" {
		t.Fatalf("workbook header: want Owner ID, got %q", got)
	}
	if got, _ := wb.File.GetCellValue("Students", "C2"); got != "12" {
		t.Fatalf("workbook total: want 12, got %q", got)
	}

	var buf bytes.Buffer
	if err := wb.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("workbook stream is empty")
	}
}
