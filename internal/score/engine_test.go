//go:build testutil
// +build testutil

package score_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/score"
	"github.com/clubsphere/movement-score/internal/testutil/testdb"
	"go.uber.org/zap"
)

func startEngine(t *testing.T) (*testdb.DBHandle, *score.Engine, *models.Semester) {
	t.Helper()
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)

	if err := db.SeedCatalog(ctx, h.DB); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if _, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name:      "test semester",
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 1, 0),
		IsActive:  true,
	}); err != nil {
		t.Fatal(err)
	}
	sem, err := db.GetActiveSemester(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	return h, score.NewEngine(h.DB, zap.NewNop(), 100), sem
}

func mustCriterion(t *testing.T, dbx *sql.DB, target models.Target, group, title string) *models.Criterion {
	t.Helper()
	ctx := context.Background()
	groups, err := db.GetGroups(ctx, dbx, target, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range groups {
		if g.Name == group {
			c, err := db.GetCriterionByTitle(ctx, dbx, g.ID, title)
			if err != nil {
				t.Fatal(err)
			}
			return c
		}
	}
	t.Fatalf("group %q not found", group)
	return nil
}

func entryCount(t *testing.T, dbx *sql.DB, recordID int64) int {
	t.Helper()
	var n int
	if err := dbx.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE record_id = $1`, recordID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func studentRecord(t *testing.T, dbx *sql.DB, studentID, semID int64) *models.Record {
	t.Helper()
	r, err := db.GetRecord(context.Background(), dbx, models.TargetStudent, studentID, semID, 0)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func strPtr(s string) *string { return &s }

func TestAwardScore_NewRecord(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Event participation")

	res, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner:       score.OwnerKey{Type: models.TargetStudent, OwnerID: 1, SemesterID: sem.ID},
		CriterionID: crit.ID,
		RawScore:    5,
		DedupKey:    strPtr("activity:100"),
		ScoreType:   models.ScoreAuto,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 5 || res.Total != 5 || res.Adjusted {
		t.Fatalf("want accepted=5 total=5 adjusted=false, got %+v", res)
	}

	r := studentRecord(t, h.DB, 1, sem.ID)
	if r == nil || r.TotalScore != 5 {
		t.Fatalf("record not created with total 5: %+v", r)
	}
}

func TestAwardScore_DedupIdempotent(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Event participation")

	req := score.AwardRequest{
		Owner:       score.OwnerKey{Type: models.TargetStudent, OwnerID: 2, SemesterID: sem.ID},
		CriterionID: crit.ID,
		RawScore:    5,
		DedupKey:    strPtr("activity:200"),
		ScoreType:   models.ScoreAuto,
	}
	if _, err := eng.AwardScore(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	// Reconciliation replays the same event.
	res, err := eng.AwardScore(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 || res.Accepted != 5 {
		t.Fatalf("replay changed the total: %+v", res)
	}
	r := studentRecord(t, h.DB, 2, sem.ID)
	if got := entryCount(t, h.DB, r.ID); got != 1 {
		t.Fatalf("want 1 ledger entry after replay, got %d", got)
	}
}

func TestAwardScore_UpdateInPlace(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Event participation")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 3, SemesterID: sem.ID}
	if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 5,
		DedupKey: strPtr("activity:300"), ScoreType: models.ScoreAuto,
	}); err != nil {
		t.Fatal(err)
	}
	// Attendance was corrected, the same activity now yields 8.
	res, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 8,
		DedupKey: strPtr("activity:300"), ScoreType: models.ScoreAuto,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 8 || res.Total != 8 {
		t.Fatalf("want accepted=8 total=8, got %+v", res)
	}
	r := studentRecord(t, h.DB, 3, sem.ID)
	if got := entryCount(t, h.DB, r.ID); got != 1 {
		t.Fatalf("update must not create a second entry, got %d", got)
	}
}

func TestAwardScore_CategoryCeiling(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Evidence achievement")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 4, SemesterID: sem.ID}
	// Evidence awards accumulate; the category (max 50) fills after
	// 15+15+15+5.
	for i := 0; i < 4; i++ {
		if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
			Owner: owner, CriterionID: crit.ID, RawScore: 15,
			DedupKey:  strPtr(fmt.Sprintf("evidence:%d", i)),
			DupPolicy: score.DupAccumulate,
			ScoreType: models.ScoreAuto,
		}); err != nil {
			t.Fatal(err)
		}
	}
	r := studentRecord(t, h.DB, 4, sem.ID)
	if r.TotalScore != 50 {
		t.Fatalf("category should be full at 50, got %d", r.TotalScore)
	}

	// Zero headroom: accepted 0, entry still recorded for audit.
	res, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 3,
		DedupKey:  strPtr("evidence:99"),
		ScoreType: models.ScoreAuto,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 0 || !res.Adjusted || res.Total != 50 {
		t.Fatalf("want accepted=0 adjusted=true total=50, got %+v", res)
	}
	r = studentRecord(t, h.DB, 4, sem.ID)
	if got := entryCount(t, h.DB, r.ID); got != 5 {
		t.Fatalf("audit entry missing, want 5 entries, got %d", got)
	}
}

func TestAwardScore_OverHeadroomPartial(t *testing.T) {
	h, eng, sem := startEngine(t)
	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 5, SemesterID: sem.ID}

	// Academic category max is 35; fill 20 first.
	for _, title := range []string{"Academic activity participation", "Olympic/ACM competition"} {
		crit := mustCriterion(t, h.DB, models.TargetStudent, "Academic Awareness", title)
		if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
			Owner: owner, CriterionID: crit.ID, RawScore: 10,
			DedupKey:  strPtr("activity:" + title),
			ScoreType: models.ScoreAuto,
		}); err != nil {
			t.Fatal(err)
		}
	}

	crit := mustCriterion(t, h.DB, models.TargetStudent, "Academic Awareness", "Scientific research")
	res, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 40,
		DedupKey:  strPtr("manual:research"),
		ScoreType: models.ScoreManual,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 15 || !res.Adjusted {
		t.Fatalf("want accepted=15 adjusted=true, got %+v", res)
	}
	if res.Total != 35 {
		t.Fatalf("want total=35, got %d", res.Total)
	}
	if res.Reason == "" {
		t.Fatal("clamped result must carry a reason for the caller")
	}
}

func TestAwardScore_WeeklyWindow(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetClub, "Club Meetings", "Recurring meeting")

	owner := score.OwnerKey{Type: models.TargetClub, OwnerID: 10, SemesterID: sem.ID, Month: 3}
	week := "2026-W10"
	want := []int{3, 2, 0}
	for i, w := range want {
		res, err := eng.AwardScore(context.Background(), score.AwardRequest{
			Owner: owner, CriterionID: crit.ID, RawScore: 3,
			DedupKey:      strPtr(fmt.Sprintf("activity:%d", 400+i)),
			WindowKey:     &week,
			WindowCeiling: 5,
			ScoreType:     models.ScoreAuto,
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Accepted != w {
			t.Fatalf("meeting %d: want accepted=%d, got %d", i+1, w, res.Accepted)
		}
	}

	r, err := db.GetRecord(context.Background(), h.DB, models.TargetClub, 10, sem.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalScore != 5 {
		t.Fatalf("weekly cap should hold the total at 5, got %d", r.TotalScore)
	}
}

func TestAwardScore_DedupFollowsWindowMove(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetClub, "Club Meetings", "Recurring meeting")

	owner := score.OwnerKey{Type: models.TargetClub, OwnerID: 12, SemesterID: sem.ID, Month: 3}
	w1, w2 := "2026-W10", "2026-W11"
	req := score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 3,
		DedupKey:      strPtr("activity:500"),
		WindowKey:     &w1,
		WindowCeiling: 5,
		ScoreType:     models.ScoreAuto,
	}
	if _, err := eng.AwardScore(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	// The meeting's completion date was corrected into the next ISO week;
	// the same points arrive again under a different window.
	req.WindowKey = &w2
	if _, err := eng.AwardScore(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRecord(context.Background(), h.DB, models.TargetClub, 12, sem.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := entryCount(t, h.DB, r.ID); got != 1 {
		t.Fatalf("window move must rewrite the entry, not add one, got %d", got)
	}
	var storedKey string
	var storedCeil int
	if err := h.DB.QueryRow(
		`SELECT window_key, window_ceiling FROM ledger_entries WHERE record_id = $1`, r.ID,
	).Scan(&storedKey, &storedCeil); err != nil {
		t.Fatal(err)
	}
	if storedKey != w2 || storedCeil != 5 {
		t.Fatalf("stored window stale: key=%q ceiling=%d", storedKey, storedCeil)
	}

	// A later recompute must see the moved window, not the original one.
	if err := eng.Recalculate(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}
	r, err = db.GetRecord(context.Background(), h.DB, models.TargetClub, 12, sem.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalScore != 3 {
		t.Fatalf("want total 3 after recompute, got %d", r.TotalScore)
	}
}

func TestAwardScore_RejectPolicy(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Civic Behavior", "Civic conduct")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 6, SemesterID: sem.ID}
	if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 10,
		DupPolicy: score.DupReject, ScoreType: models.ScoreManual,
	}); err != nil {
		t.Fatal(err)
	}
	res, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: 10,
		DupPolicy: score.DupReject, ScoreType: models.ScoreManual,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 0 || res.Total != 10 || res.Reason == "" {
		t.Fatalf("duplicate should be rejected unchanged, got %+v", res)
	}
}

func TestAwardScore_ValidationAndConfigErrors(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Civic Behavior", "Civic conduct")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 7, SemesterID: sem.ID}
	if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: crit.ID, RawScore: -1,
	}); err == nil {
		t.Fatal("negative score must be rejected")
	}
	if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
		Owner: owner, CriterionID: 999999, RawScore: 5,
	}); err == nil {
		t.Fatal("unknown criterion must fail softly with an error")
	}
}

func TestAwardScore_Parallel(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Volunteer campaign")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 8, SemesterID: sem.ID}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = eng.AwardScore(context.Background(), score.AwardRequest{
				Owner: owner, CriterionID: crit.ID, RawScore: 10,
				DedupKey:  strPtr(fmt.Sprintf("evidence:%d", i)),
				ScoreType: models.ScoreAuto,
			})
		}(i)
	}
	wg.Wait()

	// Social Activity is capped at 50: concurrent writers must never
	// overshoot it.
	r := studentRecord(t, h.DB, 8, sem.ID)
	if r.TotalScore != 50 {
		t.Fatalf("want exactly the category ceiling 50, got %d", r.TotalScore)
	}
	var sum int
	if err := h.DB.QueryRow(`SELECT COALESCE(SUM(score),0) FROM ledger_entries WHERE record_id = $1`, r.ID).Scan(&sum); err != nil {
		t.Fatal(err)
	}
	if sum != 50 {
		t.Fatalf("stored entries sum to %d, ceiling is 50", sum)
	}
}

func TestRecalculate_ReclampsAfterCatalogEdit(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Evidence achievement")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 9, SemesterID: sem.ID}
	for i := 0; i < 3; i++ {
		if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
			Owner: owner, CriterionID: crit.ID, RawScore: 10,
			DedupKey:  strPtr(fmt.Sprintf("evidence:%d", i)),
			ScoreType: models.ScoreAuto,
		}); err != nil {
			t.Fatal(err)
		}
	}
	r := studentRecord(t, h.DB, 9, sem.ID)
	if r.TotalScore != 30 {
		t.Fatalf("setup expects 30, got %d", r.TotalScore)
	}

	// Category ceiling lowered after the fact; a recompute pass must
	// re-clamp stored entries.
	if _, err := h.DB.Exec(`UPDATE criterion_groups SET max_score = 20 WHERE id = $1`, crit.GroupID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Recalculate(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}
	r = studentRecord(t, h.DB, 9, sem.ID)
	if r.TotalScore != 20 {
		t.Fatalf("want re-clamped total 20, got %d", r.TotalScore)
	}
}

func TestGetRecord_Breakdown(t *testing.T) {
	h, eng, sem := startEngine(t)
	crit := mustCriterion(t, h.DB, models.TargetStudent, "Social Activity", "Evidence achievement")

	owner := score.OwnerKey{Type: models.TargetStudent, OwnerID: 11, SemesterID: sem.ID}
	for i := 0; i < 4; i++ {
		if _, err := eng.AwardScore(context.Background(), score.AwardRequest{
			Owner: owner, CriterionID: crit.ID, RawScore: 15,
			DedupKey:  strPtr(fmt.Sprintf("evidence:%d", i)),
			ScoreType: models.ScoreAuto,
		}); err != nil {
			t.Fatal(err)
		}
	}
	v, err := eng.GetRecord(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if v == nil || len(v.Breakdown) != 1 {
		t.Fatalf("want one category in breakdown, got %+v", v)
	}
	b := v.Breakdown[0]
	if b.Capped != 50 || b.Raw != 50 {
		t.Fatalf("want capped=50 raw=50 (entries are clamped at write), got %+v", b)
	}
	if v.Record.TotalScore != 50 {
		t.Fatalf("want total 50, got %d", v.Record.TotalScore)
	}
}
