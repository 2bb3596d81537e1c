//go:build testutil
// +build testutil

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/reconcile"
	"github.com/clubsphere/movement-score/internal/score"
	"github.com/clubsphere/movement-score/internal/sources"
	"github.com/clubsphere/movement-score/internal/testutil/testdb"
	"go.uber.org/zap"
)

type fakeFacts struct {
	activities  []models.ActivityFact
	evidences   []models.EvidenceFact
	memberships []models.MembershipFact
}

func (f *fakeFacts) CompletedActivities(ctx context.Context, since time.Time) ([]models.ActivityFact, error) {
	return f.activities, nil
}

func (f *fakeFacts) ApprovedEvidences(ctx context.Context, since time.Time) ([]models.EvidenceFact, error) {
	return f.evidences, nil
}

func (f *fakeFacts) ActiveMemberships(ctx context.Context) ([]models.MembershipFact, error) {
	return f.memberships, nil
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
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
	if _, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name:      "reconcile test",
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

	eng := score.NewEngine(h.DB, zap.NewNop(), 100)
	facts := &fakeFacts{
		activities: []models.ActivityFact{
			{
				ID: 1, ClubID: 5, Type: models.ActivityEvent,
				Status: models.ActivityCompleted, Points: 6,
				ExpectedCount: 2, CompletedAt: now.Add(-48 * time.Hour),
				Attendees: []models.AttendeeFact{
					{StudentID: 100, Present: true},
					{StudentID: 101, Present: true},
				},
			},
		},
		evidences: []models.EvidenceFact{
			{ID: 7, StudentID: 100, Category: "achievement", Title: "certificate",
				Approved: true, ApprovedAt: now.Add(-24 * time.Hour)},
		},
		memberships: []models.MembershipFact{
			{StudentID: 100, ClubID: 5, Role: "President", IsActive: true, AsOf: now},
		},
	}

	rec := &reconcile.Reconciler{
		DB:          h.DB,
		Log:         zap.NewNop(),
		Activities:  facts,
		Evidences:   facts,
		Memberships: facts,
		Attendance:  &sources.Attendance{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Evidence:    &sources.Evidence{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Roles:       &sources.Roles{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Clubs:       &sources.ClubCompletion{DB: h.DB, Engine: eng, Log: zap.NewNop()},
	}

	if err := rec.Run(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := db.GetRecord(ctx, h.DB, models.TargetStudent, 100, sem.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("expected a record for student 100 after the first pass")
	}
	// attendance 6 + evidence 5 + president role 10
	if first.TotalScore != 21 {
		t.Fatalf("want 21 after first pass, got %d", first.TotalScore)
	}

	// A second full pass over the same facts must not change anything.
	if err := rec.Run(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := db.GetRecord(ctx, h.DB, models.TargetStudent, 100, sem.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.TotalScore != first.TotalScore {
		t.Fatalf("replay changed the total: %d -> %d", first.TotalScore, second.TotalScore)
	}
}

func TestReconcile_StopsOnCancel(t *testing.T) {
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
	if _, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name: "cancel test", StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0), IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}

	eng := score.NewEngine(h.DB, zap.NewNop(), 100)
	facts := &fakeFacts{
		memberships: []models.MembershipFact{
			{StudentID: 1, ClubID: 1, Role: "Member", IsActive: true, AsOf: now},
		},
	}
	rec := &reconcile.Reconciler{
		DB: h.DB, Log: zap.NewNop(),
		Activities: facts, Evidences: facts, Memberships: facts,
		Attendance: &sources.Attendance{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Evidence:   &sources.Evidence{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Roles:      &sources.Roles{DB: h.DB, Engine: eng, Log: zap.NewNop()},
		Clubs:      &sources.ClubCompletion{DB: h.DB, Engine: eng, Log: zap.NewNop()},
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := rec.Run(cancelled); err == nil {
		t.Fatal("cancelled context should stop the pass with an error")
	}
}
