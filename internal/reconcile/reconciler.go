package reconcile

import (
	"context"
	"database/sql"
	"time"

	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/models"
	"github.com/clubsphere/movement-score/internal/observability"
	"github.com/clubsphere/movement-score/internal/sources"
	"go.uber.org/zap"
)

// Reconciler re-scans source facts and replays them through the adapters.
// The engine's dedup step makes a full replay free of duplicate awards, so
// the job only has to be careful about isolation: one entity failing must
// not take the batch down with it.
type Reconciler struct {
	DB  *sql.DB
	Log *zap.Logger

	Activities  sources.ActivityProvider
	Evidences   sources.EvidenceProvider
	Memberships sources.MembershipProvider

	Attendance *sources.Attendance
	Evidence   *sources.Evidence
	Roles      *sources.Roles
	Clubs      *sources.ClubCompletion

	// Lookback bounds the re-scan; facts older than this are assumed
	// settled.
	Lookback time.Duration
}

func (r *Reconciler) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sem, err := db.GetActiveSemester(ctx, r.DB)
	if err != nil {
		r.Log.Warn("reconcile: no active semester, nothing to do", zap.Error(err))
		return nil
	}

	since := time.Now().Add(-r.lookback())
	if sem.StartDate.After(since) {
		since = sem.StartDate
	}

	processed, failed := 0, 0

	acts, err := r.Activities.CompletedActivities(ctx, since)
	if err != nil {
		r.Log.Error("reconcile: listing activities failed", zap.Error(err))
		observability.CaptureErr("reconcile", err)
	}
	for _, act := range acts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Attendance.Process(ctx, sem, act); err != nil {
			failed++
			r.Log.Error("reconcile: attendance replay failed",
				zap.Int64("activity_id", act.ID), zap.Error(err))
			observability.CaptureErr("reconcile", err)
		}
		if err := r.Clubs.Process(ctx, sem, act); err != nil {
			failed++
			r.Log.Error("reconcile: club replay failed",
				zap.Int64("activity_id", act.ID), zap.Error(err))
			observability.CaptureErr("reconcile", err)
		}
		processed++
	}

	evs, err := r.Evidences.ApprovedEvidences(ctx, since)
	if err != nil {
		r.Log.Error("reconcile: listing evidences failed", zap.Error(err))
		observability.CaptureErr("reconcile", err)
	}
	for _, ev := range evs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Evidence.Process(ctx, sem, ev); err != nil {
			failed++
			r.Log.Error("reconcile: evidence replay failed",
				zap.Int64("evidence_id", ev.ID), zap.Error(err))
			observability.CaptureErr("reconcile", err)
		}
		processed++
	}

	if err := r.roles(ctx, sem, &processed, &failed); err != nil {
		return err
	}

	r.Log.Info("reconcile pass finished",
		zap.Int("processed", processed), zap.Int("failed", failed))
	return nil
}

func (r *Reconciler) roles(ctx context.Context, sem *models.Semester, processed, failed *int) error {
	ms, err := r.Memberships.ActiveMemberships(ctx)
	if err != nil {
		r.Log.Error("reconcile: listing memberships failed", zap.Error(err))
		observability.CaptureErr("reconcile", err)
		return nil
	}
	for _, m := range ms {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Roles.Process(ctx, sem, m); err != nil {
			*failed++
			r.Log.Error("reconcile: role replay failed",
				zap.Int64("student_id", m.StudentID), zap.Error(err))
			observability.CaptureErr("reconcile", err)
		}
		*processed++
	}
	return nil
}

func (r *Reconciler) lookback() time.Duration {
	if r.Lookback <= 0 {
		return 30 * 24 * time.Hour
	}
	return r.Lookback
}
