package sources

import (
	"context"
	"time"

	"github.com/clubsphere/movement-score/internal/models"
)

// Fact providers are the boundary to the rest of the application
// (attendance tracking, evidence review, membership administration). The
// reconciliation job re-reads them wholesale; request-driven callers hand
// single facts to the adapters directly.

type ActivityProvider interface {
	CompletedActivities(ctx context.Context, since time.Time) ([]models.ActivityFact, error)
}

type EvidenceProvider interface {
	ApprovedEvidences(ctx context.Context, since time.Time) ([]models.EvidenceFact, error)
}

type MembershipProvider interface {
	ActiveMemberships(ctx context.Context) ([]models.MembershipFact, error)
}
