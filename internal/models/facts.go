package models

import "time"

// Source facts handed to the adapters by external collaborators
// (attendance tracking, evidence review, membership snapshots). The engine
// never reads the collaborators' own tables.

type ActivityStatus string

const (
	ActivityCompleted ActivityStatus = "completed"
)

type ActivityType string

const (
	ActivityEvent       ActivityType = "event"
	ActivityMeeting     ActivityType = "meeting"
	ActivityCompetition ActivityType = "competition"
	ActivityCollab      ActivityType = "collaboration"
)

type ActivityFact struct {
	ID            int64
	ClubID        int64
	Type          ActivityType
	Status        ActivityStatus
	Points        int
	CollabClubID  *int64
	CollabPoints  int
	Level         string // competition level: school|city|national
	CompletedAt   time.Time
	Attendees     []AttendeeFact
	ExpectedCount int // planned headcount, for attendance-rate tiers
}

type AttendeeFact struct {
	StudentID int64
	Present   bool
}

type EvidenceFact struct {
	ID         int64
	StudentID  int64
	Category   string
	Title      string
	Approved   bool
	ApprovedAt time.Time
}

type MembershipFact struct {
	StudentID int64
	ClubID    int64
	Role      string
	IsActive  bool
	AsOf      time.Time
}

type ManualAward struct {
	OwnerType   Target
	OwnerID     int64
	GroupID     int64
	CriterionID *int64
	Score       int
	Note        *string
	CreatedBy   int64
	AwardedAt   time.Time
	// Reference is the caller-chosen dedup token; resubmitting the same
	// reference updates the prior entry instead of scoring again.
	Reference *string
	// Accumulate lets repeated awards on the same criterion stack up;
	// otherwise the second award on an already-scored criterion is
	// rejected.
	Accumulate bool
}
