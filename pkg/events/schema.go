package events

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeDuplicatesDetected    EventType = "duplicates.detected"
	EventTypeRecommendationsRanked EventType = "recommendations.ranked"
)

// DuplicatesDetectedEvent summarises a duplicate report. Members are listed
// by record id so the event never carries record contents.
type DuplicatesDetectedEvent struct {
	Source  string                  `json:"source"`
	Summary models.DuplicateSummary `json:"summary"`
	Groups  []DuplicateGroupSummary `json:"groups"`
}

type DuplicateGroupSummary struct {
	Kind       models.GroupKind `json:"kind"`
	Confidence float64          `json:"confidence"`
	MemberIDs  []string         `json:"member_ids"`
	Reasoning  string           `json:"reasoning"`
}

// RecommendationsRankedEvent lists the candidates returned for a seeker.
type RecommendationsRankedEvent struct {
	SeekerID   string                 `json:"seeker_id"`
	Candidates int                    `json:"candidates"`
	Ranked     []RankedCandidateEntry `json:"ranked"`
}

type RankedCandidateEntry struct {
	CandidateID string  `json:"candidate_id"`
	TotalScore  float64 `json:"total_score"`
}
