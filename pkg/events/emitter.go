// Package events publishes duplicate reports and recommendation rankings.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher delivers events. *kafka.Producer implements it.
type Publisher interface {
	PublishEvent(ctx context.Context, event *kafka.Event) error
}

// Emitter handles event emission for fern. A nil publisher disables it.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Enabled reports whether events are published.
func (e *Emitter) Enabled() bool {
	return e != nil && e.publisher != nil
}

// EmitDuplicatesDetected publishes a duplicate report. source names the record set.
func (e *Emitter) EmitDuplicatesDetected(ctx context.Context, source string, report *models.DuplicateReport) error {
	if !e.Enabled() || report == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicatesDetected")
	defer span.End()

	payload := DuplicatesDetectedEvent{
		Source:  source,
		Summary: report.Summary,
		Groups:  make([]DuplicateGroupSummary, len(report.Groups)),
	}
	for i, g := range report.Groups {
		ids := make([]string, len(g.Members))
		for j, m := range g.Members {
			ids[j] = m.ID
		}
		payload.Groups[i] = DuplicateGroupSummary{
			Kind:       g.Kind,
			Confidence: g.Confidence,
			MemberIDs:  ids,
			Reasoning:  g.Reasoning,
		}
	}

	return e.emit(ctx, EventTypeDuplicatesDetected, source, payload)
}

// EmitRecommendationsRanked publishes the ranking returned for a seeker.
func (e *Emitter) EmitRecommendationsRanked(ctx context.Context, seekerID string, candidates int, recs []models.Recommendation) error {
	if !e.Enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecommendationsRanked")
	defer span.End()

	payload := RecommendationsRankedEvent{
		SeekerID:   seekerID,
		Candidates: candidates,
		Ranked:     make([]RankedCandidateEntry, len(recs)),
	}
	for i, r := range recs {
		payload.Ranked[i] = RankedCandidateEntry{
			CandidateID: r.Candidate.ID,
			TotalScore:  r.TotalScore,
		}
	}

	return e.emit(ctx, EventTypeRecommendationsRanked, seekerID, payload)
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventID:       uuid.New().String(),
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		Key:           key,
		CorrelationID: appctx.GetRequestID(ctx),
		Data:          data,
	}

	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
