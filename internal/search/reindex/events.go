package reindex

import (
	"context"
	"time"

	"github.com/helpfront/searchsync/pkg/kafka"
)

// EventSink receives operational events from reindex runs. kafka.Producer
// satisfies it; a nil sink disables publishing.
type EventSink interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// RunEvent marks the start or completion of a reindex run.
type RunEvent struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id"`
	DocTypes []string  `json:"doc_types"`
	At       time.Time `json:"at"`
	Indexed  int       `json:"indexed,omitempty"`
	Failed   int       `json:"failed,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
}

// DocFailureEvent records one rejected document, dead-letter style, so a
// downstream consumer can inspect or replay it.
type DocFailureEvent struct {
	RunID   string    `json:"run_id"`
	DocType string    `json:"doc_type"`
	DocID   string    `json:"doc_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

func (p *Pipeline) publishRunEvent(ctx context.Context, event RunEvent) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, kafka.Event{Key: event.RunID, Value: event}); err != nil {
		p.logger.Warn("failed to publish run event", "type", event.Type, "error", err)
	}
}

func (p *Pipeline) publishDocFailures(ctx context.Context, runID string, tr *TypeReport) {
	if p.events == nil || len(tr.Failures) == 0 {
		return
	}
	events := make([]kafka.Event, 0, len(tr.Failures))
	now := time.Now().UTC()
	for _, failure := range tr.Failures {
		events = append(events, kafka.Event{
			Key: failure.DocType + ":" + failure.DocID,
			Value: DocFailureEvent{
				RunID:   runID,
				DocType: failure.DocType,
				DocID:   failure.DocID,
				Reason:  failure.Reason,
				At:      now,
			},
		})
	}
	if err := p.events.PublishBatch(ctx, events); err != nil {
		p.logger.Warn("failed to publish document failure events", "doc_type", tr.DocType, "count", len(events), "error", err)
	}
}
