// Package events implements an optional audit trail of terminal job
// transitions, published to Kafka/Redpanda when SCHEDULER_EVENTS_TOPIC is
// configured. Nothing in the dispatch path depends on delivery succeeding.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// Publisher emits one JSON event per terminal job transition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher constructs a Publisher against the given brokers and topic.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.new_publisher: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(262144),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.new_publisher: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// jobEvent is the wire shape of a published terminal-transition event.
type jobEvent struct {
	EventType   string     `json:"event_type"`
	JobID       string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	Frontend    string     `json:"frontend"`
	Capability  string     `json:"capability"`
	Status      string     `json:"status"`
	CostTokens  string     `json:"cost_tokens"`
	ErrorCode   string     `json:"error_code,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Publish emits a job.completed or job.failed event for a terminal job. Send
// is fire-and-forget; delivery errors are logged, never propagated, since the
// audit trail must never block or fail the dispatch path.
func (p *Publisher) Publish(ctx domain.Context, job domain.Job) {
	if p == nil || p.client == nil {
		return
	}
	eventType := "job.completed"
	errorCode := ""
	if job.Status == domain.JobFailed {
		eventType = "job.failed"
		if job.Error != nil {
			errorCode = job.Error.Code
		}
	}

	evt := jobEvent{
		EventType:  eventType,
		JobID:      job.ID,
		UserID:     job.UserID,
		Frontend:   job.Frontend,
		Capability: string(job.Capability),
		Status:     string(job.Status),
		CostTokens: job.CostTokens.String(),
		ErrorCode:  errorCode,
		EndedAt:    job.EndedAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("events: failed to marshal job event", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}

	record := &kgo.Record{Topic: p.topic, Key: []byte(job.ID), Value: data}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Error("events: failed to publish job event", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	})
}

// Close flushes and releases the underlying Kafka client.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	if err := p.client.Flush(context.Background()); err != nil {
		slog.Error("events: flush failed on close", slog.Any("error", err))
	}
	p.client.Close()
}
