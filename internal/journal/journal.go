// internal/journal/journal.go

// Package journal keeps an append-only, in-process history of domain events
// per aggregate with optimistic version control.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// maxRecordAttempts bounds Record's retries on version conflicts.
const maxRecordAttempts = 5

// Event is a recorded domain event.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Sequence      int64             `json:"sequence"`
	AggregateID   string            `json:"aggregateId"`
	AggregateType string            `json:"aggregateType"`
	EventType     string            `json:"eventType"`
	EventData     json.RawMessage   `json:"eventData"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Journal stores events in memory. Sequence numbers are global and strictly
// increasing; versions are per aggregate and start at 1.
type Journal struct {
	mu       sync.RWMutex
	streams  map[string][]Event
	log      []Event
	sequence int64
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{
		streams: make(map[string][]Event),
		tracer:  otel.Tracer("memberhub/journal"),
		now:     time.Now,
	}
}

// AppendEvents atomically appends events to an aggregate's stream. It fails
// with ErrConcurrencyConflict if the stream is not at expectedVersion.
func (j *Journal) AppendEvents(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []Event) error {
	_, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	stream := j.streams[aggregateID]
	if currentVersion := len(stream); currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	now := j.now().UTC()
	for i, event := range events {
		j.sequence++
		event.ID = uuid.New()
		event.Sequence = j.sequence
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = expectedVersion + i + 1
		event.CreatedAt = now

		stream = append(stream, event)
		j.log = append(j.log, event)

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.sequence", event.Sequence),
			attribute.Int("event.version", event.Version),
			attribute.String("event.type", event.EventType),
		))
	}
	j.streams[aggregateID] = stream

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// Record appends a single event carrying data at the stream's next version,
// retrying when a concurrent writer wins the race.
func (j *Journal) Record(ctx context.Context, aggregateID, aggregateType, eventType string, data any, metadata map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	event := Event{
		EventType: eventType,
		EventData: payload,
		Metadata:  metadata,
	}

	for attempt := 0; attempt < maxRecordAttempts; attempt++ {
		version, err := j.GetCurrentVersion(ctx, aggregateID)
		if err != nil {
			return err
		}
		err = j.AppendEvents(ctx, aggregateID, aggregateType, version, []Event{event})
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
	}
	return fmt.Errorf("record %s for %s: %w", eventType, aggregateID, ErrConcurrencyConflict)
}

// LoadEvents returns an aggregate's events with fromVersion <= version and,
// when toVersion > 0, version <= toVersion.
func (j *Journal) LoadEvents(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]Event, error) {
	_, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	j.mu.RLock()
	defer j.mu.RUnlock()

	stream, ok := j.streams[aggregateID]
	if !ok {
		return nil, ErrAggregateNotFound
	}

	events := make([]Event, 0, len(stream))
	for _, event := range stream {
		if event.Version < fromVersion {
			continue
		}
		if toVersion > 0 && event.Version > toVersion {
			break
		}
		events = append(events, event)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// GetCurrentVersion returns the latest version for an aggregate, 0 if none.
func (j *Journal) GetCurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.streams[aggregateID]), nil
}

// StreamEvents returns up to batchSize events with Sequence > fromSequence,
// across all aggregates, in sequence order.
func (j *Journal) StreamEvents(ctx context.Context, fromSequence int64, batchSize int) ([]Event, error) {
	_, span := j.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("from.sequence", fromSequence),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	// Sequence n sits at index n-1.
	start := int(fromSequence)
	if start < 0 {
		start = 0
	}
	if start >= len(j.log) {
		return []Event{}, nil
	}
	end := start + batchSize
	if end > len(j.log) {
		end = len(j.log)
	}

	events := make([]Event, end-start)
	copy(events, j.log[start:end])

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
