// Package events announces finished ingestion runs on an EventBridge bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/ingest"
)

// DetailTypeLoadCompleted is the detail type of a finished run.
const DetailTypeLoadCompleted = "catalog.load.completed"

// API is the subset of the EventBridge client the publisher uses.
type API interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher announces finished loads.
type Publisher interface {
	PublishLoadCompleted(ctx context.Context, report *ingest.Report) error
}

// LoadCompleted is the event detail.
type LoadCompleted struct {
	RunID         string                      `json:"run_id"`
	Kind          ingest.Kind                 `json:"kind"`
	Keyspace      string                      `json:"keyspace"`
	Path          string                      `json:"path"`
	LinesRead     int64                       `json:"lines_read"`
	Succeeded     int64                       `json:"succeeded"`
	Skipped       map[ingest.SkipReason]int64 `json:"skipped"`
	RowsWritten   int64                       `json:"rows_written"`
	DrainTimedOut bool                        `json:"drain_timed_out"`
	ReaderError   string                      `json:"reader_error,omitempty"`
	StartedAt     time.Time                   `json:"started_at"`
	DurationMS    int64                       `json:"duration_ms"`
}

// NewLoadCompleted builds the event detail of report.
func NewLoadCompleted(keyspace string, report *ingest.Report) LoadCompleted {
	ev := LoadCompleted{
		RunID:         report.RunID,
		Kind:          report.Kind,
		Keyspace:      keyspace,
		Path:          report.Path,
		LinesRead:     report.LinesRead,
		Succeeded:     report.Succeeded,
		Skipped:       report.Skipped,
		RowsWritten:   report.RowsWritten,
		DrainTimedOut: report.DrainTimedOut,
		StartedAt:     report.StartedAt.UTC(),
		DurationMS:    report.Duration.Milliseconds(),
	}
	if report.ReaderErr != nil {
		ev.ReaderError = report.ReaderErr.Error()
	}
	return ev
}

// EventBridgePublisher puts one event per finished run on the bus.
type EventBridgePublisher struct {
	client       API
	eventBusName string
	source       string
	keyspace     string
	logger       *zap.Logger
}

// NewEventBridgePublisher creates a new EventBridge publisher
func NewEventBridgePublisher(client API, eventBusName, source, keyspace string, logger *zap.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		keyspace:     keyspace,
		logger:       logger.Named("events"),
	}
}

// PublishLoadCompleted sends the load-completed event of report.
func (p *EventBridgePublisher) PublishLoadCompleted(ctx context.Context, report *ingest.Report) error {
	detail, err := json.Marshal(NewLoadCompleted(p.keyspace, report))
	if err != nil {
		return apperrors.Internal("EVENT_MARSHAL_FAILED", "cannot encode event").WithCause(err).Build()
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(DetailTypeLoadCompleted),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(report.StartedAt.Add(report.Duration)),
			Resources:    []string{fmt.Sprintf("catalog:%s:%s", p.keyspace, report.Kind)},
		}},
	})
	if err != nil {
		return apperrors.External("EVENT_PUBLISH_FAILED", "failed to publish events to EventBridge").
			WithOperation("PutEvents").
			WithResource(p.eventBusName).
			WithRetryable(true).
			WithCause(err).
			Build()
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("run_id", report.RunID),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return apperrors.External("EVENT_PUBLISH_FAILED", fmt.Sprintf("%d events failed to publish", result.FailedEntryCount)).
			WithOperation("PutEvents").
			WithResource(p.eventBusName).
			Build()
	}

	p.logger.Debug("Events published to EventBridge",
		zap.String("run_id", report.RunID),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishLoadCompleted(context.Context, *ingest.Report) error { return nil }
