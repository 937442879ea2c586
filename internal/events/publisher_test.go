package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/ingest"
)

type fakeBus struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeBus) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func sampleReport() *ingest.Report {
	return &ingest.Report{
		RunID:       "run-1",
		Kind:        ingest.KindReviews,
		Path:        "/data/reviews.json",
		LinesRead:   10,
		Succeeded:   9,
		Skipped:     map[ingest.SkipReason]int64{ingest.SkipDecode: 1},
		RowsWritten: 18,
		StartedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
	}
}

func TestPublishLoadCompleted(t *testing.T) {
	bus := &fakeBus{}
	p := NewEventBridgePublisher(bus, "catalog-bus", "catalog.loader", "shop", nil)

	require.NoError(t, p.PublishLoadCompleted(context.Background(), sampleReport()))
	require.Len(t, bus.inputs, 1)
	require.Len(t, bus.inputs[0].Entries, 1)

	entry := bus.inputs[0].Entries[0]
	assert.Equal(t, "catalog-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "catalog.loader", aws.ToString(entry.Source))
	assert.Equal(t, DetailTypeLoadCompleted, aws.ToString(entry.DetailType))
	assert.Equal(t, []string{"catalog:shop:reviews"}, entry.Resources)

	var detail LoadCompleted
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "run-1", detail.RunID)
	assert.Equal(t, "shop", detail.Keyspace)
	assert.Equal(t, int64(18), detail.RowsWritten)
	assert.Equal(t, int64(1), detail.Skipped[ingest.SkipDecode])
	assert.Equal(t, int64(1500), detail.DurationMS)
}

func TestPublishLoadCompleted_Failures(t *testing.T) {
	p := NewEventBridgePublisher(&fakeBus{err: errors.New("network")}, "bus", "src", "ks", nil)
	err := p.PublishLoadCompleted(context.Background(), sampleReport())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.True(t, apperrors.IsRetryable(err))

	p = NewEventBridgePublisher(&fakeBus{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("InternalFailure")}},
	}}, "bus", "src", "ks", nil)
	err = p.PublishLoadCompleted(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 events failed to publish")
}

func TestNewLoadCompleted_ReaderError(t *testing.T) {
	r := sampleReport()
	r.ReaderErr = errors.New("token too long")
	assert.Equal(t, "token too long", NewLoadCompleted("ks", r).ReaderError)
	assert.NoError(t, NopPublisher{}.PublishLoadCompleted(context.Background(), r))
}
