package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedError_Creation(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() *UnifiedError
		expected *UnifiedError
	}{
		{
			name: "decode error",
			builder: func() *UnifiedError {
				return Decode("INVALID_JSON", "line is not a JSON object").
					WithDetails("unexpected end of JSON input").
					Build()
			},
			expected: &UnifiedError{
				Type:     ErrorTypeDecode,
				Code:     "INVALID_JSON",
				Message:  "line is not a JSON object",
				Details:  "unexpected end of JSON input",
				Severity: SeverityLow,
			},
		},
		{
			name: "io error",
			builder: func() *UnifiedError {
				return IO("OPEN_FAILED", "cannot open input").
					WithResource("items.json").
					Build()
			},
			expected: &UnifiedError{
				Type:     ErrorTypeIO,
				Code:     "OPEN_FAILED",
				Message:  "cannot open input",
				Resource: "items.json",
				Severity: SeverityCritical,
			},
		},
		{
			name: "timeout error",
			builder: func() *UnifiedError {
				return Timeout("DRAIN_TIMEOUT", "drain timed out").Build()
			},
			expected: &UnifiedError{
				Type:      ErrorTypeTimeout,
				Code:      "DRAIN_TIMEOUT",
				Message:   "drain timed out",
				Severity:  SeverityMedium,
				Retryable: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder()

			assert.Equal(t, tt.expected.Type, err.Type)
			assert.Equal(t, tt.expected.Code, err.Code)
			assert.Equal(t, tt.expected.Message, err.Message)
			assert.Equal(t, tt.expected.Details, err.Details)
			assert.Equal(t, tt.expected.Resource, err.Resource)
			assert.Equal(t, tt.expected.Severity, err.Severity)
			assert.Equal(t, tt.expected.Retryable, err.Retryable)
			assert.NotEmpty(t, err.File)
			assert.Positive(t, err.Line)
		})
	}
}

func TestUnifiedError_ErrorString(t *testing.T) {
	err := StoreWrite("PUT_FAILED", "write rejected").
		WithCause(fmt.Errorf("throttled")).
		Build()
	assert.Equal(t, "[STORE_WRITE:PUT_FAILED] write rejected: throttled", err.Error())

	withDetails := Transform("BAD_CATEGORIES", "categories malformed").
		WithDetails("expected list of lists").
		Build()
	assert.Equal(t, "[TRANSFORM:BAD_CATEGORIES] categories malformed: expected list of lists", withDetails.Error())
}

func TestIsType(t *testing.T) {
	base := Conflict("NOT_PREPARED", "operations not prepared").Build()
	wrapped := fmt.Errorf("put item: %w", base)

	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsDecode(wrapped))
	assert.Equal(t, ErrorTypeConflict, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("plain")))
	assert.False(t, IsType(nil, ErrorTypeIO))
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, "op", "msg"))
	})

	t.Run("unified error keeps its type", func(t *testing.T) {
		inner := StoreRead("QUERY_FAILED", "query failed").
			WithResource("items").
			WithRetryable(true).
			Build()
		outer := Wrap(inner, "GetItem", "item lookup failed")

		require.NotNil(t, outer)
		assert.Equal(t, ErrorTypeStoreRead, outer.Type)
		assert.Equal(t, "QUERY_FAILED", outer.Code)
		assert.Equal(t, "items", outer.Resource)
		assert.Equal(t, "GetItem", outer.Operation)
		assert.True(t, outer.Retryable)
		assert.True(t, errors.Is(outer, inner))
	})

	t.Run("foreign error becomes internal", func(t *testing.T) {
		cause := errors.New("boom")
		outer := Wrap(cause, "Load", "load failed")

		require.NotNil(t, outer)
		assert.Equal(t, ErrorTypeInternal, outer.Type)
		assert.Equal(t, "boom", outer.Details)
		assert.True(t, errors.Is(outer, cause))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Connection("DIAL", "dial failed").Build()))
	assert.False(t, IsRetryable(Validation("BAD", "bad").Build()))
	assert.False(t, IsRetryable(errors.New("plain")))
}
