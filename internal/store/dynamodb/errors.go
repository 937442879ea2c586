package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	apperrors "catalog-loader/internal/errors"
)

// retryable AWS error codes: throttling and transient server faults
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"LimitExceededException":                 true,
}

// classify turns an SDK error into a typed store error. build picks the
// error type (StoreWrite or StoreRead).
func classify(err error, build func(code, message string) *apperrors.ErrorBuilder, op, table string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Timeout("STORE_TIMEOUT", "store call did not complete").
			WithOperation(op).
			WithResource(table).
			WithCause(err).
			Build()
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return apperrors.NotFound("TABLE_NOT_FOUND", "table does not exist").
			WithOperation(op).
			WithResource(table).
			WithCause(err).
			Build()
	}

	code := "STORE_ERROR"
	retryable := false
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		retryable = retryableCodes[code]
	}

	return build(code, "store call failed").
		WithOperation(op).
		WithResource(table).
		WithRetryable(retryable).
		WithCause(err).
		Build()
}

func isResourceInUse(err error) bool {
	var inUse *types.ResourceInUseException
	return errors.As(err, &inUse)
}
