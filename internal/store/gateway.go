// Package store defines the gateway to the wide-column store that holds the
// catalog tables, the canonical table layouts, and the decorators wrapped
// around every backend (circuit breaker, metrics and tracing).
//
// Backends live in subpackages: dynamodb for AWS DynamoDB and memory for an
// in-process emulation used by tests and dry runs.
package store

import (
	"context"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
)

// Bundle says where the store lives.
type Bundle struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. DynamoDB Local.
	Endpoint string
}

// Credentials authenticate against the store. A zero value means the
// backend's default credential chain.
type Credentials struct {
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsZero reports whether no explicit credentials were given.
func (c Credentials) IsZero() bool {
	return c.Profile == "" && c.AccessKeyID == ""
}

// Writer issues the prepared writes. Every write is an idempotent upsert
// keyed by the row's primary key.
type Writer interface {
	PutItem(ctx context.Context, row catalog.ItemRow) error
	PutReviewByUser(ctx context.Context, row catalog.ReviewRow) error
	PutReviewByItem(ctx context.Context, row catalog.ReviewRow) error
}

// Reader issues the prepared partition reads. Rows come back in clustering
// order.
type Reader interface {
	QueryItem(ctx context.Context, asin string) ([]catalog.ItemRow, error)
	QueryReviewsByUser(ctx context.Context, reviewerID string) ([]catalog.ReviewRow, error)
	QueryReviewsByItem(ctx context.Context, asin string) ([]catalog.ReviewRow, error)
}

// Gateway owns the store connection and the prepared operations.
//
// Connect and Close are idempotent: a second Connect or a Close on a closed
// gateway logs a warning and does nothing. Writes and reads issued before
// Prepare fail with a NOT_PREPARED conflict. After Prepare the gateway is
// safe for concurrent use.
type Gateway interface {
	Connect(ctx context.Context, bundle Bundle, creds Credentials, keyspace string) error
	Close(ctx context.Context) error
	CreateSchema(ctx context.Context) error
	Prepare(ctx context.Context) error
	Writer
	Reader
}

// Operation names, used in errors, logs and metrics.
const (
	OpConnect            = "Connect"
	OpClose              = "Close"
	OpCreateSchema       = "CreateSchema"
	OpPrepare            = "Prepare"
	OpPutItem            = "PutItem"
	OpPutReviewByUser    = "PutReviewByUser"
	OpPutReviewByItem    = "PutReviewByItem"
	OpQueryItem          = "QueryItem"
	OpQueryReviewsByUser = "QueryReviewsByUser"
	OpQueryReviewsByItem = "QueryReviewsByItem"
)

// NotConnected is returned by operations that need an open connection.
func NotConnected(op string) error {
	return apperrors.Conflict("NOT_CONNECTED", "store is not connected").
		WithOperation(op).
		Build()
}

// NotPrepared is returned by writes and reads issued before Prepare.
func NotPrepared(op string) error {
	return apperrors.Conflict("NOT_PREPARED", "store operations are not prepared").
		WithOperation(op).
		Build()
}

// IsNotPrepared reports whether err came from an unprepared gateway.
func IsNotPrepared(err error) bool {
	var unified *apperrors.UnifiedError
	return apperrors.As(err, &unified) && unified.Code == "NOT_PREPARED"
}

// IsNotConnected reports whether err came from a closed gateway.
func IsNotConnected(err error) bool {
	var unified *apperrors.UnifiedError
	return apperrors.As(err, &unified) && unified.Code == "NOT_CONNECTED"
}
