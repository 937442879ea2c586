// Package memory is an in-process store backend. It emulates the catalog's
// wide-column tables (ordered clustering within each partition, static
// columns on items) and keeps data across Connect/Close cycles for the
// lifetime of the Gateway value.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"catalog-loader/internal/catalog"
	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/store"
)

// Gateway implements store.Gateway in memory.
type Gateway struct {
	logger *zap.Logger

	// mu serializes lifecycle operations
	mu        sync.Mutex
	keyspaces map[string]*keyspace

	session atomic.Pointer[session]

	faultMu sync.RWMutex
	faults  map[string]error
}

// session is replaced, never mutated.
type session struct {
	keyspace string
	// tables is set by Prepare
	tables *keyspace
}

var _ store.Gateway = (*Gateway)(nil)

// NewGateway creates an empty, disconnected in-memory store.
func NewGateway(logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		logger:    logger.Named("memory-store"),
		keyspaces: make(map[string]*keyspace),
		faults:    make(map[string]error),
	}
}

// Connect opens a session on keyspace.
func (g *Gateway) Connect(_ context.Context, _ store.Bundle, _ store.Credentials, keyspace string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session.Load() != nil {
		g.logger.Warn("already connected", zap.String("keyspace", keyspace))
		return nil
	}
	g.session.Store(&session{keyspace: keyspace})
	g.logger.Info("connected", zap.String("keyspace", keyspace))
	return nil
}

// Close ends the session. Data stays in the Gateway.
func (g *Gateway) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session.Load() == nil {
		g.logger.Warn("already closed")
		return nil
	}
	g.session.Store(nil)
	g.logger.Info("closed")
	return nil
}

// CreateSchema creates the catalog tables of the session's keyspace if they
// do not exist yet.
func (g *Gateway) CreateSchema(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session.Load()
	if s == nil {
		return store.NotConnected(store.OpCreateSchema)
	}
	if err := g.fault(store.OpCreateSchema); err != nil {
		return err
	}
	if _, ok := g.keyspaces[s.keyspace]; ok {
		g.logger.Debug("schema already exists", zap.String("keyspace", s.keyspace))
		return nil
	}
	g.keyspaces[s.keyspace] = newKeyspace()
	g.logger.Info("schema created", zap.String("keyspace", s.keyspace))
	return nil
}

// Prepare binds the session to the keyspace's tables.
func (g *Gateway) Prepare(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session.Load()
	if s == nil {
		return store.NotConnected(store.OpPrepare)
	}
	ks, ok := g.keyspaces[s.keyspace]
	if !ok {
		return apperrors.NotFound("TABLE_NOT_FOUND", "catalog tables do not exist").
			WithOperation(store.OpPrepare).
			WithResource(s.keyspace).
			Build()
	}
	g.session.Store(&session{keyspace: s.keyspace, tables: ks})
	return nil
}

func (g *Gateway) tables(op string) (*keyspace, error) {
	s := g.session.Load()
	if s == nil {
		return nil, store.NotConnected(op)
	}
	if s.tables == nil {
		return nil, store.NotPrepared(op)
	}
	if err := g.fault(op); err != nil {
		return nil, err
	}
	return s.tables, nil
}

func (g *Gateway) PutItem(_ context.Context, row catalog.ItemRow) error {
	ks, err := g.tables(store.OpPutItem)
	if err != nil {
		return err
	}
	ks.items.put(row)
	return nil
}

func (g *Gateway) PutReviewByUser(_ context.Context, row catalog.ReviewRow) error {
	ks, err := g.tables(store.OpPutReviewByUser)
	if err != nil {
		return err
	}
	row.Time = truncateTime(row.Time)
	ks.reviewsByUser.upsert(row.ReviewerID, row)
	return nil
}

func (g *Gateway) PutReviewByItem(_ context.Context, row catalog.ReviewRow) error {
	ks, err := g.tables(store.OpPutReviewByItem)
	if err != nil {
		return err
	}
	row.Time = truncateTime(row.Time)
	ks.reviewsByItem.upsert(row.ASIN, row)
	return nil
}

func (g *Gateway) QueryItem(_ context.Context, asin string) ([]catalog.ItemRow, error) {
	ks, err := g.tables(store.OpQueryItem)
	if err != nil {
		return nil, err
	}
	return ks.items.query(asin), nil
}

func (g *Gateway) QueryReviewsByUser(_ context.Context, reviewerID string) ([]catalog.ReviewRow, error) {
	ks, err := g.tables(store.OpQueryReviewsByUser)
	if err != nil {
		return nil, err
	}
	return ks.reviewsByUser.scan(reviewerID), nil
}

func (g *Gateway) QueryReviewsByItem(_ context.Context, asin string) ([]catalog.ReviewRow, error) {
	ks, err := g.tables(store.OpQueryReviewsByItem)
	if err != nil {
		return nil, err
	}
	return ks.reviewsByItem.scan(asin), nil
}

// ============================================================================
// TEST HELPERS
// ============================================================================

// SetError makes every call of op fail with err.
func (g *Gateway) SetError(op string, err error) {
	g.faultMu.Lock()
	defer g.faultMu.Unlock()
	g.faults[op] = err
}

// ClearErrors removes all configured errors.
func (g *Gateway) ClearErrors() {
	g.faultMu.Lock()
	defer g.faultMu.Unlock()
	g.faults = make(map[string]error)
}

func (g *Gateway) fault(op string) error {
	g.faultMu.RLock()
	defer g.faultMu.RUnlock()
	return g.faults[op]
}

// RowCount returns the number of rows stored in table of keyspace.
func (g *Gateway) RowCount(keyspace, table string) int {
	g.mu.Lock()
	ks, ok := g.keyspaces[keyspace]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	switch table {
	case store.TableItems:
		return ks.items.len()
	case store.TableReviewsByUser:
		return ks.reviewsByUser.len()
	case store.TableReviewsByItem:
		return ks.reviewsByItem.len()
	}
	return 0
}
