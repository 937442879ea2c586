// Package reader rebuilds logical items and reviews from their denormalized
// rows.
package reader

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"catalog-loader/internal/catalog"
	"catalog-loader/internal/store"
)

// Reader serves point and range reads over a prepared store.
type Reader struct {
	store  store.Reader
	logger *zap.Logger
}

// New creates a Reader.
func New(s store.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: s, logger: logger.Named("reader")}
}

// GetItem merges the rows of one item partition. found is false when the
// partition has no rows.
func (r *Reader) GetItem(ctx context.Context, asin string) (view catalog.ItemView, found bool, err error) {
	rows, err := r.store.QueryItem(ctx, asin)
	if err != nil {
		return catalog.ItemView{}, false, err
	}
	if len(rows) == 0 {
		r.logger.Debug("item not found", zap.String("asin", asin))
		return catalog.ItemView{}, false, nil
	}
	return MergeItem(rows), true, nil
}

// MergeItem builds an item view from the rows of one partition. Static
// columns come from the first row; categories are deduplicated, sorted and
// stripped of the sentinel.
func MergeItem(rows []catalog.ItemRow) catalog.ItemView {
	if len(rows) == 0 {
		return catalog.ItemView{}
	}
	first := rows[0]
	view := catalog.ItemView{
		ASIN:        first.ASIN,
		Title:       first.Title,
		ImageURL:    first.ImageURL,
		Description: first.Description,
		Categories:  []string{},
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.CategoryName == catalog.Sentinel {
			continue
		}
		if _, ok := seen[row.CategoryName]; ok {
			continue
		}
		seen[row.CategoryName] = struct{}{}
		view.Categories = append(view.Categories, row.CategoryName)
	}
	sort.Strings(view.Categories)
	return view
}

// ListByUser returns the rendered reviews written by reviewerID, newest first.
func (r *Reader) ListByUser(ctx context.Context, reviewerID string) ([]string, error) {
	rows, err := r.store.QueryReviewsByUser(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("reviews by user", zap.String("reviewer_id", reviewerID), zap.Int("total", len(rows)))
	return renderReviews(rows), nil
}

// ListByItem returns the rendered reviews of asin, newest first.
func (r *Reader) ListByItem(ctx context.Context, asin string) ([]string, error) {
	rows, err := r.store.QueryReviewsByItem(ctx, asin)
	if err != nil {
		return nil, err
	}
	r.logger.Info("reviews by item", zap.String("asin", asin), zap.Int("total", len(rows)))
	return renderReviews(rows), nil
}

// store order is the clustering order; it is kept as is
func renderReviews(rows []catalog.ReviewRow) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = catalog.RenderReview(row)
	}
	return out
}
