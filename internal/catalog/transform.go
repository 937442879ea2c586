package catalog

import (
	"fmt"
	"math"
	"time"

	apperrors "catalog-loader/internal/errors"
)

// ItemToRows flattens an item record into one row per category occurrence.
// The nested "categories" list of lists is expanded across every inner list
// without deduplication; an item without categories gets one Sentinel row.
func ItemToRows(rec Record) ([]ItemRow, error) {
	base := ItemRow{
		ASIN:        rec.KeyOr("asin", Sentinel),
		Title:       rec.StringOr("title", Sentinel),
		Description: rec.StringOr("description", Sentinel),
		ImageURL:    rec.StringOr("imUrl", Sentinel),
	}

	categories, err := flattenCategories(rec)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		categories = []string{Sentinel}
	}

	rows := make([]ItemRow, 0, len(categories))
	for _, category := range categories {
		row := base
		row.CategoryName = category
		rows = append(rows, row)
	}
	return rows, nil
}

func flattenCategories(rec Record) ([]string, error) {
	raw, ok := rec["categories"]
	if !ok || raw == nil {
		return nil, nil
	}

	outer, ok := raw.([]any)
	if !ok {
		return nil, apperrors.Transform("INVALID_CATEGORIES", "categories is not a list of lists").
			WithDetails(fmt.Sprintf("got %T", raw)).
			WithResource(rec.KeyOr("asin", Sentinel)).
			Build()
	}

	var out []string
	for i, inner := range outer {
		list, ok := inner.([]any)
		if !ok {
			return nil, apperrors.Transform("INVALID_CATEGORIES", "categories is not a list of lists").
				WithDetails(fmt.Sprintf("element %d is %T", i, inner)).
				WithResource(rec.KeyOr("asin", Sentinel)).
				Build()
		}
		for _, v := range list {
			name := Sentinel
			if v != nil {
				if s := textOf(v); s != "" {
					name = s
				}
			}
			out = append(out, name)
		}
	}
	return out, nil
}

// ReviewToRows builds the by-user and by-item copies of a review. Both carry
// the same payload.
func ReviewToRows(rec Record) (byUser ReviewRow, byItem ReviewRow, err error) {
	rating := rec.Int("overall", RatingSentinel)
	// rating is a 32-bit int column
	if rating < math.MinInt32 || rating > math.MaxInt32 {
		rating = RatingSentinel
	}

	row := ReviewRow{
		ASIN:         rec.KeyOr("asin", Sentinel),
		ReviewerID:   rec.KeyOr("reviewerID", Sentinel),
		ReviewerName: rec.StringOr("reviewerName", Sentinel),
		Summary:      rec.StringOr("summary", Sentinel),
		ReviewText:   rec.StringOr("reviewText", Sentinel),
		Rating:       int(rating),
		Time:         time.Unix(rec.Int("unixReviewTime", 0), 0).UTC(),
	}
	return row, row, nil
}
