package catalog

import (
	"fmt"
	"strings"
	"time"
)

// NotExists is what an item lookup renders when the asin has no rows.
const NotExists = "not exists"

// RenderItem renders an item in the line-per-field format.
func RenderItem(v ItemView) string {
	return fmt.Sprintf("asin: %s\ntitle: %s\nimage: %s\ncategories: %s\ndescription: %s\n",
		v.ASIN, v.Title, v.ImageURL, renderSet(v.Categories), v.Description)
}

// RenderReview renders one review on a single line.
func RenderReview(r ReviewRow) string {
	return fmt.Sprintf("time: %s, asin: %s, reviewerID: %s, reviewerName: %s, rating: %d, summary: %s, reviewText: %s\n",
		FormatTime(r.Time), r.ASIN, r.ReviewerID, r.ReviewerName, r.Rating, r.Summary, r.ReviewText)
}

// FormatTime renders t as a UTC ISO-8601 instant, e.g. 2014-02-02T00:00:00Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func renderSet(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
