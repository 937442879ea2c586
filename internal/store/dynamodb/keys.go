package dynamodb

import (
	"fmt"
	"strconv"
	"time"

	"catalog-loader/internal/catalog"
	"catalog-loader/internal/store"
)

// Attribute names. Partition keys keep their column names (asin,
// reviewerID); clustering columns are folded into the range key.
const (
	attrSortKey      = "sk"
	attrCategoryName = "category_name"
	attrTime         = "time"
)

// keySep separates the clustering components of a review range key.
const keySep = "#"

// timeDescKey encodes t so that byte-wise ascending order of the result is
// descending time order. Millisecond precision, like a CQL timestamp.
func timeDescKey(t time.Time) string {
	ms := uint64(t.UnixMilli()) ^ (1 << 63)
	return fmt.Sprintf("%016x", ^ms)
}

// parseTimeDescKey inverts timeDescKey.
func parseTimeDescKey(s string) (time.Time, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return time.Time{}, err
	}
	ms := int64(^v ^ (1 << 63))
	return time.UnixMilli(ms).UTC(), nil
}

// reviewSortKey is (time desc, tieBreaker asc).
func reviewSortKey(t time.Time, tieBreaker string) string {
	return timeDescKey(t) + keySep + tieBreaker
}

// rangeKey returns the range-key attribute of a table layout.
func rangeKey(t store.Table) string {
	if t.Name == store.TableItems {
		return attrCategoryName
	}
	return attrSortKey
}

// reviewItem is the stored form of a review in either review table.
type reviewItem struct {
	catalog.ReviewRow
	SortKey    string `dynamodbav:"sk"`
	TimeMillis int64  `dynamodbav:"time"`
}

func newReviewItem(row catalog.ReviewRow, tieBreaker string) reviewItem {
	return reviewItem{
		ReviewRow:  row,
		SortKey:    reviewSortKey(row.Time, tieBreaker),
		TimeMillis: row.Time.UnixMilli(),
	}
}

func (r reviewItem) row() catalog.ReviewRow {
	row := r.ReviewRow
	row.Time = time.UnixMilli(r.TimeMillis).UTC()
	return row
}
