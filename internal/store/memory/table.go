package memory

import (
	"sync"
	"time"

	"github.com/google/btree"

	"catalog-loader/internal/catalog"
)

// degree of every partition btree
const degree = 16

// table is one wide-column table: rows grouped by partition key and kept in
// clustering order inside each partition.
type table[R any] struct {
	mu         sync.RWMutex
	less       btree.LessFunc[R]
	partitions map[string]*btree.BTreeG[R]
}

func newTable[R any](less btree.LessFunc[R]) *table[R] {
	return &table[R]{
		less:       less,
		partitions: make(map[string]*btree.BTreeG[R]),
	}
}

// upsert replaces the row with the same clustering key, if any.
func (t *table[R]) upsert(partition string, row R) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[partition]
	if !ok {
		p = btree.NewG[R](degree, t.less)
		t.partitions[partition] = p
	}
	p.ReplaceOrInsert(row)
}

// scan returns the partition in clustering order.
func (t *table[R]) scan(partition string) []R {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.partitions[partition]
	if !ok {
		return nil
	}
	rows := make([]R, 0, p.Len())
	p.Ascend(func(row R) bool {
		rows = append(rows, row)
		return true
	})
	return rows
}

func (t *table[R]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, p := range t.partitions {
		n += p.Len()
	}
	return n
}

// itemStatics are the static columns of one items partition.
type itemStatics struct {
	title, description, imageURL string
}

// itemsTable adds static-column semantics: the last write of a partition's
// static columns is what every row of that partition reads back.
type itemsTable struct {
	*table[catalog.ItemRow]

	staticMu sync.RWMutex
	statics  map[string]itemStatics
}

func newItemsTable() *itemsTable {
	return &itemsTable{
		table: newTable(func(a, b catalog.ItemRow) bool {
			return a.CategoryName < b.CategoryName
		}),
		statics: make(map[string]itemStatics),
	}
}

func (t *itemsTable) put(row catalog.ItemRow) {
	t.staticMu.Lock()
	t.statics[row.ASIN] = itemStatics{title: row.Title, description: row.Description, imageURL: row.ImageURL}
	t.staticMu.Unlock()

	t.upsert(row.ASIN, catalog.ItemRow{ASIN: row.ASIN, CategoryName: row.CategoryName})
}

func (t *itemsTable) query(asin string) []catalog.ItemRow {
	rows := t.scan(asin)
	if len(rows) == 0 {
		return nil
	}

	t.staticMu.RLock()
	s := t.statics[asin]
	t.staticMu.RUnlock()

	for i := range rows {
		rows[i].Title = s.title
		rows[i].Description = s.description
		rows[i].ImageURL = s.imageURL
	}
	return rows
}

// reviewsByUserLess orders by time descending, then asin ascending.
func reviewsByUserLess(a, b catalog.ReviewRow) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}
	return a.ASIN < b.ASIN
}

// reviewsByItemLess orders by time descending, then reviewerID ascending.
func reviewsByItemLess(a, b catalog.ReviewRow) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}
	return a.ReviewerID < b.ReviewerID
}

// keyspace holds the three catalog tables.
type keyspace struct {
	items         *itemsTable
	reviewsByUser *table[catalog.ReviewRow]
	reviewsByItem *table[catalog.ReviewRow]
}

func newKeyspace() *keyspace {
	return &keyspace{
		items:         newItemsTable(),
		reviewsByUser: newTable(reviewsByUserLess),
		reviewsByItem: newTable(reviewsByItemLess),
	}
}

// timestamp columns keep millisecond precision
func truncateTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
