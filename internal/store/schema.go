package store

import (
	"fmt"
	"strings"
)

// Column of a table.
type Column struct {
	Name   string
	Type   string // CQL type
	Static bool
}

// ClusteringColumn orders rows inside a partition.
type ClusteringColumn struct {
	Name string
	Desc bool
}

// Table is the layout of one catalog table.
type Table struct {
	Name         string
	Columns      []Column
	PartitionKey string
	Clustering   []ClusteringColumn

	// parenthesizedPartition renders PRIMARY KEY ((pk), ...).
	parenthesizedPartition bool
}

// Table names, without keyspace.
const (
	TableItems         = "items"
	TableReviewsByUser = "reviews_by_user"
	TableReviewsByItem = "reviews_by_item"
)

var (
	// ItemsTable holds one row per (asin, category). title, description and
	// imUrl are static: one value per asin partition.
	ItemsTable = Table{
		Name: TableItems,
		Columns: []Column{
			{Name: "asin", Type: "text"},
			{Name: "category_name", Type: "text"},
			{Name: "title", Type: "text", Static: true},
			{Name: "description", Type: "text", Static: true},
			{Name: "imUrl", Type: "text", Static: true},
		},
		PartitionKey: "asin",
		Clustering:   []ClusteringColumn{{Name: "category_name"}},
	}

	// ReviewsByUserTable lists a reviewer's reviews, newest first.
	ReviewsByUserTable = Table{
		Name:         TableReviewsByUser,
		Columns:      reviewColumns,
		PartitionKey: "reviewerID",
		Clustering:   []ClusteringColumn{{Name: "time", Desc: true}, {Name: "asin"}},
	}

	// ReviewsByItemTable lists an item's reviews, newest first.
	ReviewsByItemTable = Table{
		Name:                   TableReviewsByItem,
		Columns:                reviewColumns,
		PartitionKey:           "asin",
		Clustering:             []ClusteringColumn{{Name: "time", Desc: true}, {Name: "reviewerID"}},
		parenthesizedPartition: true,
	}

	reviewColumns = []Column{
		{Name: "asin", Type: "text"},
		{Name: "time", Type: "timestamp"},
		{Name: "reviewerID", Type: "text"},
		{Name: "reviewerName", Type: "text"},
		{Name: "rating", Type: "int"},
		{Name: "summary", Type: "text"},
		{Name: "reviewText", Type: "text"},
	}
)

// Schema lists the catalog tables in creation order.
func Schema() []Table {
	return []Table{ItemsTable, ReviewsByUserTable, ReviewsByItemTable}
}

// CQL renders the CREATE TABLE statement of t.
func (t Table) CQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "    %s %s", c.Name, c.Type)
		if c.Static {
			b.WriteString(" static")
		}
		b.WriteString(",\n")
	}

	key := make([]string, 0, len(t.Clustering)+1)
	if t.parenthesizedPartition {
		key = append(key, "("+t.PartitionKey+")")
	} else {
		key = append(key, t.PartitionKey)
	}
	order := make([]string, 0, len(t.Clustering))
	for _, c := range t.Clustering {
		key = append(key, c.Name)
		dir := "ASC"
		if c.Desc {
			dir = "DESC"
		}
		order = append(order, c.Name+" "+dir)
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n", strings.Join(key, ", "))
	fmt.Fprintf(&b, ") WITH CLUSTERING ORDER BY (%s);", strings.Join(order, ", "))
	return b.String()
}

// CQL renders the DDL of every catalog table, separated by blank lines.
func CQL() string {
	tables := Schema()
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		stmts = append(stmts, t.CQL())
	}
	return strings.Join(stmts, "\n\n") + "\n"
}

// TableName qualifies a table with the keyspace.
func TableName(keyspace, table string) string {
	if keyspace == "" {
		return table
	}
	return keyspace + "_" + table
}
