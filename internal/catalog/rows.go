package catalog

import "time"

// Sentinel replaces missing string values.
const Sentinel = "na"

// RatingSentinel is the rating of a review whose "overall" field is absent or
// not a number. Real ratings are 1 to 5.
const RatingSentinel = 0

// ItemRow is one row of the items table: one category membership of an item.
// Title, Description and ImageURL are static columns, identical on every row
// of one asin.
type ItemRow struct {
	ASIN         string `dynamodbav:"asin"`
	CategoryName string `dynamodbav:"category_name"`
	Title        string `dynamodbav:"title"`
	Description  string `dynamodbav:"description"`
	ImageURL     string `dynamodbav:"imUrl"`
}

// ReviewRow is the payload shared by both review tables. The by-user copy is
// partitioned by ReviewerID, the by-item copy by ASIN.
type ReviewRow struct {
	ASIN         string    `dynamodbav:"asin"`
	ReviewerID   string    `dynamodbav:"reviewerID"`
	Time         time.Time `dynamodbav:"-"`
	ReviewerName string    `dynamodbav:"reviewerName"`
	Rating       int       `dynamodbav:"rating"`
	Summary      string    `dynamodbav:"summary"`
	ReviewText   string    `dynamodbav:"reviewText"`
}

// ItemView is an item reconstructed from all rows of its partition.
type ItemView struct {
	ASIN        string
	Title       string
	ImageURL    string
	Description string
	// Categories is sorted ascending, deduplicated and never holds Sentinel.
	Categories []string
}
