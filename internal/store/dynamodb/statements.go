package dynamodb

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"catalog-loader/internal/store"
)

// statements are the prepared operations. Templates are copied per call and
// never written after prepareStatements returns.
type statements struct {
	putItem         dynamodb.PutItemInput
	putReviewByUser dynamodb.PutItemInput
	putReviewByItem dynamodb.PutItemInput

	queryItem          queryTemplate
	queryReviewsByUser queryTemplate
	queryReviewsByItem queryTemplate
}

// queryTemplate is a partition query compiled once; bind supplies the
// partition key value.
type queryTemplate struct {
	table        string
	keyCondition string
	projection   string
	names        map[string]string
	values       map[string]types.AttributeValue
	placeholder  string
	consistent   bool
}

func prepareStatements(keyspace string, consistent bool) (*statements, error) {
	s := &statements{
		putItem:         putTemplate(keyspace, store.TableItems),
		putReviewByUser: putTemplate(keyspace, store.TableReviewsByUser),
		putReviewByItem: putTemplate(keyspace, store.TableReviewsByItem),
	}

	var err error
	if s.queryItem, err = newQueryTemplate(keyspace, store.ItemsTable, consistent); err != nil {
		return nil, err
	}
	if s.queryReviewsByUser, err = newQueryTemplate(keyspace, store.ReviewsByUserTable, consistent); err != nil {
		return nil, err
	}
	if s.queryReviewsByItem, err = newQueryTemplate(keyspace, store.ReviewsByItemTable, consistent); err != nil {
		return nil, err
	}
	return s, nil
}

func putTemplate(keyspace, table string) dynamodb.PutItemInput {
	return dynamodb.PutItemInput{TableName: aws.String(store.TableName(keyspace, table))}
}

func newQueryTemplate(keyspace string, t store.Table, consistent bool) (queryTemplate, error) {
	keyCond := expression.Key(t.PartitionKey).Equal(expression.Value("?"))

	// project the table's columns only; the range key is internal
	names := make([]expression.NameBuilder, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, expression.Name(c.Name))
	}
	projection := expression.NamesList(names[0], names[1:]...)

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyCond).
		WithProjection(projection).
		Build()
	if err != nil {
		return queryTemplate{}, err
	}

	values := expr.Values()
	if len(values) != 1 {
		return queryTemplate{}, fmt.Errorf("key condition of %s has %d values, want 1", t.Name, len(values))
	}
	var placeholder string
	for k := range values {
		placeholder = k
	}

	return queryTemplate{
		table:        store.TableName(keyspace, t.Name),
		keyCondition: aws.ToString(expr.KeyCondition()),
		projection:   aws.ToString(expr.Projection()),
		names:        expr.Names(),
		values:       values,
		placeholder:  placeholder,
		consistent:   consistent,
	}, nil
}

func (q queryTemplate) bind(partition string) *dynamodb.QueryInput {
	values := make(map[string]types.AttributeValue, len(q.values))
	for k, v := range q.values {
		values[k] = v
	}
	values[q.placeholder] = &types.AttributeValueMemberS{Value: partition}

	return &dynamodb.QueryInput{
		TableName:                 aws.String(q.table),
		KeyConditionExpression:    aws.String(q.keyCondition),
		ProjectionExpression:      aws.String(q.projection),
		ExpressionAttributeNames:  q.names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(q.consistent),
		ScanIndexForward:          aws.Bool(true),
	}
}
