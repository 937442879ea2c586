package dynamodb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory DynamoDB covering the calls the gateway makes.
// Queries return at most pageSize items per page to exercise pagination.
type fakeClient struct {
	mu       sync.Mutex
	tables   map[string]*fakeTable
	pageSize int

	shouldFailOn map[string]error
	calls        map[string]int
	lastQuery    *dynamodb.QueryInput
}

type fakeTable struct {
	hash, rng string
	input     *dynamodb.CreateTableInput
	// partition -> range key -> item
	items map[string]map[string]map[string]types.AttributeValue
}

func newFakeClient(pageSize int) *fakeClient {
	return &fakeClient{
		tables:       make(map[string]*fakeTable),
		pageSize:     pageSize,
		shouldFailOn: make(map[string]error),
		calls:        make(map[string]int),
	}
}

func (f *fakeClient) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldFailOn[method] = err
}

func (f *fakeClient) record(method string) error {
	f.calls[method]++
	return f.shouldFailOn[method]
}

func (f *fakeClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTable"); err != nil {
		return nil, err
	}

	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &fakeTable{input: in, items: make(map[string]map[string]map[string]types.AttributeValue)}
	for _, k := range in.KeySchema {
		if k.KeyType == types.KeyTypeHash {
			t.hash = aws.ToString(k.AttributeName)
		} else {
			t.rng = aws.ToString(k.AttributeName)
		}
	}
	f.tables[name] = t
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DescribeTable"); err != nil {
		return nil, err
	}

	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + name)}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   aws.String(name),
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PutItem"); err != nil {
		return nil, err
	}

	t, ok := f.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	pk := in.Item[t.hash].(*types.AttributeValueMemberS).Value
	rk := in.Item[t.rng].(*types.AttributeValueMemberS).Value
	if t.items[pk] == nil {
		t.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	t.items[pk][rk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Query"); err != nil {
		return nil, err
	}
	f.lastQuery = in

	t, ok := f.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}

	// only "<name> = <value>" on the hash key is supported
	parts := strings.SplitN(aws.ToString(in.KeyConditionExpression), " = ", 2)
	attr := in.ExpressionAttributeNames[strings.TrimSpace(parts[0])]
	if attr != t.hash {
		return nil, &types.ResourceNotFoundException{Message: aws.String("bad key condition")}
	}
	pk := in.ExpressionAttributeValues[strings.TrimSpace(parts[1])].(*types.AttributeValueMemberS).Value

	partition := t.items[pk]
	keys := make([]string, 0, len(partition))
	for rk := range partition {
		keys = append(keys, rk)
	}
	sort.Strings(keys)

	start := ""
	if in.ExclusiveStartKey != nil {
		start = in.ExclusiveStartKey[t.rng].(*types.AttributeValueMemberS).Value
	}

	out := &dynamodb.QueryOutput{}
	for _, rk := range keys {
		if start != "" && rk <= start {
			continue
		}
		if len(out.Items) == f.pageSize {
			last := out.Items[len(out.Items)-1]
			out.LastEvaluatedKey = map[string]types.AttributeValue{t.hash: last[t.hash], t.rng: last[t.rng]}
			break
		}
		out.Items = append(out.Items, partition[rk])
	}
	out.Count = int32(len(out.Items))
	return out, nil
}
