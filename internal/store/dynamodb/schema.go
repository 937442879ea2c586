package dynamodb

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"catalog-loader/internal/store"
)

// createTableInput maps a catalog table layout onto a DynamoDB key schema:
// the partition column is the hash key and the clustering columns are
// encoded into one string range key.
func createTableInput(name string, t store.Table, opts Options) *dynamodb.CreateTableInput {
	rk := rangeKey(t)
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(t.PartitionKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(rk), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.PartitionKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rk), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{Key: aws.String("catalog:table"), Value: aws.String(t.Name)},
		},
	}
	if opts.ReadCapacity > 0 && opts.WriteCapacity > 0 {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(opts.ReadCapacity),
			WriteCapacityUnits: aws.Int64(opts.WriteCapacity),
		}
	}
	return input
}
