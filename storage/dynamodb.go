package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table attribute names
const (
	attrTripID  = "trip_id"
	attrKey     = "snapshot_key"
	attrPayload = "payload"
)

// DynamoDBAPI defines the DynamoDB operations used by the snapshot backend.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps snapshots in a table keyed by trip_id (partition) and
// snapshot_key (sort)
type DynamoStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoStore creates a store over table
func NewDynamoStore(client DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Name identifies the backend in logs and metrics
func (d *DynamoStore) Name() string {
	return "dynamodb"
}

// Create writes the item only if no item has the same primary key
func (d *DynamoStore) Create(ctx context.Context, tripID, key string, data []byte) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]dynamodbtypes.AttributeValue{
			attrTripID:  &dynamodbtypes.AttributeValueMemberS{Value: tripID},
			attrKey:     &dynamodbtypes.AttributeValueMemberS{Value: key},
			attrPayload: &dynamodbtypes.AttributeValueMemberB{Value: data},
		},
		ConditionExpression: aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": attrKey,
		},
	})
	if err != nil {
		var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%s/%s: %w", tripID, key, ErrKeyExists)
		}
		return fmt.Errorf("put item in %s: %w", d.table, err)
	}
	return nil
}

// List queries the trip partition in ascending sort key order
func (d *DynamoStore) List(ctx context.Context, tripID string) ([]Record, error) {
	var records []Record

	paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		KeyConditionExpression: aws.String("#t = :trip"),
		ExpressionAttributeNames: map[string]string{
			"#t": attrTripID,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":trip": &dynamodbtypes.AttributeValueMemberS{Value: tripID},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s for trip %s: %w", d.table, tripID, err)
		}

		for _, item := range page.Items {
			record, err := recordFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("trip %s: %w", tripID, err)
			}
			records = append(records, record)
		}
	}

	return records, nil
}

func recordFromItem(item map[string]dynamodbtypes.AttributeValue) (Record, error) {
	key, ok := item[attrKey].(*dynamodbtypes.AttributeValueMemberS)
	if !ok {
		return Record{}, fmt.Errorf("item missing %s", attrKey)
	}
	payload, ok := item[attrPayload].(*dynamodbtypes.AttributeValueMemberB)
	if !ok {
		return Record{}, fmt.Errorf("item %s missing %s", key.Value, attrPayload)
	}
	return Record{Key: key.Value, Data: payload.Value}, nil
}
