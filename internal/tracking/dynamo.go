package tracking

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key layout: one partition per tracking set, one item per job.
const (
	pkPrefix = "TRACK#"
	skPrefix = "JOB#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25
	// maxUnprocessedRounds bounds resubmission of throttled batch items.
	maxUnprocessedRounds = 5
)

type dynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoTracker stores records in a DynamoDB table with PK/SK string keys.
type DynamoTracker struct {
	client    dynamoAPI
	tableName string
	set       string
}

var _ Tracker = (*DynamoTracker)(nil)

// NewDynamoTracker stores the tracking set named set (usually the job
// name prefix) in tableName.
func NewDynamoTracker(client *dynamodb.Client, tableName, set string) *DynamoTracker {
	return &DynamoTracker{client: client, tableName: tableName, set: set}
}

func (d *DynamoTracker) pk() string { return pkPrefix + d.set }

// Save replaces the stored set: items for jobs no longer in records are
// deleted, then every record is written.
func (d *DynamoTracker) Save(ctx context.Context, records []JobRecord) error {
	existing, err := d.query(ctx)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(records))
	var writes []types.WriteRequest
	for _, rec := range records {
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", rec.JobID, err)
		}
		sk := skPrefix + rec.JobID
		keep[sk] = true
		item["PK"] = &types.AttributeValueMemberS{Value: d.pk()}
		item["SK"] = &types.AttributeValueMemberS{Value: sk}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	var deletes []types.WriteRequest
	for _, item := range existing {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok || keep[sk.Value] {
			continue
		}
		deletes = append(deletes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: d.pk()},
				"SK": sk,
			},
		}})
	}

	if err := d.batchWrite(ctx, deletes); err != nil {
		return fmt.Errorf("delete stale jobs: %w", err)
	}
	if err := d.batchWrite(ctx, writes); err != nil {
		return fmt.Errorf("put jobs: %w", err)
	}
	log.Debug().Str("table", d.tableName).Int("jobs", len(records)).Int("deleted", len(deletes)).Msg("Job records mirrored to DynamoDB")
	return nil
}

// Load returns the stored records in sort-key order.
func (d *DynamoTracker) Load(ctx context.Context) ([]JobRecord, error) {
	items, err := d.query(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]JobRecord, 0, len(items))
	for _, item := range items {
		var rec JobRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal job record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *DynamoTracker) query(ctx context.Context) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: d.pk()},
			":sk": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", d.pk(), err)
		}
		items = append(items, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}

func (d *DynamoTracker) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += maxBatchWrite {
		end := min(i+maxBatchWrite, len(requests))
		pending := map[string][]types.WriteRequest{d.tableName: requests[i:end]}

		for round := 0; len(pending[d.tableName]) > 0; round++ {
			if round == maxUnprocessedRounds {
				return fmt.Errorf("BatchWriteItem: %d items still unprocessed", len(pending[d.tableName]))
			}
			out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("BatchWriteItem (%d items): %w", len(pending[d.tableName]), err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}
