package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/storefront-payments/internal/aws"
)

const (
	batchSize          = 25 // BatchWriteItem limit
	maxUnprocessedRuns = 3
)

// Store persists notifications in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// InsertBatch writes all records with BatchWriteItem, 25 per call.
// Unprocessed items are resubmitted a bounded number of times.
func (s *Store) InsertBatch(ctx context.Context, records []Notification) error {
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, n := range records[start:end] {
			item, err := attributevalue.MarshalMap(n)
			if err != nil {
				return fmt.Errorf("marshal notification: %w", err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		pending := map[string][]types.WriteRequest{s.tableName: reqs}
		for run := 0; len(pending) > 0; run++ {
			if run == maxUnprocessedRuns {
				return fmt.Errorf("batch write: %d items left unprocessed", len(pending[s.tableName]))
			}
			out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// InsertNew writes each record only if its id is not stored yet, so an
// existing record keeps its read flag and created_at. BatchWriteItem takes no
// conditions, hence one PutItem per record. It returns how many were new.
func (s *Store) InsertNew(ctx context.Context, records []Notification) (int, error) {
	inserted := 0
	for _, n := range records {
		item, err := attributevalue.MarshalMap(n)
		if err != nil {
			return inserted, fmt.Errorf("marshal notification: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(notification_id)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				continue
			}
			return inserted, fmt.Errorf("put notification %s: %w", n.NotificationID, err)
		}
		inserted++
	}
	return inserted, nil
}

// ListForUser returns the newest notifications addressed to userID.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	input := &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	}

	var out []Notification
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan notifications: %w", err)
		}
		var items []Notification
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal notifications: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flips read=true on the given notifications owned by userID.
// Ids that do not exist or belong to someone else are skipped. It returns
// how many records were updated.
func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	updated := 0
	for _, id := range ids {
		_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"notification_id": &types.AttributeValueMemberS{Value: id},
			},
			UpdateExpression:    awsString("SET #r = :t"),
			ConditionExpression: awsString("attribute_exists(notification_id) AND user_id = :u"),
			ExpressionAttributeNames: map[string]string{
				"#r": "read",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberBOOL{Value: true},
				":u": &types.AttributeValueMemberS{Value: userID},
			},
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				continue
			}
			return updated, fmt.Errorf("mark read %s: %w", id, err)
		}
		updated++
	}
	return updated, nil
}

func awsString(s string) *string { return &s }
