package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
)

// Store keeps trigger claims in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a claim is remembered
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long claims live before DynamoDB TTL removes them (e.g. 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func keyOf(triggerID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"trigger_id": &types.AttributeValueMemberS{Value: triggerID},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

// TryClaim takes the trigger for runID. A new trigger is created IN_PROGRESS;
// a trigger whose earlier run FAILED is taken over. Returns claimed=false
// with a nil error when another run holds or finished it.
func (s *Store) TryClaim(ctx context.Context, triggerID, runID string) (bool, error) {
	now := s.nowFunc()
	rec := Claim{
		TriggerID: triggerID,
		Status:    StatusInProgress,
		RunID:     runID,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal claim: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(trigger_id)"),
	})
	if err == nil {
		return true, nil
	}
	if !isConditionFailed(err) {
		return false, fmt.Errorf("put item: %w", err)
	}

	// Retake a failed trigger.
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      keyOf(triggerID),
		UpdateExpression:         awsString("SET #s = :ip, run_id = :rid, updated_at = :ua, attempts = attempts + :one"),
		ConditionExpression:      awsString("#s = :failed"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ip":     &types.AttributeValueMemberS{Value: StatusInProgress},
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":rid":    &types.AttributeValueMemberS{Value: runID},
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item (retake): %w", err)
	}
	return true, nil
}

// Get retrieves a claim by trigger ID. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, triggerID string) (*Claim, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyOf(triggerID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Claim
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone closes the claim with the run summary line.
func (s *Store) MarkDone(ctx context.Context, triggerID, summary string) error {
	return s.finish(ctx, triggerID, StatusDone, "summary", summary)
}

// MarkFailed closes the claim as FAILED so a redelivery may retry it.
func (s *Store) MarkFailed(ctx context.Context, triggerID, note string) error {
	return s.finish(ctx, triggerID, StatusFailed, "note", note)
}

func (s *Store) finish(ctx context.Context, triggerID, status, field, value string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      keyOf(triggerID),
		UpdateExpression:         awsString("SET #s = :st, " + field + " = :v, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: status},
			":v":  &types.AttributeValueMemberS{Value: value},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark %s): %w", status, err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }
