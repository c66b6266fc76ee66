package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// claimsMock is an in-memory claims table. It understands the handful of
// expressions the Store issues and nothing else.
type claimsMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue

	putCalls    int
	updateCalls int
	putErr      error
}

func newClaimsMock() *claimsMock {
	return &claimsMock{table: map[string]map[string]types.AttributeValue{}}
}

func triggerKey(item map[string]types.AttributeValue) (string, error) {
	v, ok := item["trigger_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing trigger_id")
	}
	return v.Value, nil
}

func (m *claimsMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return nil, m.putErr
	}
	k, err := triggerKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(trigger_id)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *claimsMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := triggerKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *claimsMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := triggerKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	vals := params.ExpressionAttributeValues

	if params.ConditionExpression != nil {
		if *params.ConditionExpression != "#s = :failed" {
			return nil, fmt.Errorf("mock: unsupported condition %q", *params.ConditionExpression)
		}
		cur, _ := item["status"].(*types.AttributeValueMemberS)
		want, _ := vals[":failed"].(*types.AttributeValueMemberS)
		if cur == nil || want == nil || cur.Value != want.Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	next := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		next[name] = v
	}
	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, clause := range strings.Split(expr, ",") {
		parts := strings.SplitN(strings.TrimSpace(clause), " = ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("mock: bad clause %q", clause)
		}
		name := parts[0]
		if n, ok := params.ExpressionAttributeNames[name]; ok {
			name = n
		}
		rhs := parts[1]
		if strings.Contains(rhs, "+") {
			// attempts = attempts + :one
			cur, _ := next[name].(*types.AttributeValueMemberN)
			n := 0
			if cur != nil {
				fmt.Sscanf(cur.Value, "%d", &n)
			}
			next[name] = &types.AttributeValueMemberN{Value: fmt.Sprint(n + 1)}
			continue
		}
		v, ok := vals[rhs]
		if !ok {
			return nil, fmt.Errorf("mock: missing value %s", rhs)
		}
		next[name] = v
	}
	m.table[k] = next
	return &dyn.UpdateItemOutput{}, nil
}

func (m *claimsMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("mock: Scan not supported")
}
