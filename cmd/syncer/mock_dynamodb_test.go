package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockTriggers is an in-memory triggers table keyed by trigger_id. It only
// understands the expressions the claim store issues.
type mockTriggers struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue

	putCalls    int
	getCalls    int
	updateCalls int
	putErr      error
}

func newMockTriggers() *mockTriggers {
	return &mockTriggers{table: map[string]map[string]types.AttributeValue{}}
}

func (m *mockTriggers) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls + m.getCalls + m.updateCalls
}

func triggerIDOf(item map[string]types.AttributeValue) (string, error) {
	v, ok := item["trigger_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing trigger_id")
	}
	return v.Value, nil
}

func (m *mockTriggers) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return nil, m.putErr
	}
	k, err := triggerIDOf(in.Item)
	if err != nil {
		return nil, err
	}
	if in.ConditionExpression != nil && *in.ConditionExpression == "attribute_not_exists(trigger_id)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockTriggers) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := triggerIDOf(in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.table[k]}, nil
}

func (m *mockTriggers) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := triggerIDOf(in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	vals := in.ExpressionAttributeValues

	if in.ConditionExpression != nil {
		// only "#s = :failed" is issued
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
	for _, clause := range strings.Split(strings.TrimPrefix(*in.UpdateExpression, "SET "), ",") {
		lhs, rhs, found := strings.Cut(strings.TrimSpace(clause), " = ")
		if !found {
			return nil, fmt.Errorf("mock: bad clause %q", clause)
		}
		if n, ok := in.ExpressionAttributeNames[lhs]; ok {
			lhs = n
		}
		if strings.Contains(rhs, "+") {
			n := 0
			if cur, ok := next[lhs].(*types.AttributeValueMemberN); ok {
				fmt.Sscanf(cur.Value, "%d", &n)
			}
			next[lhs] = &types.AttributeValueMemberN{Value: fmt.Sprint(n + 1)}
			continue
		}
		v, ok := vals[rhs]
		if !ok {
			return nil, fmt.Errorf("mock: missing value %s", rhs)
		}
		next[lhs] = v
	}
	m.table[k] = next
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockTriggers) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("mock: Scan not supported")
}
