package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory orders table. It interprets the small subset of
// update, condition and filter expressions the Store issues.
type mockDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int

	updateCalls int
	scanCalls   int
	failOn      map[string]error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		items:    map[string]map[string]types.AttributeValue{},
		pageSize: 2,
		failOn:   map[string]error{},
	}
}

func pkOf(key map[string]types.AttributeValue) (string, error) {
	v, ok := key[attrOrderNo].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("no order_no key attribute")
	}
	return v.Value, nil
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func resolveName(tok string, names map[string]string) string {
	if n, ok := names[tok]; ok {
		return n
	}
	return tok
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func evalCondition(expr string, item map[string]types.AttributeValue, exists bool, names map[string]string) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if !exists {
				return false, nil
			}
			if _, ok := item[attr]; !ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if exists {
				if _, ok := item[attr]; ok {
					return false, nil
				}
			}
		default:
			return false, fmt.Errorf("mock: unsupported condition %q", clause)
		}
	}
	return true, nil
}

// PutItem is never issued by the ledger; every write goes through UpdateItem.
func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return nil, errors.New("mock: PutItem not supported")
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	if err := m.failOn[pk]; err != nil {
		return nil, err
	}
	old, exists := m.items[pk]

	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, old, exists, params.ExpressionAttributeNames)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	next := copyItem(old)
	next[attrOrderNo] = params.Key[attrOrderNo]

	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assign := range splitTopLevel(expr) {
		lhs, rhs, ok := strings.Cut(assign, " = ")
		if !ok {
			return nil, fmt.Errorf("mock: unsupported assignment %q", assign)
		}
		attr := resolveName(strings.TrimSpace(lhs), params.ExpressionAttributeNames)
		rhs = strings.TrimSpace(rhs)
		if strings.HasPrefix(rhs, "if_not_exists(") {
			args := splitTopLevel(strings.TrimSuffix(strings.TrimPrefix(rhs, "if_not_exists("), ")"))
			if len(args) != 2 {
				return nil, fmt.Errorf("mock: bad if_not_exists %q", rhs)
			}
			if _, has := old[resolveName(args[0], params.ExpressionAttributeNames)]; has {
				continue
			}
			rhs = args[1]
		}
		v, ok := params.ExpressionAttributeValues[rhs]
		if !ok {
			return nil, fmt.Errorf("mock: missing value %s", rhs)
		}
		next[attr] = v
	}
	m.items[pk] = next

	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && exists {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		after, err := pkOf(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}

	limit := m.pageSize
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}

	out := &dyn.ScanOutput{}
	for _, k := range keys[start:end] {
		item := m.items[k]
		if params.FilterExpression != nil {
			ok, err := evalCondition(*params.FilterExpression, item, true, params.ExpressionAttributeNames)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(item))
	}
	if end < len(keys) {
		out.LastEvaluatedKey = keyOf(keys[end-1])
	}
	return out, nil
}
